package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/saq/internal/handler/views"
	appI18n "github.com/pavelanni/saq/internal/i18n"
	"github.com/pavelanni/saq/internal/model"
	"github.com/pavelanni/saq/internal/plugin"
	"github.com/pavelanni/saq/internal/scoring"
	"github.com/pavelanni/saq/internal/store"
	"github.com/pavelanni/saq/internal/survey"
	"github.com/pavelanni/saq/internal/visibility"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	survey   *survey.Service
	renderer *plugin.Renderer
	config   model.ServerConfig
}

// New creates a new Handler.
func New(s *store.Store, cfg model.ServerConfig) *Handler {
	vis := visibility.New(s)
	svc := survey.New(s, vis)
	return &Handler{
		store:    s,
		survey:   svc,
		renderer: plugin.New(s, scoring.New(s), vis, svc),
		config:   cfg,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.loadUser)
	r.Use(h.csrfMiddleware)

	r.Get("/", h.handleIndex)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Post("/submit", h.handleSubmit)
	r.Get("/scores", h.handleScores)
	r.Get("/pages/{slug}", h.handlePage)
	r.Post("/pages/{slug}/bulk/{blockID}", h.handleBulk)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Use(requireRole(model.UserRoleEditor, model.UserRoleAdmin))
		r.Get("/tags", h.handleDumpTags)
		r.Put("/tags", h.handleLoadTags)
		r.Post("/content", h.handleUploadContent)
		r.Get("/export", h.handleExport)
	})
}

// BasePathMiddleware stores the configured URL prefix in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	pages, err := h.store.ListPages()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render(w, r, http.StatusOK, views.IndexPage(pages))
}

// respondent returns the request's user, creating a lazy user with its own
// session when allowed. It writes the error response and returns nil when
// there is no user.
func (h *Handler) respondent(w http.ResponseWriter, r *http.Request) *model.User {
	if user := model.UserFromContext(r.Context()); user != nil {
		return user
	}
	if !h.config.LazyUsers {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil
	}
	user, err := h.store.CreateLazyUser()
	if err != nil {
		slog.Error("failed to create lazy user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	if err := h.startSession(w, user); err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	return user
}

// handleSubmit records a batch of answers. Posts from the page's nav buttons
// carry a next target and are redirected there; other posts get "OK".
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	req, err := h.survey.RequestFromForm(r.PostForm)
	if err != nil {
		h.submitError(w, err)
		return
	}
	if q := r.URL.Query(); q.Get(survey.FieldEndSubmissionSet) != "" {
		req.SetSlug = strings.TrimSpace(q.Get(survey.FieldEndSubmissionSet))
		req.SetTag = strings.TrimSpace(q.Get(survey.FieldSubmissionSetTag))
	}

	if model.UserFromContext(r.Context()) == nil && h.config.LazyUsers {
		if err := h.survey.Validate(req); err != nil {
			h.submitError(w, err)
			return
		}
	}
	user := h.respondent(w, r)
	if user == nil {
		return
	}

	set, err := h.survey.Submit(user, req)
	if err != nil {
		h.submitError(w, err)
		return
	}
	if set != nil {
		slog.Debug("submission set created", "user_id", user.ID, "slug", set.Slug)
	}

	if next := r.PostForm.Get(survey.FieldNext); next != "" {
		if h.localTarget(next) {
			http.Redirect(w, r, next, http.StatusSeeOther)
			return
		}
		slog.Warn("ignoring submit redirect outside the site", "next", next)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// localTarget reports whether target is a path under the base path.
func (h *Handler) localTarget(target string) bool {
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return false
	}
	if strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return false
	}
	return strings.HasPrefix(u.Path, h.path("/"))
}

func (h *Handler) submitError(w http.ResponseWriter, err error) {
	var se *survey.SubmitError
	switch {
	case errors.As(err, &se):
		http.Error(w, se.Error(), http.StatusBadRequest)
	case errors.Is(err, survey.ErrNoUser):
		http.Error(w, "authentication required", http.StatusUnauthorized)
	default:
		slog.Error("failed to record submissions", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) handleScores(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	slugs := r.URL.Query()["q"]
	if len(slugs) == 0 {
		http.Error(w, "No questions supplied", http.StatusBadRequest)
		return
	}

	report, err := h.survey.Scores(user, slugs)
	if err != nil {
		slog.Error("failed to load scores", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	page, err := h.store.GetPage(chi.URLParam(r, "slug"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if page == nil {
		http.Error(w, appI18n.T(r.Context(), "PageNotFound"), http.StatusNotFound)
		return
	}

	view, err := h.renderer.Page(*page, plugin.PageOptions{
		User:     model.UserFromContext(r.Context()),
		Lang:     appI18n.Lang(r.Context()),
		BasePath: h.config.BasePath,
		CSRF:     model.CSRFTokenFromContext(r.Context()),
	})
	if err != nil {
		slog.Error("failed to render page", "page", page.Slug, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	render(w, r, http.StatusOK, views.Layout(view.Title, plugin.PageComponent(view)))
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	blockID, err := strconv.ParseInt(chi.URLParam(r, "blockID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid block ID", http.StatusBadRequest)
		return
	}
	page, err := h.store.GetPage(slug)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if page == nil {
		http.Error(w, appI18n.T(r.Context(), "PageNotFound"), http.StatusNotFound)
		return
	}
	var bulk *model.BulkAnswer
	for _, b := range page.Blocks {
		if b.ID == blockID && b.Kind == model.BlockBulkAnswer {
			bulk = b.Bulk
		}
	}
	if bulk == nil {
		http.Error(w, "no bulk answer block on this page", http.StatusNotFound)
		return
	}

	user := h.respondent(w, r)
	if user == nil {
		return
	}
	questions, err := h.store.QuestionsBySlugs(survey.QuestionSlugs(*page))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	n, err := h.survey.BulkAnswer(user, questions, bulk.AnswerValue)
	if err != nil {
		h.submitError(w, err)
		return
	}
	slog.Info("bulk answered", "page", slug, "value", bulk.AnswerValue, "count", n, "user_id", user.ID)

	if r.Header.Get("Accept") == "application/json" {
		writeJSON(w, http.StatusOK, map[string]any{
			"answered": n,
			"message":  appI18n.Tp(r.Context(), "QuestionsAnswered", n),
		})
		return
	}
	http.Redirect(w, r, h.path("/pages/"+slug), http.StatusSeeOther)
}
