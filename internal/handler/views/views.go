// Package views holds the page chrome shared by every HTML response.
package views

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/saq/internal/i18n"
	"github.com/pavelanni/saq/internal/model"
)

// Layout wraps body in the HTML document with a header bar.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		base := model.BasePathFromContext(ctx)
		appTitle := appI18n.T(ctx, "AppTitle")
		if title == "" {
			title = appTitle
		}
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="%s"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>%s</title></head><body><header><a href="%s/">%s</a>`,
			templ.EscapeString(appI18n.Lang(ctx)), templ.EscapeString(title),
			templ.EscapeString(base), templ.EscapeString(appTitle)); err != nil {
			return err
		}
		if user := model.UserFromContext(ctx); user != nil && !user.Lazy {
			if _, err := fmt.Fprintf(w,
				`<form method="post" action="%s/logout"><input type="hidden" name="csrf_token" value="%s">`+
					`<span>%s</span> <button type="submit">%s</button></form>`,
				templ.EscapeString(base), templ.EscapeString(model.CSRFTokenFromContext(ctx)),
				templ.EscapeString(displayName(user)), templ.EscapeString(appI18n.T(ctx, "Logout"))); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</header><main>`); err != nil {
			return err
		}
		if body != nil {
			if err := body.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

func displayName(u *model.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// LoginPage renders the sign-in form with an optional error message.
func LoginPage(errMsg string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		base := model.BasePathFromContext(ctx)
		if _, err := fmt.Fprintf(w, `<h1>%s</h1>`, templ.EscapeString(appI18n.T(ctx, "Login"))); err != nil {
			return err
		}
		if errMsg != "" {
			if _, err := fmt.Fprintf(w, `<p class="error">%s</p>`, templ.EscapeString(errMsg)); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, `<form method="post" action="%s/login">`+
			`<input type="hidden" name="csrf_token" value="%s">`+
			`<label>%s <input type="text" name="username" required></label>`+
			`<label>%s <input type="password" name="password" required></label>`+
			`<button type="submit">%s</button></form>`,
			templ.EscapeString(base), templ.EscapeString(model.CSRFTokenFromContext(ctx)),
			templ.EscapeString(appI18n.T(ctx, "Username")), templ.EscapeString(appI18n.T(ctx, "Password")),
			templ.EscapeString(appI18n.T(ctx, "Login")))
		return err
	})
	return Layout("", body)
}

// IndexPage lists the root pages of each questionnaire.
func IndexPage(pages []model.Page) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		base := model.BasePathFromContext(ctx)
		lang := appI18n.Lang(ctx)
		if _, err := io.WriteString(w, `<ul class="saq-index">`); err != nil {
			return err
		}
		for _, p := range pages {
			if p.Parent != "" {
				continue
			}
			title := p.Title.Get(lang)
			if title == "" {
				title = p.Slug
			}
			href := templ.URL(base + "/pages/" + p.Slug)
			if _, err := fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`,
				templ.EscapeString(string(href)), templ.EscapeString(title)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</ul>`)
		return err
	})
	return Layout("", body)
}
