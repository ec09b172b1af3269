// Package plugin renders questionnaire pages block by block and provides the
// score and answer helpers used by result pages.
package plugin

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/pavelanni/saq/internal/model"
	"github.com/pavelanni/saq/internal/scoring"
	"github.com/pavelanni/saq/internal/survey"
	"github.com/pavelanni/saq/internal/visibility"
)

// Store is the read access the renderer needs.
type Store interface {
	GetQuestion(slug string) (*model.Question, error)
	QuestionsBySlugs(slugs []string) ([]model.Question, error)
	GetSubmission(userID int64, question string) (*model.Submission, error)
	ListPages() ([]model.Page, error)
}

// Renderer builds view models for page blocks and turns them into
// components.
type Renderer struct {
	store  Store
	scorer *scoring.Scorer
	vis    *visibility.Resolver
	survey *survey.Service
}

// New creates a Renderer.
func New(st Store, scorer *scoring.Scorer, vis *visibility.Resolver, svc *survey.Service) *Renderer {
	return &Renderer{store: st, scorer: scorer, vis: vis, survey: svc}
}

// QuestionView is a question block ready to draw.
type QuestionView struct {
	Question model.Question
	Widget   model.Widget
	Kind     string
	Selected map[string]bool
	Text     string
	Lang     string
}

// TextView is a text block ready to draw.
type TextView struct {
	Body string
}

// Link is a navigation target.
type Link struct {
	URL   string
	Label string
}

// NavView is a form navigation block. When the end condition is met Next
// points at the end page and Ended is set. FinishAction, when set, is the
// submit URL for the Next button that also closes the submission set.
type NavView struct {
	Prev             *Link
	Next             *Link
	Ended            bool
	EndSubmissionSet string
	SubmissionSetTag string
	FinishAction     string
}

// ProgressView is a progress bar block.
type ProgressView struct {
	survey.ProgressReport
}

// SectionScore is one row of a sectioned score.
type SectionScore struct {
	Group   string
	Label   string
	Tag     string
	Percent float64
}

// ScoringView is a sectioned scoring block. Overall is the mean of the
// section percentages.
type ScoringView struct {
	Sections []SectionScore
	Overall  float64
}

// BulkView is a bulk answer button.
type BulkView struct {
	Action   string
	Label    string
	Value    string
	Eligible int
}

// PageView is a page with its visible blocks rendered.
type PageView struct {
	Page   model.Page
	Title  string
	Action string
	CSRF   string
	Blocks []templ.Component
}

// PageOptions carries request state into Page.
type PageOptions struct {
	User     *model.User
	Lang     string
	BasePath string
	CSRF     string
}

// Page renders every block on page for the user. Hidden questions and text
// blocks are left out.
func (r *Renderer) Page(page model.Page, opts PageOptions) (PageView, error) {
	view := PageView{
		Page:   page,
		Title:  page.Title.Get(opts.Lang),
		Action: opts.BasePath + "/submit",
		CSRF:   opts.CSRF,
	}

	pages, err := r.store.ListPages()
	if err != nil {
		return view, fmt.Errorf("list pages: %w", err)
	}

	for _, b := range page.Blocks {
		var c templ.Component
		switch b.Kind {
		case model.BlockQuestion:
			qv, ok, err := r.Question(b, opts.User, opts.Lang)
			if err != nil {
				return view, err
			}
			if ok {
				c = questionComponent(qv)
			}
		case model.BlockText:
			tv, ok, err := r.Text(b, opts.User, opts.Lang)
			if err != nil {
				return view, err
			}
			if ok {
				c = textComponent(tv)
			}
		case model.BlockFormNav:
			nv, err := r.Nav(b, opts.User, opts.Lang, opts.BasePath)
			if err != nil {
				return view, err
			}
			c = navComponent(nv)
		case model.BlockProgressBar:
			pv, err := r.Progress(b, page, pages, opts.User)
			if err != nil {
				return view, err
			}
			c = progressComponent(pv)
		case model.BlockSectionedScoring:
			sv, err := r.Scoring(b, opts.User, opts.Lang)
			if err != nil {
				return view, err
			}
			c = scoringComponent(sv)
		case model.BlockBulkAnswer:
			bv, err := r.Bulk(b, page, opts.User, opts.Lang, opts.BasePath)
			if err != nil {
				return view, err
			}
			c = bulkComponent(bv)
		}
		if c != nil {
			view.Blocks = append(view.Blocks, c)
		}
	}
	return view, nil
}

// Question builds the view for a question block. ok is false when the
// question's dependency is not triggered.
func (r *Renderer) Question(b model.Block, user *model.User, lang string) (QuestionView, bool, error) {
	q, err := r.store.GetQuestion(b.Question)
	if err != nil {
		return QuestionView{}, false, err
	}
	if q == nil {
		return QuestionView{}, false, fmt.Errorf("question %q not found", b.Question)
	}
	visible, err := r.vis.Triggered(user, q.DependsOn, visibility.Current)
	if err != nil || !visible {
		return QuestionView{}, false, err
	}

	view := QuestionView{
		Question: *q,
		Widget:   b.Widget,
		Kind:     QuestionKind(*q),
		Selected: make(map[string]bool),
		Lang:     lang,
	}
	if view.Widget == "" {
		view.Widget = model.DefaultWidget(q.Type)
	}

	sub, err := r.current(user, q.Slug)
	if err != nil {
		return view, false, err
	}
	switch {
	case sub != nil && q.Type == model.QuestionFree:
		view.Text = sub.Answer
	case sub != nil:
		for _, a := range sub.AnswerList() {
			view.Selected[a] = true
		}
	default:
		for _, a := range q.Answers() {
			if a.IsDefault {
				view.Selected[a.Slug] = true
			}
		}
	}
	return view, true, nil
}

// Text builds the view for a text block. ok is false when the block's
// dependency is not triggered.
func (r *Renderer) Text(b model.Block, user *model.User, lang string) (TextView, bool, error) {
	if b.Text == nil {
		return TextView{}, false, nil
	}
	visible, err := r.vis.Triggered(user, b.Text.DependsOn, visibility.Current)
	if err != nil || !visible {
		return TextView{}, false, err
	}
	body, err := r.Fill(b.Text.Body.Get(lang), user, lang)
	if err != nil {
		return TextView{}, false, err
	}
	return TextView{Body: body}, true, nil
}

// Nav builds the view for a form navigation block.
func (r *Renderer) Nav(b model.Block, user *model.User, lang, basePath string) (NavView, error) {
	var view NavView
	nav := b.Nav
	if nav == nil {
		return view, nil
	}
	if nav.PrevPage != "" {
		view.Prev = &Link{URL: pageURL(basePath, nav.PrevPage), Label: nav.PrevPageLabel.Get(lang)}
	}
	if nav.NextPage != "" {
		view.Next = &Link{URL: pageURL(basePath, nav.NextPage), Label: nav.NextPageLabel.Get(lang)}
	}
	if nav.EndPage != "" && nav.EndCondition != nil {
		ended, err := r.vis.Triggered(user, nav.EndCondition, visibility.Current)
		if err != nil {
			return view, err
		}
		if ended {
			view.Next = &Link{URL: pageURL(basePath, nav.EndPage), Label: nav.EndPageLabel.Get(lang)}
			view.Ended = true
		}
	}
	view.EndSubmissionSet = nav.EndSubmissionSet
	view.SubmissionSetTag = nav.SubmissionSetTag
	if view.Next != nil && nav.EndSubmissionSet != "" && nav.SubmissionSetTag != "" {
		q := url.Values{
			survey.FieldEndSubmissionSet: {nav.EndSubmissionSet},
			survey.FieldSubmissionSetTag: {nav.SubmissionSetTag},
		}
		view.FinishAction = basePath + "/submit?" + q.Encode()
	}
	return view, nil
}

// Progress builds the view for a progress bar on page.
func (r *Renderer) Progress(b model.Block, page model.Page, pages []model.Page, user *model.User) (ProgressView, error) {
	bar := model.ProgressBar{Scope: model.ScopeTree}
	if b.Progress != nil {
		bar = *b.Progress
	}
	slugs := survey.QuestionSlugs(survey.ScopePages(pages, page, bar.Scope)...)
	questions, err := r.store.QuestionsBySlugs(slugs)
	if err != nil {
		return ProgressView{}, fmt.Errorf("load questions: %w", err)
	}
	report, err := r.survey.Progress(user, questions, bar.CountOptional)
	if err != nil {
		return ProgressView{}, err
	}
	return ProgressView{ProgressReport: report}, nil
}

// Scoring builds the view for a sectioned scoring block.
func (r *Renderer) Scoring(b model.Block, user *model.User, lang string) (ScoringView, error) {
	var view ScoringView
	if b.Scoring == nil {
		return view, nil
	}
	sections := append([]model.ScoreSection(nil), b.Scoring.Sections...)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })

	var total float64
	for _, sec := range sections {
		p, err := r.scorer.AggregateScoreForUserByTags(user, []string{sec.Tag})
		if err != nil {
			return view, err
		}
		label := sec.Label.Get(lang)
		if label == "" {
			label = sec.Tag
		}
		view.Sections = append(view.Sections, SectionScore{
			Group: sec.Group.Get(lang), Label: label, Tag: sec.Tag, Percent: p,
		})
		total += p
	}
	if len(view.Sections) > 0 {
		view.Overall = total / float64(len(view.Sections))
	}
	return view, nil
}

// Bulk builds the view for a bulk answer block on page.
func (r *Renderer) Bulk(b model.Block, page model.Page, user *model.User, lang, basePath string) (BulkView, error) {
	view := BulkView{Action: fmt.Sprintf("%s/pages/%s/bulk/%d", basePath, page.Slug, b.ID)}
	if b.Bulk == nil {
		return view, nil
	}
	view.Label = b.Bulk.Label.Get(lang)
	view.Value = b.Bulk.AnswerValue

	questions, err := r.store.QuestionsBySlugs(survey.QuestionSlugs(page))
	if err != nil {
		return view, fmt.Errorf("load questions: %w", err)
	}
	eligible, err := r.survey.BulkEligible(user, questions, view.Value)
	if err != nil {
		return view, err
	}
	view.Eligible = len(eligible)
	return view, nil
}

func (r *Renderer) current(user *model.User, slug string) (*model.Submission, error) {
	if user == nil {
		return nil, nil
	}
	return r.store.GetSubmission(user.ID, slug)
}

func pageURL(basePath, slug string) string {
	return basePath + "/pages/" + slug
}

var helperRE = regexp.MustCompile(`\{\{\s*(percent_score|aggregate_score|raw_answer|nice_answer)\s+([^\s}]+)\s*\}\}`)

// Fill replaces helper calls in a text body with the user's values:
//
//	{{ percent_score favourite-colour }}
//	{{ aggregate_score favourites,sports }}
//	{{ raw_answer sports-you-play }}
//	{{ nice_answer sports-you-play }}
//
// Anything else is left as written.
func (r *Renderer) Fill(body string, user *model.User, lang string) (string, error) {
	var fillErr error
	out := helperRE.ReplaceAllStringFunc(body, func(call string) string {
		m := helperRE.FindStringSubmatch(call)
		var (
			value string
			err   error
		)
		switch m[1] {
		case "percent_score":
			var p int
			p, err = r.PercentScore(user, m[2])
			value = strconv.Itoa(p)
		case "aggregate_score":
			var p int
			p, err = r.AggregatePercentScoreByTags(user, m[2])
			value = strconv.Itoa(p)
		case "raw_answer":
			value, err = r.RawAnswer(user, m[2])
		case "nice_answer":
			value, err = r.NiceAnswer(user, m[2], lang)
		}
		if err != nil && fillErr == nil {
			fillErr = fmt.Errorf("%s %s: %w", m[1], m[2], err)
		}
		return value
	})
	return out, fillErr
}

// PercentScore is the user's rounded percentage score on a question. It is
// 0 for unknown questions and for questions that cannot be scored.
func (r *Renderer) PercentScore(user *model.User, slug string) (int, error) {
	q, err := r.store.GetQuestion(slug)
	if err != nil || q == nil {
		return 0, err
	}
	p, err := r.scorer.PercentScoreForUser(*q, user)
	if err != nil || p == nil {
		return 0, err
	}
	return int(math.Round(*p)), nil
}

// AggregatePercentScoreByTags is the user's rounded aggregate score over
// questions carrying any of the comma-separated tags.
func (r *Renderer) AggregatePercentScoreByTags(user *model.User, tags string) (int, error) {
	var list []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			list = append(list, t)
		}
	}
	p, err := r.scorer.AggregateScoreForUserByTags(user, list)
	if err != nil {
		return 0, err
	}
	return int(math.Round(p)), nil
}

// RawAnswer is the user's stored answer text, or "" when unanswered.
func (r *Renderer) RawAnswer(user *model.User, slug string) (string, error) {
	sub, err := r.current(user, slug)
	if err != nil || sub == nil {
		return "", err
	}
	return sub.Answer, nil
}

// NiceAnswer is the user's answer with each slug replaced by its title.
// Free-text answers are returned as entered.
func (r *Renderer) NiceAnswer(user *model.User, slug, lang string) (string, error) {
	sub, err := r.current(user, slug)
	if err != nil || sub == nil {
		return "", err
	}
	q, err := r.store.GetQuestion(slug)
	if err != nil || q == nil {
		return "", err
	}
	if q.Type == model.QuestionFree {
		return sub.Answer, nil
	}
	var titles []string
	for _, a := range sub.AnswerList() {
		ans, ok := q.AnswerSet.Find(a)
		if !ok {
			return "", nil
		}
		titles = append(titles, ans.Title.Get(lang))
	}
	return strings.Join(titles, ", "), nil
}

// QuestionKind names a question type for client scripts.
func QuestionKind(q model.Question) string {
	switch q.Type {
	case model.QuestionSingle:
		return "single"
	case model.QuestionMulti:
		return "multiple"
	case model.QuestionFree:
		return "free"
	}
	return ""
}
