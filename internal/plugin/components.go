package plugin

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/a-h/templ"

	"github.com/pavelanni/saq/internal/i18n"
	"github.com/pavelanni/saq/internal/model"
	"github.com/pavelanni/saq/internal/survey"
)

var esc = templ.EscapeString[string]

// PageComponent draws a page as one form. Bulk answer buttons post the same
// form to their own action.
func PageComponent(v PageView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<section class="saq-page" data-page="%s"><h1>%s</h1>`,
			esc(v.Page.Slug), esc(v.Title)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<form class="saq-form" method="post" action="%s">`+
			`<input type="hidden" name="%s" value="%s">`,
			esc(v.Action), survey.FieldCSRFToken, esc(v.CSRF)); err != nil {
			return err
		}
		for _, b := range v.Blocks {
			if err := b.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, `<button type="submit" class="saq-save">%s</button></form></section>`,
			esc(i18n.T(ctx, "SaveAnswers")))
		return err
	})
}

func questionComponent(v QuestionView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		q := v.Question
		optional := ""
		if q.Optional {
			optional = ` data-optional="true"`
		}
		if _, err := fmt.Fprintf(w, `<div class="saq-question saq-%s" data-question="%s" data-type="%s"%s>`,
			esc(string(v.Widget)), esc(q.Slug), esc(v.Kind), optional); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<p class="saq-label">%s</p>`, esc(q.Label.Get(v.Lang))); err != nil {
			return err
		}
		if help := q.HelpText.Get(v.Lang); help != "" {
			if _, err := fmt.Fprintf(w, `<p class="saq-help">%s</p>`, esc(help)); err != nil {
				return err
			}
		}

		var err error
		switch v.Widget {
		case model.WidgetRadio:
			err = writeChoices(w, v, "radio")
		case model.WidgetCheckbox:
			err = writeChoices(w, v, "checkbox")
		case model.WidgetDropDown:
			err = writeSelect(ctx, w, v, false)
		case model.WidgetGroupedDropDown:
			err = writeSelect(ctx, w, v, true)
		case model.WidgetFreeText:
			_, err = fmt.Fprintf(w, `<textarea name="%s">%s</textarea>`, esc(q.Slug), esc(v.Text))
		}
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, `<p class="saq-question-error" hidden></p></div>`)
		return err
	})
}

func writeChoices(w io.Writer, v QuestionView, inputType string) error {
	for _, a := range v.Question.Answers() {
		checked := ""
		if v.Selected[a.Slug] {
			checked = " checked"
		}
		if _, err := fmt.Fprintf(w, `<label><input type="%s" name="%s" value="%s"%s> %s</label>`,
			inputType, esc(v.Question.Slug), esc(a.Slug), checked, esc(a.Title.Get(v.Lang))); err != nil {
			return err
		}
		if help := a.HelpText.Get(v.Lang); help != "" {
			if _, err := fmt.Fprintf(w, `<span class="saq-answer-help">%s</span>`, esc(help)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSelect(ctx context.Context, w io.Writer, v QuestionView, grouped bool) error {
	if _, err := fmt.Fprintf(w, `<select name="%s"><option value="">%s</option>`,
		esc(v.Question.Slug), esc(i18n.T(ctx, "ChooseAnswer"))); err != nil {
		return err
	}
	group, open := "", false
	for _, a := range v.Question.Answers() {
		if g := a.Group.Get(v.Lang); grouped && (!open || g != group) {
			if open {
				if _, err := io.WriteString(w, `</optgroup>`); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, `<optgroup label="%s">`, esc(g)); err != nil {
				return err
			}
			group, open = g, true
		}
		selected := ""
		if v.Selected[a.Slug] {
			selected = " selected"
		}
		if _, err := fmt.Fprintf(w, `<option value="%s"%s>%s</option>`,
			esc(a.Slug), selected, esc(a.Title.Get(v.Lang))); err != nil {
			return err
		}
	}
	if open {
		if _, err := io.WriteString(w, `</optgroup>`); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, `</select>`)
	return err
}

func textComponent(v TextView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="saq-text">%s</div>`, esc(v.Body))
		return err
	})
}

// navComponent draws Back and Next as submit buttons, so the page's answers
// are saved before /submit redirects to the button's target.
func navComponent(v NavView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<nav class="saq-nav">`); err != nil {
			return err
		}
		if v.Prev != nil {
			if err := writeNavButton(w, "saq-prev", *v.Prev, i18n.T(ctx, "Back"), ""); err != nil {
				return err
			}
		}
		if v.Next != nil {
			fallback, class := i18n.T(ctx, "Next"), "saq-next"
			if v.Ended {
				fallback, class = i18n.T(ctx, "Finish"), "saq-end"
			}
			if err := writeNavButton(w, class, *v.Next, fallback, v.FinishAction); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</nav>`)
		return err
	})
}

func writeNavButton(w io.Writer, class string, l Link, fallback, action string) error {
	label := l.Label
	if label == "" {
		label = fallback
	}
	formaction := ""
	if action != "" {
		formaction = fmt.Sprintf(` formaction="%s"`, esc(action))
	}
	_, err := fmt.Fprintf(w, `<button type="submit" class="%s" name="%s" value="%s"%s>%s</button>`,
		class, survey.FieldNext, esc(l.URL), formaction, esc(label))
	return err
}

func progressComponent(v ProgressView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		label := i18n.Td(ctx, "ProgressLabel", map[string]any{"Answered": v.Answered, "Total": v.Total})
		_, err := fmt.Fprintf(w,
			`<div class="saq-progress"><progress max="%d" value="%d">%s</progress><span>%s</span></div>`,
			v.Total, v.Answered, formatPercent(v.Percent), esc(label))
		return err
	})
}

func scoringComponent(v ScoringView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<table class="saq-scores"><tbody>`); err != nil {
			return err
		}
		group := ""
		for _, s := range v.Sections {
			if s.Group != "" && s.Group != group {
				if _, err := fmt.Fprintf(w, `<tr class="saq-score-group"><th colspan="2">%s</th></tr>`,
					esc(s.Group)); err != nil {
					return err
				}
			}
			group = s.Group
			if _, err := fmt.Fprintf(w, `<tr data-tag="%s"><td>%s</td><td>%s</td></tr>`,
				esc(s.Tag), esc(s.Label), formatPercent(s.Percent)); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, `</tbody><tfoot><tr><th>%s</th><th>%s</th></tr></tfoot></table>`,
			esc(i18n.T(ctx, "Overall")), formatPercent(v.Overall))
		return err
	})
}

func bulkComponent(v BulkView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if v.Eligible == 0 {
			return nil
		}
		_, err := fmt.Fprintf(w,
			`<button type="submit" class="saq-bulk" formaction="%s" data-value="%s">%s</button>`,
			esc(v.Action), esc(v.Value), esc(v.Label))
		return err
	})
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(p)))
}
