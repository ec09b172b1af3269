package plugin

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/saq/internal/content"
	"github.com/pavelanni/saq/internal/i18n"
	"github.com/pavelanni/saq/internal/model"
	"github.com/pavelanni/saq/internal/scoring"
	"github.com/pavelanni/saq/internal/store"
	"github.com/pavelanni/saq/internal/survey"
	"github.com/pavelanni/saq/internal/visibility"
)

type fixture struct {
	store    *store.Store
	survey   *survey.Service
	renderer *Renderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	data, err := os.ReadFile(filepath.Join("..", "content", "testdata", "sports.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if _, err := content.Import(s, data); err != nil {
		t.Fatalf("content.Import: %v", err)
	}
	vis := visibility.New(s)
	svc := survey.New(s, vis)
	return &fixture{
		store:    s,
		survey:   svc,
		renderer: New(s, scoring.New(s), vis, svc),
	}
}

func (f *fixture) user(t *testing.T, username string) *model.User {
	t.Helper()
	id, err := f.store.CreateUser(model.User{Username: username, Role: model.UserRoleRespondent, Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u, err := f.store.GetUserByID(id)
	if err != nil || u == nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	return u
}

func (f *fixture) submit(t *testing.T, user *model.User, kv ...string) {
	t.Helper()
	req := survey.SubmitRequest{Answers: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		req.Answers[kv[i]] = kv[i+1]
	}
	if _, err := f.survey.Submit(user, req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func (f *fixture) page(t *testing.T, slug string) model.Page {
	t.Helper()
	p, err := f.store.GetPage(slug)
	if err != nil || p == nil {
		t.Fatalf("GetPage(%s): %v", slug, err)
	}
	return *p
}

func (f *fixture) render(t *testing.T, slug string, user *model.User) string {
	t.Helper()
	view, err := f.renderer.Page(f.page(t, slug), PageOptions{User: user, Lang: "en", BasePath: "/saq", CSRF: "tok"})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	var buf bytes.Buffer
	if err := PageComponent(view).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestQuestionView(t *testing.T) {
	f := newFixture(t)
	bill := f.user(t, "bill")
	block := model.Block{Kind: model.BlockQuestion, Question: "favourite-colour"}

	v, ok, err := f.renderer.Question(block, bill, "fr")
	if err != nil || !ok {
		t.Fatalf("Question: %v, %v", ok, err)
	}
	if v.Widget != model.WidgetRadio || v.Kind != "single" {
		t.Errorf("widget/kind = %s/%s", v.Widget, v.Kind)
	}
	if !v.Selected["green"] || len(v.Selected) != 1 {
		t.Errorf("expected default answer selected, got %v", v.Selected)
	}

	f.submit(t, bill, "favourite-colour", "blue")
	v, _, _ = f.renderer.Question(block, bill, "fr")
	if !v.Selected["blue"] || v.Selected["green"] {
		t.Errorf("expected stored answer selected, got %v", v.Selected)
	}
}

func TestQuestionHiddenUntilTriggered(t *testing.T) {
	f := newFixture(t)
	bill := f.user(t, "bill")
	block := model.Block{Kind: model.BlockQuestion, Question: "favourite-team"}

	if _, ok, err := f.renderer.Question(block, bill, "en"); err != nil || ok {
		t.Fatalf("expected hidden question, got %v, %v", ok, err)
	}
	if _, ok, _ := f.renderer.Question(block, nil, "en"); ok {
		t.Fatal("anonymous users never trigger dependencies")
	}
	f.submit(t, bill, "favourite-sport", "football", "favourite-team", "Arsenal")
	v, ok, err := f.renderer.Question(block, bill, "en")
	if err != nil || !ok {
		t.Fatalf("expected visible question, got %v, %v", ok, err)
	}
	if v.Text != "Arsenal" {
		t.Errorf("Text = %q, want Arsenal", v.Text)
	}
}

func TestNavEndCondition(t *testing.T) {
	f := newFixture(t)
	bill := f.user(t, "bill")
	nav := f.page(t, "sport").Blocks[3]

	v, err := f.renderer.Nav(nav, bill, "en", "")
	if err != nil {
		t.Fatalf("Nav: %v", err)
	}
	if v.Ended || v.Next.URL != "/pages/results" || v.Next.Label != "Next" {
		t.Errorf("unexpected next link %+v (ended=%v)", v.Next, v.Ended)
	}
	if v.Prev == nil || v.Prev.URL != "/pages/about-you" {
		t.Errorf("unexpected prev link %+v", v.Prev)
	}

	f.submit(t, bill, "favourite-sport", "cricket")
	v, _ = f.renderer.Nav(nav, bill, "en", "")
	if !v.Ended || v.Next.Label != "Finish early" {
		t.Errorf("expected end link, got %+v", v.Next)
	}
	if v.EndSubmissionSet != "assessment" || v.SubmissionSetTag != "favourites" {
		t.Errorf("set fields = %q/%q", v.EndSubmissionSet, v.SubmissionSetTag)
	}
	if want := "/submit?end_submission_set=assessment&submission_set_tag=favourites"; v.FinishAction != want {
		t.Errorf("FinishAction = %q, want %q", v.FinishAction, want)
	}

	v, _ = f.renderer.Nav(f.page(t, "about-you").Blocks[6], bill, "en", "")
	if v.FinishAction != "" {
		t.Errorf("nav without a submission set has FinishAction %q", v.FinishAction)
	}
}

func TestProgress(t *testing.T) {
	f := newFixture(t)
	bill := f.user(t, "bill")
	pages, _ := f.store.ListPages()
	about, sport := f.page(t, "about-you"), f.page(t, "sport")

	f.submit(t, bill, "favourite-colour", "red", "sports-you-play", "rugby")

	// Tree scope, optional questions excluded: colour, sport, played.
	v, err := f.renderer.Progress(about.Blocks[5], about, pages, bill)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if v.Answered != 2 || v.Total != 3 {
		t.Errorf("tree progress = %d/%d, want 2/3", v.Answered, v.Total)
	}

	// Tree scope by default, optional counted: all four questions.
	v, _ = f.renderer.Progress(sport.Blocks[2], sport, pages, bill)
	if v.Answered != 2 || v.Total != 4 || v.Percent != 50 {
		t.Errorf("tree progress with optional = %+v", v.ProgressReport)
	}

	pageOnly := model.Block{Kind: model.BlockProgressBar, Progress: &model.ProgressBar{Scope: model.ScopePage}}
	v, _ = f.renderer.Progress(pageOnly, sport, pages, bill)
	if v.Answered != 1 || v.Total != 1 {
		t.Errorf("page progress = %d/%d, want 1/1", v.Answered, v.Total)
	}
}

func TestScoring(t *testing.T) {
	f := newFixture(t)
	bill := f.user(t, "bill")
	f.submit(t, bill, "favourite-colour", "red", "favourite-sport", "football", "sports-you-play", "football,rugby,cricket")

	v, err := f.renderer.Scoring(f.page(t, "results").Blocks[0], bill, "en")
	if err != nil {
		t.Fatalf("Scoring: %v", err)
	}
	if len(v.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(v.Sections))
	}
	// favourites: red 10/30 and football 40/60.
	if got := int(math.Round(v.Sections[0].Percent)); got != 50 {
		t.Errorf("favourites = %d, want 50", got)
	}
	// sports: football 40/60 and everything played 350/350.
	if got := int(math.Round(v.Sections[1].Percent)); got != 83 {
		t.Errorf("sports = %d, want 83", got)
	}
	if got := int(math.Round(v.Overall)); got != 67 {
		t.Errorf("overall = %d, want 67", got)
	}
}

func TestHelpers(t *testing.T) {
	f := newFixture(t)
	bill := f.user(t, "bill")
	f.submit(t, bill, "favourite-colour", "blue", "favourite-sport", "cricket", "sports-you-play", "rugby,cricket")

	if p, err := f.renderer.PercentScore(bill, "favourite-colour"); err != nil || p != 100 {
		t.Errorf("PercentScore = %d, %v; want 100", p, err)
	}
	if p, _ := f.renderer.PercentScore(bill, "no-such-question"); p != 0 {
		t.Errorf("unknown question PercentScore = %d, want 0", p)
	}
	if p, _ := f.renderer.PercentScore(bill, "favourite-team"); p != 0 {
		t.Errorf("free text PercentScore = %d, want 0", p)
	}
	if p, err := f.renderer.AggregatePercentScoreByTags(bill, "favourites"); err != nil || p != 100 {
		t.Errorf("AggregatePercentScoreByTags = %d, %v; want 100", p, err)
	}
	if raw, _ := f.renderer.RawAnswer(bill, "sports-you-play"); raw != "rugby,cricket" {
		t.Errorf("RawAnswer = %q", raw)
	}
	if raw, _ := f.renderer.RawAnswer(nil, "sports-you-play"); raw != "" {
		t.Errorf("anonymous RawAnswer = %q", raw)
	}
	if nice, _ := f.renderer.NiceAnswer(bill, "favourite-colour", "fr"); nice != "Bleu" {
		t.Errorf("NiceAnswer = %q, want Bleu", nice)
	}
	if nice, _ := f.renderer.NiceAnswer(bill, "sports-you-play", "en"); nice != "Rugby, Cricket" {
		t.Errorf("NiceAnswer = %q", nice)
	}

	kinds := map[model.QuestionType]string{
		model.QuestionSingle: "single", model.QuestionMulti: "multiple", model.QuestionFree: "free",
	}
	for typ, want := range kinds {
		if got := QuestionKind(model.Question{Type: typ}); got != want {
			t.Errorf("QuestionKind(%s) = %q, want %q", typ, got, want)
		}
	}
}

func TestTextHelpers(t *testing.T) {
	f := newFixture(t)
	bill := f.user(t, "bill")
	block := f.page(t, "results").Blocks[1]

	v, ok, err := f.renderer.Text(block, nil, "en")
	if err != nil || !ok {
		t.Fatalf("Text: %v (ok=%v)", err, ok)
	}
	if want := "Your colour:  (0%). Favourites 0%. You play ."; v.Body != want {
		t.Errorf("anonymous body = %q, want %q", v.Body, want)
	}

	f.submit(t, bill, "favourite-colour", "blue", "favourite-sport", "cricket", "sports-you-play", "rugby,cricket")
	v, _, err = f.renderer.Text(block, bill, "fr")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if want := "Your colour: Bleu (100%). Favourites 100%. You play rugby,cricket."; v.Body != want {
		t.Errorf("body = %q, want %q", v.Body, want)
	}

	out, _ := f.renderer.Fill("{{ unknown_helper x }} {{raw_answer favourite-colour}}", bill, "en")
	if out != "{{ unknown_helper x }} blue" {
		t.Errorf("Fill = %q", out)
	}
}

func TestRenderPage(t *testing.T) {
	f := newFixture(t)
	bill := f.user(t, "bill")

	html := f.render(t, "about-you", bill)
	for _, want := range []string{
		`<form class="saq-form" method="post" action="/saq/submit">`,
		`name="csrf_token" value="tok"`,
		`Tell us about yourself.`,
		`value="green" checked`,
		`<optgroup label="Ball games">`,
		`<optgroup label="Other">`,
		`formaction="/saq/pages/about-you/bulk/`,
		`0 of 3 answered`,
		`<option value="">`,
		`<button type="submit" class="saq-next" name="next" value="/saq/pages/sport">Next</button>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
	if strings.Contains(html, `data-question="favourite-team"`) {
		t.Error("favourite-team should be hidden")
	}

	f.submit(t, bill, "favourite-sport", "football")
	html = f.render(t, "about-you", bill)
	if !strings.Contains(html, `data-question="favourite-team"`) {
		t.Error("favourite-team should be shown once football is chosen")
	}
	if !strings.Contains(html, `<option value="football" selected>`) {
		t.Error("stored drop-down answer should be selected")
	}

	html = f.render(t, "sport", bill)
	if !strings.Contains(html, "Football fan!") {
		t.Error("dependent text block should be shown")
	}
	if !strings.Contains(html, `name="next" value="/saq/pages/about-you">Back</button>`) {
		t.Error("back button should post the page")
	}
	want := `formaction="/saq/submit?end_submission_set=assessment&amp;submission_set_tag=favourites"`
	if !strings.Contains(html, want) {
		t.Errorf("next button should close the submission set, missing %s", want)
	}
}

func TestRenderEscapes(t *testing.T) {
	f := newFixture(t)
	bill := f.user(t, "bill")
	f.submit(t, bill, "favourite-sport", "football", "favourite-team", `<script>alert(1)</script>`)

	html := f.render(t, "about-you", bill)
	if strings.Contains(html, "<script>") {
		t.Error("free text answer must be escaped")
	}
}
