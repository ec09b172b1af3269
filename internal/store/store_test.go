package store

import (
	"reflect"
	"testing"

	"github.com/pavelanni/saq/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sportsDocument() model.Document {
	return model.Document{
		AnswerSets: []model.AnswerSet{
			{Slug: "colours", Title: model.Plain("Colours"), Answers: []model.Answer{
				{Slug: "red", Title: model.Plain("Red"), Score: 10, Order: 1},
				{Slug: "green", Title: model.Plain("Green"), Score: 20, Order: 2},
				{Slug: "blue", Title: model.Text{"en": "Blue", "fr": "Bleu"}, Score: 30, Order: 3},
			}},
			{Slug: "sports", Answers: []model.Answer{
				{Slug: "football", Title: model.Plain("Football"), Score: 40},
				{Slug: "cricket", Title: model.Plain("Cricket"), Score: 60},
			}},
			{Slug: "played", Answers: []model.Answer{
				{Slug: "football", Title: model.Plain("Football"), Score: 100},
				{Slug: "rugby", Title: model.Plain("Rugby"), Score: 50},
				{Slug: "cricket", Title: model.Plain("Cricket"), Score: 200},
			}},
		},
		Questions: []model.Question{
			{Slug: "favourite-colour", Type: model.QuestionSingle, AnswerSetSlug: "colours", Tags: []string{"favourites"}},
			{Slug: "favourite-sport", Type: model.QuestionSingle, AnswerSetSlug: "sports", Tags: []string{"favourites", "sports"}},
			{Slug: "sports-you-play", Type: model.QuestionMulti, AnswerSetSlug: "played", Tags: []string{"sports"}},
			{Slug: "favourite-team", Type: model.QuestionFree, Optional: true,
				DependsOn: &model.Dependency{Question: "favourite-sport", Answer: "football"}},
		},
		Pages: []model.Page{
			{Slug: "intro", Title: model.Plain("Intro"), Blocks: []model.Block{
				{Kind: model.BlockQuestion, Question: "favourite-colour"},
				{Kind: model.BlockProgressBar, Progress: &model.ProgressBar{CountOptional: true}},
			}},
			{Slug: "sport", Parent: "intro", Position: 1, Blocks: []model.Block{
				{Kind: model.BlockQuestion, Question: "favourite-sport", Widget: model.WidgetDropDown},
			}},
		},
	}
}

func importSports(t *testing.T, s *Store) {
	t.Helper()
	if err := s.ImportDocument(sportsDocument()); err != nil {
		t.Fatalf("ImportDocument: %v", err)
	}
}

func createTestUser(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{Username: username, Role: model.UserRoleRespondent, Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func TestImportAndGetQuestion(t *testing.T) {
	s := newTestStore(t)
	importSports(t, s)

	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 questions, got %d", count)
	}

	q, err := s.GetQuestion("favourite-colour")
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q == nil {
		t.Fatal("expected question, got nil")
	}
	if q.Type != model.QuestionSingle {
		t.Errorf("expected type S, got %q", q.Type)
	}
	if !reflect.DeepEqual(q.Tags, []string{"favourites"}) {
		t.Errorf("unexpected tags %v", q.Tags)
	}
	var slugs []string
	for _, a := range q.Answers() {
		slugs = append(slugs, a.Slug)
	}
	if !reflect.DeepEqual(slugs, []string{"red", "green", "blue"}) {
		t.Errorf("answers out of order: %v", slugs)
	}
	blue, ok := q.AnswerSet.Find("blue")
	if !ok || blue.Title.Get("fr") != "Bleu" {
		t.Errorf("expected localized blue answer, got %+v", blue)
	}

	team, err := s.GetQuestion("favourite-team")
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if team.AnswerSet != nil {
		t.Error("free-text question should have no answer set")
	}
	if team.DependsOn == nil || team.DependsOn.Answer != "football" {
		t.Errorf("dependency not stored: %+v", team.DependsOn)
	}

	missing, err := s.GetQuestion("no-such-question")
	if err != nil {
		t.Fatalf("GetQuestion missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown slug, got %+v", missing)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	importSports(t, s)

	doc := sportsDocument()
	doc.AnswerSets[0].Answers = doc.AnswerSets[0].Answers[:1]
	doc.Questions[0].Tags = []string{"colour"}
	if err := s.ImportDocument(doc); err != nil {
		t.Fatalf("re-import: %v", err)
	}

	q, err := s.GetQuestion("favourite-colour")
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if len(q.Answers()) != 1 {
		t.Errorf("expected answers to be replaced, got %d", len(q.Answers()))
	}
	if !reflect.DeepEqual(q.Tags, []string{"colour"}) {
		t.Errorf("expected tags to be replaced, got %v", q.Tags)
	}
	count, _ := s.QuestionCount()
	if count != 4 {
		t.Errorf("expected 4 questions after re-import, got %d", count)
	}
}

func TestImportUnknownAnswerSet(t *testing.T) {
	s := newTestStore(t)
	doc := model.Document{Questions: []model.Question{
		{Slug: "q", Type: model.QuestionSingle, AnswerSetSlug: "missing"},
	}}
	if err := s.ImportDocument(doc); err == nil {
		t.Fatal("expected error for unknown answer set")
	}
	count, _ := s.QuestionCount()
	if count != 0 {
		t.Errorf("failed import must not leave rows, got %d questions", count)
	}
}

func TestQuestionsByTags(t *testing.T) {
	s := newTestStore(t)
	importSports(t, s)

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"single tag", []string{"favourites"}, []string{"favourite-colour", "favourite-sport"}},
		{"overlapping tags are distinct", []string{"favourites", "sports"}, []string{"favourite-colour", "favourite-sport", "sports-you-play"}},
		{"unknown tag", []string{"nope"}, nil},
		{"no tags", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := s.QuestionsByTags(tt.tags)
			if err != nil {
				t.Fatalf("QuestionsByTags: %v", err)
			}
			var got []string
			for _, q := range qs {
				got = append(got, q.Slug)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPages(t *testing.T) {
	s := newTestStore(t)
	importSports(t, s)

	p, err := s.GetPage("sport")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if p.Parent != "intro" {
		t.Errorf("expected parent intro, got %q", p.Parent)
	}
	if len(p.Blocks) != 1 || p.Blocks[0].Widget != model.WidgetDropDown {
		t.Fatalf("unexpected blocks %+v", p.Blocks)
	}

	pages, err := s.ListPages()
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 2 || pages[0].Slug != "intro" {
		t.Fatalf("unexpected pages %+v", pages)
	}
	if pages[0].Blocks[1].Progress == nil || !pages[0].Blocks[1].Progress.CountOptional {
		t.Errorf("progress bar config lost: %+v", pages[0].Blocks[1])
	}

	none, err := s.GetPage("missing")
	if err != nil || none != nil {
		t.Errorf("expected nil, nil for unknown page, got %v, %v", none, err)
	}
}

func TestSaveSubmissionsUpsert(t *testing.T) {
	s := newTestStore(t)
	importSports(t, s)
	uid := createTestUser(t, s, "uncle_bill")

	if _, err := s.SaveSubmissions(uid, []model.Submission{{Question: "favourite-colour", Answer: "red", Score: 10}}, "", ""); err != nil {
		t.Fatalf("SaveSubmissions: %v", err)
	}
	if _, err := s.SaveSubmissions(uid, []model.Submission{{Question: "favourite-colour", Answer: "green", Score: 20}}, "", ""); err != nil {
		t.Fatalf("SaveSubmissions update: %v", err)
	}

	count, err := s.CountSubmissions(uid)
	if err != nil {
		t.Fatalf("CountSubmissions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 submission row, got %d", count)
	}
	sub, err := s.GetSubmission(uid, "favourite-colour")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Answer != "green" || sub.Score != 20 {
		t.Errorf("expected green/20, got %s/%d", sub.Answer, sub.Score)
	}

	other := createTestUser(t, s, "auntie_rach")
	none, err := s.GetSubmission(other, "favourite-colour")
	if err != nil || none != nil {
		t.Errorf("expected no submission for other user, got %v, %v", none, err)
	}
}

func TestSubmissionSets(t *testing.T) {
	s := newTestStore(t)
	importSports(t, s)
	uid := createTestUser(t, s, "uncle_bill")

	batch := []model.Submission{
		{Question: "favourite-colour", Answer: "red", Score: 10},
		{Question: "favourite-sport", Answer: "cricket", Score: 60},
		{Question: "sports-you-play", Answer: "rugby", Score: 50},
	}

	set, err := s.SaveSubmissions(uid, batch, "favourites", "assessment")
	if err != nil {
		t.Fatalf("SaveSubmissions: %v", err)
	}
	if set == nil || set.Slug != "assessment" {
		t.Fatalf("expected set 'assessment', got %+v", set)
	}
	inSet, err := s.SubmissionsInSet(set.ID)
	if err != nil {
		t.Fatalf("SubmissionsInSet: %v", err)
	}
	if len(inSet) != 2 {
		t.Fatalf("expected 2 tagged submissions in set, got %d", len(inSet))
	}
	if sub, _ := s.GetSubmission(uid, "sports-you-play"); sub == nil {
		t.Error("untagged submission should stay outside the set")
	}
	if sub, _ := s.GetSubmission(uid, "favourite-colour"); sub != nil {
		t.Error("folded submission should no longer be current")
	}

	// A second completion starts fresh rows and gets a suffixed slug.
	set2, err := s.SaveSubmissions(uid, batch[:1], "favourites", "assessment")
	if err != nil {
		t.Fatalf("SaveSubmissions second: %v", err)
	}
	if set2 == nil || set2.Slug != "assessment-1" {
		t.Fatalf("expected assessment-1, got %+v", set2)
	}
	set3, err := s.SaveSubmissions(uid, batch[:1], "favourites", "assessment")
	if err != nil {
		t.Fatalf("SaveSubmissions third: %v", err)
	}
	if set3 == nil || set3.Slug != "assessment-2" {
		t.Fatalf("expected assessment-2, got %+v", set3)
	}

	sets, err := s.ListSubmissionSets(uid)
	if err != nil {
		t.Fatalf("ListSubmissionSets: %v", err)
	}
	if len(sets) != 3 {
		t.Errorf("expected 3 sets, got %d", len(sets))
	}
	history, err := s.SubmissionsForQuestion(uid, "favourite-colour")
	if err != nil {
		t.Fatalf("SubmissionsForQuestion: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("expected 3 historical rows, got %d", len(history))
	}

	// Another user may reuse the same slug.
	other := createTestUser(t, s, "auntie_rach")
	set4, err := s.SaveSubmissions(other, batch[:1], "favourites", "assessment")
	if err != nil {
		t.Fatalf("SaveSubmissions other: %v", err)
	}
	if set4 == nil || set4.Slug != "assessment" {
		t.Errorf("expected unsuffixed slug for other user, got %+v", set4)
	}
}

func TestSubmissionSetNoMatches(t *testing.T) {
	s := newTestStore(t)
	importSports(t, s)
	uid := createTestUser(t, s, "uncle_bill")

	set, err := s.SaveSubmissions(uid, []model.Submission{{Question: "sports-you-play", Answer: "rugby", Score: 50}}, "favourites", "assessment")
	if err != nil {
		t.Fatalf("SaveSubmissions: %v", err)
	}
	if set != nil {
		t.Errorf("expected no set without tagged submissions, got %+v", set)
	}
	sets, _ := s.ListSubmissionSets(uid)
	if len(sets) != 0 {
		t.Errorf("expected no sets, got %d", len(sets))
	}
}

func TestListSubmissions(t *testing.T) {
	s := newTestStore(t)
	importSports(t, s)
	uid := createTestUser(t, s, "uncle_bill")

	_, err := s.SaveSubmissions(uid, []model.Submission{
		{Question: "favourite-sport", Answer: "football", Score: 40},
		{Question: "favourite-colour", Answer: "red", Score: 10},
	}, "", "")
	if err != nil {
		t.Fatalf("SaveSubmissions: %v", err)
	}

	subs, err := s.ListSubmissions(uid, []string{"favourite-colour", "favourite-sport", "sports-you-play"})
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 2 || subs[0].Question != "favourite-colour" {
		t.Errorf("unexpected submissions %+v", subs)
	}
}

func TestTags(t *testing.T) {
	s := newTestStore(t)
	importSports(t, s)

	tags, err := s.DumpTags()
	if err != nil {
		t.Fatalf("DumpTags: %v", err)
	}
	want := map[string][]string{
		"favourite-colour": {"favourites"},
		"favourite-sport":  {"favourites", "sports"},
		"sports-you-play":  {"sports"},
		"favourite-team":   {},
	}
	if !reflect.DeepEqual(tags, want) {
		t.Errorf("DumpTags = %v, want %v", tags, want)
	}

	skipped, err := s.LoadTags(map[string][]string{
		"favourite-colour": {"colour", "basics"},
		"favourite-team":   {"teams"},
		"ghost":            {"x"},
	})
	if err != nil {
		t.Fatalf("LoadTags: %v", err)
	}
	if !reflect.DeepEqual(skipped, []string{"ghost"}) {
		t.Errorf("expected ghost to be skipped, got %v", skipped)
	}

	tags, _ = s.DumpTags()
	if !reflect.DeepEqual(tags["favourite-colour"], []string{"basics", "colour"}) {
		t.Errorf("tags not reset: %v", tags["favourite-colour"])
	}
	if !reflect.DeepEqual(tags["favourite-sport"], []string{"favourites", "sports"}) {
		t.Errorf("unlisted question tags should be untouched: %v", tags["favourite-sport"])
	}
}

func TestUsersAndSessions(t *testing.T) {
	s := newTestStore(t)

	id := createTestUser(t, s, "alice")
	u, err := s.GetUserByUsername("alice")
	if err != nil || u == nil || u.ID != id {
		t.Fatalf("GetUserByUsername: %v, %+v", err, u)
	}

	token, _, err := s.CreateAuthSession(u)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	got, err := s.UserForSession(token)
	if err != nil || got == nil || got.Username != "alice" {
		t.Fatalf("UserForSession: %v, %+v", err, got)
	}
	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	got, err = s.UserForSession(token)
	if err != nil || got != nil {
		t.Errorf("expected nil after delete, got %v, %+v", err, got)
	}

	lazy, err := s.CreateLazyUser()
	if err != nil {
		t.Fatalf("CreateLazyUser: %v", err)
	}
	if !lazy.Lazy || lazy.Role != model.UserRoleRespondent {
		t.Errorf("unexpected lazy user %+v", lazy)
	}
	count, _ := s.UserCount()
	if count != 2 {
		t.Errorf("expected 2 users, got %d", count)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("content/a.json")
	if err != nil || hash != "" {
		t.Fatalf("expected empty hash, got %q, %v", hash, err)
	}
	if err := s.SetImportedFileHash("content/a.json", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash("content/a.json", "def"); err != nil {
		t.Fatalf("SetImportedFileHash overwrite: %v", err)
	}
	hash, _ = s.GetImportedFileHash("content/a.json")
	if hash != "def" {
		t.Errorf("expected def, got %q", hash)
	}
}

func TestExportSubmissions(t *testing.T) {
	s := newTestStore(t)
	importSports(t, s)
	uid := createTestUser(t, s, "uncle_bill")
	createTestUser(t, s, "idle")

	_, err := s.SaveSubmissions(uid, []model.Submission{
		{Question: "favourite-colour", Answer: "red", Score: 10},
		{Question: "sports-you-play", Answer: "rugby", Score: 50},
	}, "favourites", "run")
	if err != nil {
		t.Fatalf("SaveSubmissions: %v", err)
	}

	export, err := s.ExportSubmissions()
	if err != nil {
		t.Fatalf("ExportSubmissions: %v", err)
	}
	if len(export.Users) != 1 {
		t.Fatalf("expected only users with answers, got %d", len(export.Users))
	}
	us := export.Users[0]
	if us.Username != "uncle_bill" || len(us.Current) != 1 || len(us.Sets) != 1 || us.Total != 2 {
		t.Fatalf("unexpected export %+v", us)
	}
	if us.Sets[0].Slug != "run" || len(us.Sets[0].Submissions) != 1 {
		t.Errorf("unexpected set export %+v", us.Sets[0])
	}
}
