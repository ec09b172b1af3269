package scoring

import (
	"errors"
	"math"
	"testing"

	"github.com/pavelanni/saq/internal/model"
)

func answerSet(slug string, scores map[string]int) *model.AnswerSet {
	set := &model.AnswerSet{Slug: slug}
	for s, score := range scores {
		set.Answers = append(set.Answers, model.Answer{Slug: s, Score: score})
	}
	return set
}

var (
	colour = model.Question{
		Slug: "favourite-colour", Type: model.QuestionSingle, Tags: []string{"favourites"},
		AnswerSet: answerSet("colours", map[string]int{"red": 10, "green": 20, "blue": 30}),
	}
	sport = model.Question{
		Slug: "favourite-sport", Type: model.QuestionSingle, Tags: []string{"favourites", "sports"},
		AnswerSet: answerSet("sports", map[string]int{"football": 40, "cricket": 60}),
	}
	played = model.Question{
		Slug: "sports-you-play", Type: model.QuestionMulti, Tags: []string{"sports"},
		AnswerSet: answerSet("played", map[string]int{"football": 100, "rugby": 50, "cricket": 200}),
	}
	team = model.Question{Slug: "favourite-team", Type: model.QuestionFree, Tags: []string{"favourites"}}
)

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		q       model.Question
		value   string
		want    int
		wantErr bool
	}{
		{"single choice", colour, "red", 10, false},
		{"single choice other", colour, "green", 20, false},
		{"multi choice sums", played, "football,rugby", 150, false},
		{"multi choice order irrelevant", played, "rugby,football", 150, false},
		{"multi choice all", played, "football,rugby,cricket", 350, false},
		{"free text is zero", team, "Bath RFC", 0, false},
		{"unknown single", colour, "purple", 0, true},
		{"single given a list", colour, "red,green", 0, true},
		{"unknown in multi", played, "football,chess", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(tt.q, tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownAnswer) {
					t.Fatalf("expected ErrUnknownAnswer, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if got != tt.want {
				t.Errorf("Score(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestMaxScore(t *testing.T) {
	if m := MaxScore(colour); m == nil || *m != 30 {
		t.Errorf("single choice max = %v, want 30", m)
	}
	if m := MaxScore(played); m == nil || *m != 350 {
		t.Errorf("multi choice max = %v, want 350", m)
	}
	if m := MaxScore(team); m != nil {
		t.Errorf("free text max = %v, want nil", *m)
	}
	empty := model.Question{Slug: "empty", Type: model.QuestionSingle, AnswerSet: &model.AnswerSet{}}
	if m := MaxScore(empty); m != nil {
		t.Errorf("empty answer set max = %v, want nil", *m)
	}
	negative := model.Question{Slug: "neg", Type: model.QuestionSingle,
		AnswerSet: answerSet("neg", map[string]int{"a": -5, "b": -2})}
	if m := MaxScore(negative); m == nil || *m != -2 {
		t.Errorf("negative max = %v, want -2", m)
	}
}

func TestPercentScore(t *testing.T) {
	if p := PercentScore(colour, nil); p == nil || *p != 0 {
		t.Errorf("unanswered = %v, want 0", p)
	}
	if p := PercentScore(team, &model.Submission{Answer: "x"}); p != nil {
		t.Errorf("free text = %v, want nil", *p)
	}
	p := PercentScore(colour, &model.Submission{Score: 10})
	if p == nil || math.Abs(*p-100.0/3) > 1e-9 {
		t.Errorf("red = %v, want 33.33", p)
	}
	zero := model.Question{Slug: "z", Type: model.QuestionSingle, AnswerSet: answerSet("z", map[string]int{"a": 0})}
	if p := PercentScore(zero, &model.Submission{}); p != nil {
		t.Errorf("zero max = %v, want nil", *p)
	}
}

type fakeSource struct {
	questions []model.Question
	subs      map[int64]map[string]model.Submission
}

func (f *fakeSource) QuestionsByTags(tags []string) ([]model.Question, error) {
	var out []model.Question
	for _, q := range f.questions {
		if q.HasTag(tags...) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeSource) GetSubmission(userID int64, question string) (*model.Submission, error) {
	sub, ok := f.subs[userID][question]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func TestAggregateScoreForUserByTags(t *testing.T) {
	bill := &model.User{ID: 1}
	rach := &model.User{ID: 2}
	src := &fakeSource{
		questions: []model.Question{colour, sport, played, team},
		subs: map[int64]map[string]model.Submission{
			1: {
				"favourite-colour": {Answer: "red", Score: 10},
				"favourite-sport":  {Answer: "football", Score: 40},
				"sports-you-play":  {Answer: "football,rugby,cricket", Score: 350},
			},
			2: {
				"favourite-colour": {Answer: "blue", Score: 30},
				"favourite-sport":  {Answer: "cricket", Score: 60},
				"favourite-team":   {Answer: "McLaren"},
			},
		},
	}
	s := New(src)

	tests := []struct {
		name string
		user *model.User
		tags []string
		want int
	}{
		{"bill favourites", bill, []string{"favourites"}, 50},
		{"rach favourites", rach, []string{"favourites"}, 100},
		{"bill favourites and sports", bill, []string{"favourites", "sports"}, 67},
		{"rach favourites and sports", rach, []string{"favourites", "sports"}, 67},
		{"no matching tags", bill, []string{"nothing"}, 0},
		{"anonymous user", nil, []string{"favourites"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.AggregateScoreForUserByTags(tt.user, tt.tags)
			if err != nil {
				t.Fatalf("AggregateScoreForUserByTags: %v", err)
			}
			if int(math.Round(got)) != tt.want {
				t.Errorf("got %.2f, want ~%d", got, tt.want)
			}
		})
	}
}

func TestPercentScoreForUser(t *testing.T) {
	src := &fakeSource{subs: map[int64]map[string]model.Submission{
		1: {"favourite-colour": {Answer: "blue", Score: 30}},
	}}
	s := New(src)

	p, err := s.PercentScoreForUser(colour, &model.User{ID: 1})
	if err != nil || p == nil || *p != 100 {
		t.Errorf("answered = %v, %v; want 100", p, err)
	}
	p, err = s.PercentScoreForUser(sport, &model.User{ID: 1})
	if err != nil || p == nil || *p != 0 {
		t.Errorf("unanswered = %v, %v; want 0", p, err)
	}
	p, err = s.PercentScoreForUser(team, &model.User{ID: 1})
	if err != nil || p != nil {
		t.Errorf("free text = %v, %v; want nil", p, err)
	}
}
