// Package scoring computes raw, maximum and percentage scores for
// questionnaire answers and aggregates them across tagged questions.
package scoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/saq/internal/model"
)

// ErrUnknownAnswer is returned when an answer slug is not part of the
// question's answer set.
var ErrUnknownAnswer = errors.New("unknown answer")

// Score returns the score of value for q. Single-choice values are one answer
// slug; multi-choice values are comma-separated slugs whose scores are summed.
// Free-text answers always score 0.
func Score(q model.Question, value string) (int, error) {
	switch q.Type {
	case model.QuestionFree:
		return 0, nil
	case model.QuestionSingle:
		a, ok := q.AnswerSet.Find(value)
		if !ok {
			return 0, fmt.Errorf("%w %q for question %q", ErrUnknownAnswer, value, q.Slug)
		}
		return a.Score, nil
	case model.QuestionMulti:
		total := 0
		for _, slug := range strings.Split(value, ",") {
			a, ok := q.AnswerSet.Find(slug)
			if !ok {
				return 0, fmt.Errorf("%w %q for question %q", ErrUnknownAnswer, slug, q.Slug)
			}
			total += a.Score
		}
		return total, nil
	}
	return 0, fmt.Errorf("question %q has unknown type %q", q.Slug, q.Type)
}

// MaxScore returns the best achievable score for q: the highest answer score
// for single-choice, the sum of all answer scores for multi-choice. It returns
// nil for free-text questions and questions without answers.
func MaxScore(q model.Question) *int {
	answers := q.Answers()
	if q.Type == model.QuestionFree || len(answers) == 0 {
		return nil
	}
	var best int
	switch q.Type {
	case model.QuestionSingle:
		best = answers[0].Score
		for _, a := range answers[1:] {
			best = max(best, a.Score)
		}
	case model.QuestionMulti:
		for _, a := range answers {
			best += a.Score
		}
	default:
		return nil
	}
	return &best
}

// PercentScore returns 100*score/max for the submission, 0 when sub is nil,
// and nil when the question cannot be scored.
func PercentScore(q model.Question, sub *model.Submission) *float64 {
	m := MaxScore(q)
	if m == nil || *m == 0 {
		return nil
	}
	var pct float64
	if sub != nil {
		pct = 100 * float64(sub.Score) / float64(*m)
	}
	return &pct
}

// Source is the read access the Scorer needs.
type Source interface {
	QuestionsByTags(tags []string) ([]model.Question, error)
	GetSubmission(userID int64, question string) (*model.Submission, error)
}

// Scorer computes scores for a user's current (unset) submissions.
type Scorer struct {
	src Source
}

// New creates a Scorer backed by src.
func New(src Source) *Scorer {
	return &Scorer{src: src}
}

// PercentScoreForUser returns the user's percentage score on q. A nil user
// has answered nothing.
func (s *Scorer) PercentScoreForUser(q model.Question, user *model.User) (*float64, error) {
	var sub *model.Submission
	if user != nil {
		var err error
		sub, err = s.src.GetSubmission(user.ID, q.Slug)
		if err != nil {
			return nil, fmt.Errorf("submission for %q: %w", q.Slug, err)
		}
	}
	return PercentScore(q, sub), nil
}

// AggregateScoreForUserByTags averages the user's percentage scores over all
// distinct scoreable questions carrying any of tags. It returns 0 when no
// scoreable question matches.
func (s *Scorer) AggregateScoreForUserByTags(user *model.User, tags []string) (float64, error) {
	questions, err := s.src.QuestionsByTags(tags)
	if err != nil {
		return 0, fmt.Errorf("questions by tags: %w", err)
	}
	seen := make(map[string]bool, len(questions))
	var total float64
	var n int
	for _, q := range questions {
		if seen[q.Slug] {
			continue
		}
		seen[q.Slug] = true
		pct, err := s.PercentScoreForUser(q, user)
		if err != nil {
			return 0, err
		}
		if pct == nil {
			continue
		}
		total += *pct
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}
