// Package survey records answers, reports scores and tracks progress through
// a questionnaire.
package survey

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/pavelanni/saq/internal/model"
	"github.com/pavelanni/saq/internal/scoring"
	"github.com/pavelanni/saq/internal/visibility"
)

// Form fields that carry submit options rather than answers.
const (
	FieldEndSubmissionSet = "end_submission_set"
	FieldSubmissionSetTag = "submission_set_tag"
	FieldCSRFToken        = "csrf_token"
	FieldNext             = "next"
)

var (
	// ErrUnknownQuestion is returned for answers to a question slug that does not exist.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrMalformedAnswer is returned when a choice answer is not a comma-separated slug list.
	ErrMalformedAnswer = errors.New("malformed answer")
	// ErrNoUser is returned when an operation needs a user and none is given.
	ErrNoUser = errors.New("no user")
)

var (
	answerRE = regexp.MustCompile(`^[\w-]+(,[\w-]+)*$`)
	slugRE   = regexp.MustCompile(`^[\w-]+$`)
)

// SubmitError identifies the question and answer that caused a submit
// request to be rejected.
type SubmitError struct {
	Err      error
	Question string
	Answer   string
}

func (e *SubmitError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnknownQuestion):
		return fmt.Sprintf("Invalid question '%s'", e.Question)
	case errors.Is(e.Err, ErrMalformedAnswer):
		return fmt.Sprintf("Invalid answers: %s", e.Answer)
	case errors.Is(e.Err, scoring.ErrUnknownAnswer):
		return fmt.Sprintf("Invalid answer '%s:%s'", e.Question, e.Answer)
	}
	return fmt.Sprintf("question '%s': %v", e.Question, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Store is the persistence the Service needs.
type Store interface {
	GetQuestion(slug string) (*model.Question, error)
	SaveSubmissions(userID int64, subs []model.Submission, setTag, setSlug string) (*model.SubmissionSet, error)
	ListSubmissions(userID int64, questions []string) ([]model.Submission, error)
}

// Service implements the submit, scores, progress and bulk-answer operations.
type Service struct {
	store Store
	vis   *visibility.Resolver
}

// New creates a Service.
func New(st Store, vis *visibility.Resolver) *Service {
	return &Service{store: st, vis: vis}
}

// SubmitRequest is a batch of answers keyed by question slug, plus optional
// submission set parameters.
type SubmitRequest struct {
	Answers map[string]string
	SetTag  string
	SetSlug string
}

// RequestFromForm builds a SubmitRequest from posted form values. Repeated
// values for one question are joined with commas. A choice question whose
// values are all blank, such as an untouched drop-down, is left unanswered.
func (s *Service) RequestFromForm(form url.Values) (SubmitRequest, error) {
	req := SubmitRequest{Answers: make(map[string]string)}
	for key, values := range form {
		switch key {
		case FieldEndSubmissionSet:
			req.SetSlug = strings.TrimSpace(first(values))
		case FieldSubmissionSetTag:
			req.SetTag = strings.TrimSpace(first(values))
		case FieldCSRFToken, FieldNext:
		default:
			q, err := s.store.GetQuestion(key)
			if err != nil {
				return req, fmt.Errorf("load question %q: %w", key, err)
			}
			if q == nil || q.Type == model.QuestionFree {
				req.Answers[key] = strings.Join(values, ",")
				continue
			}
			var picked []string
			for _, v := range values {
				if v != "" {
					picked = append(picked, v)
				}
			}
			if len(picked) > 0 {
				req.Answers[key] = strings.Join(picked, ",")
			}
		}
	}
	return req, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Validate checks every answer in req without writing anything. It returns
// the same errors as Submit.
func (s *Service) Validate(req SubmitRequest) error {
	_, err := s.prepare(req)
	return err
}

// Submit validates and scores every answer, then stores the whole batch in
// one transaction. Any invalid entry rejects the batch with a *SubmitError
// and nothing is written. The returned set is non-nil only when a
// submission set was created.
func (s *Service) Submit(user *model.User, req SubmitRequest) (*model.SubmissionSet, error) {
	if user == nil {
		return nil, ErrNoUser
	}
	subs, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	setTag, setSlug := req.SetTag, req.SetSlug
	if setSlug != "" && !slugRE.MatchString(setSlug) {
		slog.Warn("ignoring invalid submission set slug", "slug", setSlug, "user_id", user.ID)
		setSlug = ""
	}

	set, err := s.store.SaveSubmissions(user.ID, subs, setTag, setSlug)
	if err != nil {
		return nil, fmt.Errorf("save submissions: %w", err)
	}
	slog.Debug("recorded submissions", "user_id", user.ID, "count", len(subs))
	return set, nil
}

// prepare scores each answer in slug order.
func (s *Service) prepare(req SubmitRequest) ([]model.Submission, error) {
	slugs := make([]string, 0, len(req.Answers))
	for slug := range req.Answers {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	subs := make([]model.Submission, 0, len(slugs))
	for _, slug := range slugs {
		value := req.Answers[slug]
		q, err := s.store.GetQuestion(slug)
		if err != nil {
			return nil, fmt.Errorf("load question %q: %w", slug, err)
		}
		if q == nil {
			return nil, &SubmitError{Err: ErrUnknownQuestion, Question: slug, Answer: value}
		}
		if q.Type != model.QuestionFree && !answerRE.MatchString(value) {
			return nil, &SubmitError{Err: ErrMalformedAnswer, Question: slug, Answer: value}
		}
		score, err := scoring.Score(*q, value)
		if err != nil {
			if errors.Is(err, scoring.ErrUnknownAnswer) {
				return nil, &SubmitError{Err: err, Question: slug, Answer: value}
			}
			return nil, err
		}
		subs = append(subs, model.Submission{Question: slug, Answer: value, Score: score})
	}
	return subs, nil
}

// Scores reports the user's current answers and scores for the given
// question slugs. Complete is true when every slug has an answer.
func (s *Service) Scores(user *model.User, slugs []string) (model.ScoresReport, error) {
	report := model.ScoresReport{
		Questions:   slugs,
		Submissions: make(map[string]model.ScoreEntry),
	}
	if user == nil {
		return report, ErrNoUser
	}
	subs, err := s.store.ListSubmissions(user.ID, slugs)
	if err != nil {
		return report, fmt.Errorf("list submissions: %w", err)
	}
	for _, sub := range subs {
		report.Submissions[sub.Question] = model.ScoreEntry{Answer: sub.Answer, Score: sub.Score}
	}
	report.Complete = true
	for _, slug := range slugs {
		if _, ok := report.Submissions[slug]; !ok {
			report.Complete = false
			break
		}
	}
	return report, nil
}

// ProgressReport counts answered questions.
type ProgressReport struct {
	Answered int
	Total    int
	Percent  float64
}

// Progress counts how many of questions the user has answered. Optional
// questions are left out of both counts unless countOptional is set.
func (s *Service) Progress(user *model.User, questions []model.Question, countOptional bool) (ProgressReport, error) {
	var report ProgressReport
	var slugs []string
	for _, q := range questions {
		if q.Optional && !countOptional {
			continue
		}
		slugs = append(slugs, q.Slug)
	}
	report.Total = len(slugs)
	if report.Total == 0 || user == nil {
		return report, nil
	}

	subs, err := s.store.ListSubmissions(user.ID, slugs)
	if err != nil {
		return report, fmt.Errorf("list submissions: %w", err)
	}
	report.Answered = len(subs)
	report.Percent = 100 * float64(report.Answered) / float64(report.Total)
	return report, nil
}

// BulkEligible returns the questions a bulk answer of value would fill in:
// visible choice questions whose answer set offers value.
func (s *Service) BulkEligible(user *model.User, questions []model.Question, value string) ([]model.Question, error) {
	var eligible []model.Question
	for _, q := range questions {
		if q.Type == model.QuestionFree {
			continue
		}
		if _, ok := q.AnswerSet.Find(value); !ok {
			continue
		}
		visible, err := s.vis.Triggered(user, q.DependsOn, visibility.Current)
		if err != nil {
			return nil, err
		}
		if visible {
			eligible = append(eligible, q)
		}
	}
	return eligible, nil
}

// BulkAnswer answers every eligible question with value and returns how
// many were answered.
func (s *Service) BulkAnswer(user *model.User, questions []model.Question, value string) (int, error) {
	if user == nil {
		return 0, ErrNoUser
	}
	eligible, err := s.BulkEligible(user, questions, value)
	if err != nil {
		return 0, err
	}
	if len(eligible) == 0 {
		return 0, nil
	}
	req := SubmitRequest{Answers: make(map[string]string, len(eligible))}
	for _, q := range eligible {
		req.Answers[q.Slug] = value
	}
	if _, err := s.Submit(user, req); err != nil {
		return 0, err
	}
	return len(eligible), nil
}
