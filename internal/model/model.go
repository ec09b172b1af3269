package model

import (
	"context"
	"strings"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleRespondent answers questionnaires.
	UserRoleRespondent UserRole = "respondent"
	// UserRoleEditor may import content and manage tags.
	UserRoleEditor UserRole = "editor"
	// UserRoleAdmin has full access.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user. Lazy users are created on first submission
// from an anonymous browser and have no password.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Lazy         bool
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// QuestionType is the kind of answer a question accepts.
type QuestionType string

const (
	QuestionSingle QuestionType = "S"
	QuestionMulti  QuestionType = "M"
	QuestionFree   QuestionType = "F"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingle, QuestionMulti, QuestionFree:
		return true
	}
	return false
}

// Dependency is a (question, answer) pair that gates visibility of a question,
// a text block or a navigation end link.
type Dependency struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Answer is one choice within an AnswerSet. A non-empty Group makes it a
// grouped answer for sectioned drop-downs.
type Answer struct {
	ID          int64  `json:"-"`
	AnswerSetID int64  `json:"-"`
	Slug        string `json:"slug"`
	Title       Text   `json:"title"`
	HelpText    Text   `json:"help_text,omitempty"`
	Group       Text   `json:"group,omitempty"`
	Score       int    `json:"score"`
	Order       int    `json:"order"`
	IsDefault   bool   `json:"default,omitempty"`
}

// AnswerSet is a reusable ordered collection of answers.
type AnswerSet struct {
	ID       int64    `json:"-"`
	Slug     string   `json:"slug"`
	Title    Text     `json:"title,omitempty"`
	HelpText Text     `json:"help_text,omitempty"`
	Answers  []Answer `json:"answers"`
}

// Find returns the answer with the given slug.
func (s *AnswerSet) Find(slug string) (Answer, bool) {
	if s == nil {
		return Answer{}, false
	}
	for _, a := range s.Answers {
		if a.Slug == slug {
			return a, true
		}
	}
	return Answer{}, false
}

// Question is a questionnaire item identified by a globally unique slug.
type Question struct {
	ID            int64        `json:"-"`
	Slug          string       `json:"slug"`
	Label         Text         `json:"label,omitempty"`
	HelpText      Text         `json:"help_text,omitempty"`
	Type          QuestionType `json:"type"`
	Optional      bool         `json:"optional,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	AnswerSetSlug string       `json:"answer_set,omitempty"`
	DependsOn     *Dependency  `json:"depends_on,omitempty"`

	// AnswerSet is populated by the store when the question is loaded.
	AnswerSet *AnswerSet `json:"-"`
}

// Answers returns the question's answers, or nil for free-text questions.
func (q Question) Answers() []Answer {
	if q.AnswerSet == nil {
		return nil
	}
	return q.AnswerSet.Answers
}

// HasTag reports whether the question carries any of the given tags.
func (q Question) HasTag(tags ...string) bool {
	for _, have := range q.Tags {
		for _, want := range tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Submission is a user's recorded answer to one question. SetID is 0 while the
// submission is not part of a SubmissionSet.
type Submission struct {
	ID        int64     `json:"-"`
	UserID    int64     `json:"-"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Score     int       `json:"score"`
	SetID     int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnswerList splits a multi-choice answer into its slugs.
func (s Submission) AnswerList() []string {
	if s.Answer == "" {
		return nil
	}
	return strings.Split(s.Answer, ",")
}

// SubmissionSet groups submissions recorded together so a user can complete
// the same questionnaire more than once.
type SubmissionSet struct {
	ID        int64     `json:"-"`
	UserID    int64     `json:"-"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// ServerConfig holds runtime HTTP parameters set via CLI flags.
type ServerConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/saq")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	LazyUsers     bool   // Create throwaway users for anonymous submitters
}
