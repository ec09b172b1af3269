// Package visibility decides whether dependent questions, text blocks and
// navigation links are shown, and validates dependency graphs when content
// is configured.
package visibility

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pavelanni/saq/internal/model"
)

// Scope selects which submissions can trigger a dependency.
type Scope int

const (
	// Current considers only submissions not yet folded into a set. Page
	// features use it so a finished questionnaire run does not leak into the
	// next one.
	Current Scope = iota
	// Any considers submissions in every set.
	Any
)

// Source is the read access the Resolver needs.
type Source interface {
	GetSubmission(userID int64, question string) (*model.Submission, error)
	SubmissionsForQuestion(userID int64, question string) ([]model.Submission, error)
}

// Resolver evaluates dependencies against a user's submissions.
type Resolver struct {
	src Source
}

// New creates a Resolver backed by src.
func New(src Source) *Resolver {
	return &Resolver{src: src}
}

// Triggered reports whether dep is satisfied for user. A nil dependency is
// always satisfied; a nil user never satisfies one.
func (r *Resolver) Triggered(user *model.User, dep *model.Dependency, scope Scope) (bool, error) {
	if dep == nil {
		return true, nil
	}
	if user == nil {
		return false, nil
	}

	var subs []model.Submission
	switch scope {
	case Any:
		var err error
		subs, err = r.src.SubmissionsForQuestion(user.ID, dep.Question)
		if err != nil {
			return false, fmt.Errorf("submissions for %q: %w", dep.Question, err)
		}
	default:
		sub, err := r.src.GetSubmission(user.ID, dep.Question)
		if err != nil {
			return false, fmt.Errorf("submission for %q: %w", dep.Question, err)
		}
		if sub != nil {
			subs = append(subs, *sub)
		}
	}

	for _, sub := range subs {
		if slices.Contains(sub.AnswerList(), dep.Answer) {
			return true, nil
		}
	}
	return false, nil
}

// CheckDependency validates one dependency against the known questions: the
// question must exist, must not be free text, and must offer the answer.
func CheckDependency(dep *model.Dependency, questions map[string]model.Question) error {
	if dep == nil {
		return nil
	}
	if dep.Question == "" || dep.Answer == "" {
		return fmt.Errorf("dependency needs both a question and an answer")
	}
	q, ok := questions[dep.Question]
	if !ok {
		return fmt.Errorf("depends on unknown question %q", dep.Question)
	}
	if q.Type == model.QuestionFree {
		return fmt.Errorf("depends on free-text question %q", dep.Question)
	}
	if _, ok := q.AnswerSet.Find(dep.Answer); !ok {
		return fmt.Errorf("answer %q does not belong to question %q", dep.Answer, dep.Question)
	}
	return nil
}

// ValidateDependencies checks every question dependency and rejects cycles.
// Questions must have their AnswerSet populated.
func ValidateDependencies(questions []model.Question) error {
	bySlug := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		bySlug[q.Slug] = q
	}

	var errs []error
	for _, q := range questions {
		if q.DependsOn == nil {
			continue
		}
		if q.DependsOn.Question == q.Slug {
			errs = append(errs, fmt.Errorf("question %q cannot depend on itself", q.Slug))
			continue
		}
		if err := CheckDependency(q.DependsOn, bySlug); err != nil {
			errs = append(errs, fmt.Errorf("question %q: %w", q.Slug, err))
		}
	}
	if err := findCycle(questions, bySlug); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// findCycle walks the depends-on edges. Every question has at most one
// outgoing edge, so following it until a repeat finds any cycle.
func findCycle(questions []model.Question, bySlug map[string]model.Question) error {
	const (
		unvisited = iota
		inPath
		done
	)
	state := make(map[string]int, len(questions))

	for _, start := range questions {
		if state[start.Slug] != unvisited {
			continue
		}
		var path []string
		slug := start.Slug
		for {
			if state[slug] == done {
				break
			}
			if state[slug] == inPath {
				i := slices.Index(path, slug)
				cycle := append(slices.Clone(path[i:]), slug)
				return fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
			}
			state[slug] = inPath
			path = append(path, slug)
			q, ok := bySlug[slug]
			if !ok || q.DependsOn == nil || q.DependsOn.Question == q.Slug {
				break
			}
			slug = q.DependsOn.Question
		}
		for _, s := range path {
			state[s] = done
		}
	}
	return nil
}
