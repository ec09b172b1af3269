package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/saq/internal/model"
)

// ExportSubmissions builds an export of every user's current answers and
// submission sets. Users without any submissions are omitted.
func (s *Store) ExportSubmissions() (model.SubmissionExport, error) {
	export := model.SubmissionExport{ExportedAt: time.Now().UTC()}

	users, err := s.ListUsers()
	if err != nil {
		return export, fmt.Errorf("list users: %w", err)
	}

	for _, u := range users {
		total, err := s.CountSubmissions(u.ID)
		if err != nil {
			return export, fmt.Errorf("count submissions for user %d: %w", u.ID, err)
		}
		if total == 0 {
			continue
		}
		current, err := s.CurrentSubmissions(u.ID)
		if err != nil {
			return export, fmt.Errorf("submissions for user %d: %w", u.ID, err)
		}
		sets, err := s.ListSubmissionSets(u.ID)
		if err != nil {
			return export, fmt.Errorf("sets for user %d: %w", u.ID, err)
		}

		us := model.UserSubmissions{
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Lazy:        u.Lazy,
			Total:       total,
			Current:     current,
		}
		for _, set := range sets {
			subs, err := s.SubmissionsInSet(set.ID)
			if err != nil {
				return export, fmt.Errorf("set %d: %w", set.ID, err)
			}
			us.Sets = append(us.Sets, model.SetExport{
				Slug:        set.Slug,
				CreatedAt:   set.CreatedAt,
				Submissions: subs,
			})
		}
		export.Users = append(export.Users, us)
	}

	return export, nil
}
