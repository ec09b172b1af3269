package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/saq/internal/model"
)

// SaveSubmissions records a batch of answers for one user atomically. Each
// submission is upserted on (user, question, no set). When both setTag and
// setSlug are given, the user's unset submissions on questions tagged setTag
// are then moved into a new SubmissionSet whose slug is setSlug made unique
// for the user. The returned set is nil when no set was created.
func (s *Store) SaveSubmissions(userID int64, subs []model.Submission, setTag, setSlug string) (*model.SubmissionSet, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, sub := range subs {
		_, err := tx.Exec(
			`INSERT INTO submissions (user_id, question, answer, score, set_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 0, ?, ?)
			 ON CONFLICT(user_id, question, set_id) DO UPDATE
			 SET answer = excluded.answer, score = excluded.score, updated_at = excluded.updated_at`,
			userID, sub.Question, sub.Answer, sub.Score, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("save submission %q: %w", sub.Question, err)
		}
	}

	var set *model.SubmissionSet
	if setTag != "" && setSlug != "" {
		set, err = foldIntoSet(tx, userID, setTag, setSlug, now)
		if err != nil {
			return nil, fmt.Errorf("create submission set: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if set != nil {
		slog.Info("created submission set", "user_id", userID, "slug", set.Slug, "tag", setTag)
	}
	return set, nil
}

func foldIntoSet(tx *sql.Tx, userID int64, tag, base string, now time.Time) (*model.SubmissionSet, error) {
	rows, err := tx.Query(
		`SELECT id FROM submissions
		 WHERE user_id = ? AND set_id = 0 AND question IN (
		   SELECT q.slug FROM questions q JOIN question_tags t ON t.question_id = q.id WHERE t.tag = ?
		 )`, userID, tag,
	)
	if err != nil {
		return nil, err
	}
	var ids []any
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	slug, err := uniqueSetSlug(tx, userID, base)
	if err != nil {
		return nil, err
	}
	res, err := tx.Exec(
		`INSERT INTO submission_sets (user_id, slug, created_at) VALUES (?, ?, ?)`,
		userID, slug, now,
	)
	if err != nil {
		return nil, err
	}
	setID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	args := append([]any{setID}, ids...)
	if _, err := tx.Exec(
		`UPDATE submissions SET set_id = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...,
	); err != nil {
		return nil, err
	}
	return &model.SubmissionSet{ID: setID, UserID: userID, Slug: slug, CreatedAt: now}, nil
}

// uniqueSetSlug returns base, or base-1, base-2, ... whichever is first unused
// by the user.
func uniqueSetSlug(tx *sql.Tx, userID int64, base string) (string, error) {
	slug := base
	for n := 1; ; n++ {
		var count int
		err := tx.QueryRow(
			`SELECT COUNT(*) FROM submission_sets WHERE user_id = ? AND slug = ?`, userID, slug,
		).Scan(&count)
		if err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
}

const submissionSelect = `SELECT id, user_id, question, answer, score, set_id, created_at, updated_at FROM submissions`

func scanSubmission(sc interface{ Scan(...any) error }) (model.Submission, error) {
	var sub model.Submission
	err := sc.Scan(&sub.ID, &sub.UserID, &sub.Question, &sub.Answer, &sub.Score, &sub.SetID, &sub.CreatedAt, &sub.UpdatedAt)
	return sub, err
}

func (s *Store) querySubmissions(query string, args ...any) ([]model.Submission, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// GetSubmission returns the user's submission for a question outside any set,
// or nil if there is none.
func (s *Store) GetSubmission(userID int64, question string) (*model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRow(
		submissionSelect+` WHERE user_id = ? AND question = ? AND set_id = 0`, userID, question,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubmissions returns the user's unset submissions for the given question
// slugs, ordered by question.
func (s *Store) ListSubmissions(userID int64, questions []string) ([]model.Submission, error) {
	if len(questions) == 0 {
		return nil, nil
	}
	args := append([]any{userID}, stringArgs(questions)...)
	return s.querySubmissions(
		submissionSelect+` WHERE user_id = ? AND set_id = 0 AND question IN (`+placeholders(len(questions))+`) ORDER BY question`,
		args...,
	)
}

// SubmissionsForQuestion returns every submission the user has for a
// question, across all sets, newest first.
func (s *Store) SubmissionsForQuestion(userID int64, question string) ([]model.Submission, error) {
	return s.querySubmissions(
		submissionSelect+` WHERE user_id = ? AND question = ? ORDER BY updated_at DESC, id DESC`,
		userID, question,
	)
}

// CurrentSubmissions returns all of the user's submissions outside any set.
func (s *Store) CurrentSubmissions(userID int64) ([]model.Submission, error) {
	return s.querySubmissions(submissionSelect+` WHERE user_id = ? AND set_id = 0 ORDER BY question`, userID)
}

// SubmissionsInSet returns the submissions folded into a set.
func (s *Store) SubmissionsInSet(setID int64) ([]model.Submission, error) {
	return s.querySubmissions(submissionSelect+` WHERE set_id = ? ORDER BY question`, setID)
}

// CountSubmissions returns the total number of submission rows for the user.
func (s *Store) CountSubmissions(userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// ListSubmissionSets returns the user's submission sets, oldest first.
func (s *Store) ListSubmissionSets(userID int64) ([]model.SubmissionSet, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, slug, created_at FROM submission_sets WHERE user_id = ? ORDER BY created_at, id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sets []model.SubmissionSet
	for rows.Next() {
		var set model.SubmissionSet
		if err := rows.Scan(&set.ID, &set.UserID, &set.Slug, &set.CreatedAt); err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}
