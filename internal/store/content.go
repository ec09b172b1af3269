package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/saq/internal/model"
)

// ImportDocument upserts answer sets, questions and pages by slug in a single
// transaction. Answers, tags and page blocks are replaced wholesale.
// Submissions are never touched.
func (s *Store) ImportDocument(doc model.Document) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, set := range doc.AnswerSets {
		if err := upsertAnswerSet(tx, set); err != nil {
			return fmt.Errorf("answer set %q: %w", set.Slug, err)
		}
	}
	for _, q := range doc.Questions {
		if err := upsertQuestion(tx, q); err != nil {
			return fmt.Errorf("question %q: %w", q.Slug, err)
		}
	}
	for _, p := range doc.Pages {
		if err := upsertPage(tx, p); err != nil {
			return fmt.Errorf("page %q: %w", p.Slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("imported content",
		"answer_sets", len(doc.AnswerSets),
		"questions", len(doc.Questions),
		"pages", len(doc.Pages),
	)
	return nil
}

func upsertAnswerSet(tx *sql.Tx, set model.AnswerSet) error {
	_, err := tx.Exec(
		`INSERT INTO answer_sets (slug, title, help_text) VALUES (?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET title = excluded.title, help_text = excluded.help_text`,
		set.Slug, set.Title, set.HelpText,
	)
	if err != nil {
		return err
	}
	var setID int64
	if err := tx.QueryRow(`SELECT id FROM answer_sets WHERE slug = ?`, set.Slug).Scan(&setID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM answers WHERE answer_set_id = ?`, setID); err != nil {
		return err
	}
	for _, a := range set.Answers {
		_, err := tx.Exec(
			`INSERT INTO answers (answer_set_id, slug, title, help_text, grp, score, ord, is_default)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			setID, a.Slug, a.Title, a.HelpText, a.Group, a.Score, a.Order, a.IsDefault,
		)
		if err != nil {
			return fmt.Errorf("answer %q: %w", a.Slug, err)
		}
	}
	return nil
}

func upsertQuestion(tx *sql.Tx, q model.Question) error {
	var depQ, depA string
	if q.DependsOn != nil {
		depQ, depA = q.DependsOn.Question, q.DependsOn.Answer
	}
	var setID sql.NullInt64
	if q.AnswerSetSlug != "" {
		if err := tx.QueryRow(`SELECT id FROM answer_sets WHERE slug = ?`, q.AnswerSetSlug).Scan(&setID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("unknown answer set %q", q.AnswerSetSlug)
			}
			return err
		}
	}
	_, err := tx.Exec(
		`INSERT INTO questions (slug, label, help_text, type, optional, answer_set_id, depends_on_question, depends_on_answer)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET label = excluded.label, help_text = excluded.help_text,
		   type = excluded.type, optional = excluded.optional, answer_set_id = excluded.answer_set_id,
		   depends_on_question = excluded.depends_on_question, depends_on_answer = excluded.depends_on_answer`,
		q.Slug, q.Label, q.HelpText, q.Type, q.Optional, setID, depQ, depA,
	)
	if err != nil {
		return err
	}
	var id int64
	if err := tx.QueryRow(`SELECT id FROM questions WHERE slug = ?`, q.Slug).Scan(&id); err != nil {
		return err
	}
	return replaceTags(tx, id, q.Tags)
}

func upsertPage(tx *sql.Tx, p model.Page) error {
	_, err := tx.Exec(
		`INSERT INTO pages (slug, title, parent, position) VALUES (?, ?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET title = excluded.title, parent = excluded.parent, position = excluded.position`,
		p.Slug, p.Title, p.Parent, p.Position,
	)
	if err != nil {
		return err
	}
	var pageID int64
	if err := tx.QueryRow(`SELECT id FROM pages WHERE slug = ?`, p.Slug).Scan(&pageID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM blocks WHERE page_id = ?`, pageID); err != nil {
		return err
	}
	for i, b := range p.Blocks {
		config, err := json.Marshal(b)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO blocks (page_id, position, kind, config) VALUES (?, ?, ?, ?)`,
			pageID, i, b.Kind, string(config),
		); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}

const questionSelect = `SELECT q.id, q.slug, q.label, q.help_text, q.type, q.optional,
	COALESCE(s.slug, ''), q.depends_on_question, q.depends_on_answer
	FROM questions q LEFT JOIN answer_sets s ON s.id = q.answer_set_id`

func scanQuestion(sc interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	var depQ, depA string
	err := sc.Scan(&q.ID, &q.Slug, &q.Label, &q.HelpText, &q.Type, &q.Optional, &q.AnswerSetSlug, &depQ, &depA)
	if err != nil {
		return q, err
	}
	if depQ != "" || depA != "" {
		q.DependsOn = &model.Dependency{Question: depQ, Answer: depA}
	}
	return q, nil
}

// GetQuestion returns the question with the given slug, its tags and answer
// set, or nil if no such question exists.
func (s *Store) GetQuestion(slug string) (*model.Question, error) {
	q, err := scanQuestion(s.db.QueryRow(questionSelect+` WHERE q.slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	qs := []model.Question{q}
	if err := s.hydrate(qs); err != nil {
		return nil, err
	}
	return &qs[0], nil
}

// ListQuestions returns all questions ordered by slug.
func (s *Store) ListQuestions() ([]model.Question, error) {
	return s.queryQuestions(questionSelect + ` ORDER BY q.slug`)
}

// QuestionsBySlugs returns the questions with the given slugs, ordered by slug.
// Unknown slugs are ignored.
func (s *Store) QuestionsBySlugs(slugs []string) ([]model.Question, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	query := questionSelect + ` WHERE q.slug IN (` + placeholders(len(slugs)) + `) ORDER BY q.slug`
	return s.queryQuestions(query, stringArgs(slugs)...)
}

// QuestionsByTags returns the distinct questions carrying any of the tags.
func (s *Store) QuestionsByTags(tags []string) ([]model.Question, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	query := questionSelect + ` WHERE q.id IN (SELECT question_id FROM question_tags WHERE tag IN (` +
		placeholders(len(tags)) + `)) ORDER BY q.slug`
	return s.queryQuestions(query, stringArgs(tags)...)
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

func (s *Store) queryQuestions(query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if err := s.hydrate(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// hydrate loads tags and answer sets. It runs after the question rows are
// closed so it never needs a second connection.
func (s *Store) hydrate(questions []model.Question) error {
	sets := make(map[string]*model.AnswerSet)
	for i := range questions {
		q := &questions[i]
		tags, err := s.questionTags(q.ID)
		if err != nil {
			return err
		}
		q.Tags = tags
		if q.AnswerSetSlug == "" {
			continue
		}
		set, ok := sets[q.AnswerSetSlug]
		if !ok {
			set, err = s.GetAnswerSet(q.AnswerSetSlug)
			if err != nil {
				return err
			}
			sets[q.AnswerSetSlug] = set
		}
		q.AnswerSet = set
	}
	return nil
}

func (s *Store) questionTags(questionID int64) ([]string, error) {
	rows, err := s.db.Query(`SELECT tag FROM question_tags WHERE question_id = ? ORDER BY tag`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// GetAnswerSet returns an answer set with its answers in display order, or
// nil if the slug is unknown.
func (s *Store) GetAnswerSet(slug string) (*model.AnswerSet, error) {
	var set model.AnswerSet
	err := s.db.QueryRow(
		`SELECT id, slug, title, help_text FROM answer_sets WHERE slug = ?`, slug,
	).Scan(&set.ID, &set.Slug, &set.Title, &set.HelpText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, answer_set_id, slug, title, help_text, grp, score, ord, is_default
		 FROM answers WHERE answer_set_id = ? ORDER BY ord, slug`, set.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.AnswerSetID, &a.Slug, &a.Title, &a.HelpText, &a.Group, &a.Score, &a.Order, &a.IsDefault); err != nil {
			return nil, err
		}
		set.Answers = append(set.Answers, a)
	}
	return &set, rows.Err()
}

// GetPage returns a page with its blocks, or nil if the slug is unknown.
func (s *Store) GetPage(slug string) (*model.Page, error) {
	var p model.Page
	err := s.db.QueryRow(
		`SELECT id, slug, title, parent, position FROM pages WHERE slug = ?`, slug,
	).Scan(&p.ID, &p.Slug, &p.Title, &p.Parent, &p.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	blocks, err := s.pageBlocks(p.ID)
	if err != nil {
		return nil, err
	}
	p.Blocks = blocks
	return &p, nil
}

// ListPages returns all pages with their blocks, ordered by position then slug.
func (s *Store) ListPages() ([]model.Page, error) {
	rows, err := s.db.Query(`SELECT id, slug, title, parent, position FROM pages ORDER BY position, slug`)
	if err != nil {
		return nil, err
	}
	var pages []model.Page
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.Slug, &p.Title, &p.Parent, &p.Position); err != nil {
			rows.Close()
			return nil, err
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range pages {
		blocks, err := s.pageBlocks(pages[i].ID)
		if err != nil {
			return nil, err
		}
		pages[i].Blocks = blocks
	}
	return pages, nil
}

func (s *Store) pageBlocks(pageID int64) ([]model.Block, error) {
	rows, err := s.db.Query(`SELECT id, config FROM blocks WHERE page_id = ? ORDER BY position`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var blocks []model.Block
	for rows.Next() {
		var id int64
		var config string
		if err := rows.Scan(&id, &config); err != nil {
			return nil, err
		}
		var b model.Block
		if err := json.Unmarshal([]byte(config), &b); err != nil {
			return nil, fmt.Errorf("decode block %d: %w", id, err)
		}
		b.ID = id
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}
