package store

import (
	"database/sql"
	"log/slog"
)

// DumpTags returns every question slug mapped to its sorted tags. Untagged
// questions map to an empty list.
func (s *Store) DumpTags() (map[string][]string, error) {
	rows, err := s.db.Query(
		`SELECT q.slug, COALESCE(t.tag, '') FROM questions q
		 LEFT JOIN question_tags t ON t.question_id = q.id
		 ORDER BY q.slug, t.tag`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := make(map[string][]string)
	for rows.Next() {
		var slug, tag string
		if err := rows.Scan(&slug, &tag); err != nil {
			return nil, err
		}
		if _, ok := tags[slug]; !ok {
			tags[slug] = []string{}
		}
		if tag != "" {
			tags[slug] = append(tags[slug], tag)
		}
	}
	return tags, rows.Err()
}

// LoadTags clears and resets the tags of every question named in tags.
// Unknown slugs are skipped and returned.
func (s *Store) LoadTags(tags map[string][]string) ([]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var skipped []string
	for slug, list := range tags {
		var id int64
		err := tx.QueryRow(`SELECT id FROM questions WHERE slug = ?`, slug).Scan(&id)
		if err == sql.ErrNoRows {
			slog.Warn("skipping non-existent question", "slug", slug)
			skipped = append(skipped, slug)
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := replaceTags(tx, id, list); err != nil {
			return nil, err
		}
	}
	return skipped, tx.Commit()
}

func replaceTags(tx *sql.Tx, questionID int64, tags []string) error {
	if _, err := tx.Exec(`DELETE FROM question_tags WHERE question_id = ?`, questionID); err != nil {
		return err
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO question_tags (question_id, tag) VALUES (?, ?)`, questionID, tag,
		); err != nil {
			return err
		}
	}
	return nil
}
