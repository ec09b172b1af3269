package model

import "time"

// SubmissionExport is the top-level JSON structure for submission export.
type SubmissionExport struct {
	ExportedAt time.Time         `json:"exported_at"`
	Users      []UserSubmissions `json:"users"`
}

// UserSubmissions holds one user's current answers and completed sets.
type UserSubmissions struct {
	Username    string       `json:"username"`
	DisplayName string       `json:"display_name"`
	Lazy        bool         `json:"lazy"`
	Total       int          `json:"total_submissions"`
	Current     []Submission `json:"current"`
	Sets        []SetExport  `json:"sets"`
}

// SetExport is a submission set together with its submissions.
type SetExport struct {
	Slug        string       `json:"slug"`
	CreatedAt   time.Time    `json:"created_at"`
	Submissions []Submission `json:"submissions"`
}

// ScoreEntry is the answer and score reported for one question by the scores endpoint.
type ScoreEntry struct {
	Answer string `json:"answer"`
	Score  int    `json:"score"`
}

// ScoresReport is the scores endpoint response.
type ScoresReport struct {
	Questions   []string              `json:"questions"`
	Submissions map[string]ScoreEntry `json:"submissions"`
	Complete    bool                  `json:"complete"`
}
