package model

// BlockKind identifies the plugin rendered by a page block.
type BlockKind string

const (
	BlockQuestion         BlockKind = "question"
	BlockText             BlockKind = "text"
	BlockFormNav          BlockKind = "form_nav"
	BlockProgressBar      BlockKind = "progress_bar"
	BlockSectionedScoring BlockKind = "sectioned_scoring"
	BlockBulkAnswer       BlockKind = "bulk_answer"
)

// Widget selects how a question block is drawn.
type Widget string

const (
	WidgetRadio           Widget = "radio"
	WidgetCheckbox        Widget = "checkbox"
	WidgetDropDown        Widget = "dropdown"
	WidgetGroupedDropDown Widget = "grouped_dropdown"
	WidgetFreeText        Widget = "free_text"
)

// DefaultWidget returns the widget used when a question block names none.
func DefaultWidget(t QuestionType) Widget {
	switch t {
	case QuestionMulti:
		return WidgetCheckbox
	case QuestionFree:
		return WidgetFreeText
	default:
		return WidgetRadio
	}
}

// Accepts reports whether the widget can draw a question of type t.
func (w Widget) Accepts(t QuestionType) bool {
	switch w {
	case WidgetRadio, WidgetDropDown, WidgetGroupedDropDown:
		return t == QuestionSingle
	case WidgetCheckbox:
		return t == QuestionMulti
	case WidgetFreeText:
		return t == QuestionFree
	}
	return false
}

// Page is a questionnaire page. Pages sharing the same root form a tree.
type Page struct {
	ID       int64   `json:"-"`
	Slug     string  `json:"slug"`
	Title    Text    `json:"title,omitempty"`
	Parent   string  `json:"parent,omitempty"`
	Position int     `json:"position,omitempty"`
	Blocks   []Block `json:"blocks"`
}

// Block is one plugin instance placed on a page. Exactly one of the kind
// specific fields is set, matching Kind.
type Block struct {
	ID       int64     `json:"-"`
	Kind     BlockKind `json:"kind"`
	Question string    `json:"question,omitempty"`
	Widget   Widget    `json:"widget,omitempty"`

	Text     *QuestionnaireText `json:"text,omitempty"`
	Nav      *FormNav           `json:"form_nav,omitempty"`
	Progress *ProgressBar       `json:"progress_bar,omitempty"`
	Scoring  *SectionedScoring  `json:"sectioned_scoring,omitempty"`
	Bulk     *BulkAnswer        `json:"bulk_answer,omitempty"`
}

// QuestionnaireText is a block of prose, optionally shown only when a
// dependency is triggered.
type QuestionnaireText struct {
	Body      Text        `json:"body"`
	DependsOn *Dependency `json:"depends_on,omitempty"`
}

// FormNav renders back/next/end navigation and carries the submission set
// parameters applied when the page's answers are submitted.
type FormNav struct {
	PrevPage      string      `json:"prev_page,omitempty"`
	PrevPageLabel Text        `json:"prev_page_label,omitempty"`
	NextPage      string      `json:"next_page,omitempty"`
	NextPageLabel Text        `json:"next_page_label,omitempty"`
	EndPage       string      `json:"end_page,omitempty"`
	EndPageLabel  Text        `json:"end_page_label,omitempty"`
	EndCondition  *Dependency `json:"end_page_condition,omitempty"`

	EndSubmissionSet string `json:"end_submission_set,omitempty"`
	SubmissionSetTag string `json:"submission_set_tag,omitempty"`
}

// ProgressScope selects which questions a progress bar counts.
type ProgressScope string

const (
	ScopeTree ProgressScope = "tree"
	ScopePage ProgressScope = "page"
)

// ProgressBar shows how many questions the user has answered.
type ProgressBar struct {
	CountOptional bool          `json:"count_optional"`
	Scope         ProgressScope `json:"scope,omitempty"`
}

// ScoreSection maps a tag to a labelled score line.
type ScoreSection struct {
	Group Text   `json:"group,omitempty"`
	Label Text   `json:"label"`
	Tag   string `json:"tag"`
	Order int    `json:"order"`
}

// SectionedScoring renders a per-section percentage and the overall average.
type SectionedScoring struct {
	Sections []ScoreSection `json:"sections"`
}

// BulkAnswer answers every eligible question on a page with one value.
type BulkAnswer struct {
	Label       Text   `json:"label"`
	AnswerValue string `json:"answer_value"`
}

// Document is the JSON shape of an importable questionnaire.
type Document struct {
	AnswerSets []AnswerSet `json:"answer_sets"`
	Questions  []Question  `json:"questions"`
	Pages      []Page      `json:"pages"`
}
