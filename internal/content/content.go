// Package content parses and validates questionnaire documents and imports
// them into the store.
package content

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/pavelanni/saq/internal/model"
	"github.com/pavelanni/saq/internal/visibility"
)

var slugRE = regexp.MustCompile(`^[\w-]+$`)

// Catalog gives read access to content already in the store.
type Catalog interface {
	ListQuestions() ([]model.Question, error)
	GetAnswerSet(slug string) (*model.AnswerSet, error)
	ListPages() ([]model.Page, error)
}

// Importer is a Catalog that can also persist documents and remember which
// files were imported.
type Importer interface {
	Catalog
	ImportDocument(doc model.Document) error
	GetImportedFileHash(path string) (string, error)
	SetImportedFileHash(path, hash string) error
}

// Parse decodes a questionnaire document, rejecting unknown fields.
func Parse(data []byte) (model.Document, error) {
	var doc model.Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return doc, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Import parses, validates and stores a document.
func Import(imp Importer, data []byte) (model.Document, error) {
	doc, err := Parse(data)
	if err != nil {
		return doc, err
	}
	if err := Validate(doc, imp); err != nil {
		return doc, err
	}
	if err := imp.ImportDocument(doc); err != nil {
		return doc, fmt.Errorf("import document: %w", err)
	}
	return doc, nil
}

// LoadFiles imports each file whose content changed since it was last
// imported. Files are processed in order so later files may refer to content
// from earlier ones.
func LoadFiles(imp Importer, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := imp.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("content file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Info("content file changed since last import, re-importing", "path", path)
		}

		doc, err := Import(imp, data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := imp.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported content file", "path", path,
			"questions", len(doc.Questions), "pages", len(doc.Pages))
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Validate checks doc on its own and against what cat already holds: slugs
// are well formed and unique, choice questions reference an answer set,
// dependencies point at real answers and form no cycle, and every block is
// consistent with its kind. cat may be nil.
func Validate(doc model.Document, cat Catalog) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	sets := make(map[string]*model.AnswerSet)
	for i := range doc.AnswerSets {
		set := &doc.AnswerSets[i]
		if !slugRE.MatchString(set.Slug) {
			add("answer set %q: invalid slug", set.Slug)
		}
		if _, dup := sets[set.Slug]; dup {
			add("answer set %q: duplicate slug", set.Slug)
		}
		sets[set.Slug] = set
		seen := make(map[string]bool)
		for _, a := range set.Answers {
			if !slugRE.MatchString(a.Slug) {
				add("answer set %q: invalid answer slug %q", set.Slug, a.Slug)
			}
			if seen[a.Slug] {
				add("answer set %q: duplicate answer slug %q", set.Slug, a.Slug)
			}
			seen[a.Slug] = true
		}
	}
	lookupSet := func(slug string) (*model.AnswerSet, error) {
		if set, ok := sets[slug]; ok {
			return set, nil
		}
		if cat == nil {
			return nil, nil
		}
		return cat.GetAnswerSet(slug)
	}

	questions := make(map[string]model.Question)
	if cat != nil {
		existing, err := cat.ListQuestions()
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		for _, q := range existing {
			questions[q.Slug] = q
		}
	}
	docSlugs := make(map[string]bool)
	for _, q := range doc.Questions {
		if !slugRE.MatchString(q.Slug) {
			add("question %q: invalid slug", q.Slug)
		}
		if docSlugs[q.Slug] {
			add("question %q: duplicate slug", q.Slug)
		}
		docSlugs[q.Slug] = true
		if !q.Type.Valid() {
			add("question %q: unknown type %q", q.Slug, q.Type)
		}
		if q.AnswerSetSlug != "" {
			set, err := lookupSet(q.AnswerSetSlug)
			if err != nil {
				return fmt.Errorf("answer set %q: %w", q.AnswerSetSlug, err)
			}
			if set == nil {
				add("question %q: unknown answer set %q", q.Slug, q.AnswerSetSlug)
			}
			q.AnswerSet = set
		} else if q.Type != model.QuestionFree {
			add("question %q: choice questions need an answer set", q.Slug)
		}
		questions[q.Slug] = q
	}

	all := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		all = append(all, q)
	}
	if err := visibility.ValidateDependencies(all); err != nil {
		errs = append(errs, err)
	}

	if err := validatePages(doc.Pages, questions, cat); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validatePages(pages []model.Page, questions map[string]model.Question, cat Catalog) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	parents := make(map[string]string)
	if cat != nil {
		existing, err := cat.ListPages()
		if err != nil {
			return fmt.Errorf("list pages: %w", err)
		}
		for _, p := range existing {
			parents[p.Slug] = p.Parent
		}
	}
	docSlugs := make(map[string]bool)
	for _, p := range pages {
		if !slugRE.MatchString(p.Slug) {
			add("page %q: invalid slug", p.Slug)
		}
		if docSlugs[p.Slug] {
			add("page %q: duplicate slug", p.Slug)
		}
		docSlugs[p.Slug] = true
		parents[p.Slug] = p.Parent
	}

	for _, p := range pages {
		if p.Parent != "" {
			if _, ok := parents[p.Parent]; !ok {
				add("page %q: unknown parent %q", p.Slug, p.Parent)
			}
		}
		// Walk up to the root; revisiting a page means the tree loops.
		seen := map[string]bool{p.Slug: true}
		for cur := parents[p.Slug]; cur != ""; cur = parents[cur] {
			if seen[cur] {
				add("page %q: parent chain loops through %q", p.Slug, cur)
				break
			}
			seen[cur] = true
		}

		for i, b := range p.Blocks {
			if err := validateBlock(b, questions, parents); err != nil {
				add("page %q block %d: %w", p.Slug, i, err)
			}
		}
	}
	return errors.Join(errs...)
}

func validateBlock(b model.Block, questions map[string]model.Question, pages map[string]string) error {
	switch b.Kind {
	case model.BlockQuestion:
		q, ok := questions[b.Question]
		if !ok {
			return fmt.Errorf("unknown question %q", b.Question)
		}
		if b.Widget != "" && !b.Widget.Accepts(q.Type) {
			return fmt.Errorf("widget %q cannot draw question %q of type %s", b.Widget, q.Slug, q.Type)
		}
	case model.BlockText:
		if b.Text == nil {
			return errors.New("text block without text")
		}
		return visibility.CheckDependency(b.Text.DependsOn, questions)
	case model.BlockFormNav:
		if b.Nav == nil {
			return errors.New("form_nav block without form_nav")
		}
		for _, target := range []string{b.Nav.PrevPage, b.Nav.NextPage, b.Nav.EndPage} {
			if _, ok := pages[target]; target != "" && !ok {
				slog.Warn("form navigation links to unknown page", "page", target)
			}
		}
		if b.Nav.EndSubmissionSet != "" && !slugRE.MatchString(b.Nav.EndSubmissionSet) {
			return fmt.Errorf("invalid submission set slug %q", b.Nav.EndSubmissionSet)
		}
		return visibility.CheckDependency(b.Nav.EndCondition, questions)
	case model.BlockProgressBar:
		if b.Progress == nil {
			return errors.New("progress_bar block without progress_bar")
		}
		switch b.Progress.Scope {
		case "", model.ScopeTree, model.ScopePage:
		default:
			return fmt.Errorf("unknown progress scope %q", b.Progress.Scope)
		}
	case model.BlockSectionedScoring:
		if b.Scoring == nil {
			return errors.New("sectioned_scoring block without sectioned_scoring")
		}
		for _, sec := range b.Scoring.Sections {
			if sec.Tag == "" {
				return errors.New("score section without tag")
			}
		}
	case model.BlockBulkAnswer:
		if b.Bulk == nil {
			return errors.New("bulk_answer block without bulk_answer")
		}
		if !slugRE.MatchString(b.Bulk.AnswerValue) {
			return fmt.Errorf("invalid bulk answer value %q", b.Bulk.AnswerValue)
		}
	default:
		return fmt.Errorf("unknown block kind %q", b.Kind)
	}
	return nil
}
