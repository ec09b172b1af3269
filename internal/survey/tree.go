package survey

import "github.com/pavelanni/saq/internal/model"

// Tree returns the pages in the same tree as slug: its topmost ancestor and
// every descendant of that ancestor, in the order of pages. It returns nil
// when slug is not among pages.
func Tree(pages []model.Page, slug string) []model.Page {
	bySlug := make(map[string]model.Page, len(pages))
	for _, p := range pages {
		bySlug[p.Slug] = p
	}
	if _, ok := bySlug[slug]; !ok {
		return nil
	}

	root := slug
	seen := map[string]bool{root: true}
	for {
		parent := bySlug[root].Parent
		if _, ok := bySlug[parent]; parent == "" || !ok || seen[parent] {
			break
		}
		seen[parent] = true
		root = parent
	}

	var out []model.Page
	for _, p := range pages {
		if inTree(bySlug, p.Slug, root) {
			out = append(out, p)
		}
	}
	return out
}

func inTree(bySlug map[string]model.Page, slug, root string) bool {
	seen := make(map[string]bool)
	for cur := slug; cur != "" && !seen[cur]; cur = bySlug[cur].Parent {
		if cur == root {
			return true
		}
		seen[cur] = true
	}
	return false
}

// QuestionSlugs lists the questions placed on pages, first occurrence only.
func QuestionSlugs(pages ...model.Page) []string {
	seen := make(map[string]bool)
	var slugs []string
	for _, p := range pages {
		for _, b := range p.Blocks {
			if b.Kind != model.BlockQuestion || seen[b.Question] {
				continue
			}
			seen[b.Question] = true
			slugs = append(slugs, b.Question)
		}
	}
	return slugs
}

// ScopePages picks the pages a progress bar on page counts over.
func ScopePages(pages []model.Page, page model.Page, scope model.ProgressScope) []model.Page {
	if scope == model.ScopePage {
		return []model.Page{page}
	}
	tree := Tree(pages, page.Slug)
	if tree == nil {
		return []model.Page{page}
	}
	return tree
}
