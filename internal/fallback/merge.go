package fallback

import (
	"slices"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/isbn"
	"github.com/lepinkainen/folio/internal/search"
	"github.com/lepinkainen/folio/internal/sources"
	"github.com/lepinkainen/folio/internal/textnorm"
)

// sourceResult is what one source delivered for a request.
type sourceResult struct {
	index      int
	source     string
	outcome    Outcome
	candidates []sources.Candidate
	err        error
}

// merger accumulates local results and external candidates, deduplicating
// by ISBN and otherwise by folded (title, author).
type merger struct {
	query    search.Query
	results  []MergedResult
	byISBN   map[string]int
	byTitle  map[string][]int
	baseline float64
	step     float64
	floor    float64
}

func newMerger(q search.Query, local []search.Result, baseline, step, floor float64) *merger {
	m := &merger{
		query:    q,
		results:  make([]MergedResult, 0, len(local)),
		byISBN:   make(map[string]int),
		byTitle:  make(map[string][]int),
		baseline: baseline,
		step:     step,
		floor:    floor,
	}
	for _, r := range local {
		m.add(MergedResult{Result: r, Origin: OriginLocal})
	}
	return m
}

func titleKey(title, author string) string {
	return textnorm.Fold(title) + "\x00" + textnorm.Fold(author)
}

func (m *merger) add(r MergedResult) {
	idx := len(m.results)
	m.results = append(m.results, r)
	if key := isbn.Normalize(r.ISBN); key != "" {
		m.byISBN[key] = idx
	}
	tk := titleKey(r.Title, r.Author)
	m.byTitle[tk] = append(m.byTitle[tk], idx)
}

// find returns the index of an existing result r duplicates. Two records are
// the same when both carry the same ISBN, or when at least one lacks an
// ISBN and their titles and authors match.
func (m *merger) find(r search.Result) (int, bool) {
	key := isbn.Normalize(r.ISBN)
	if key != "" {
		if idx, ok := m.byISBN[key]; ok {
			return idx, true
		}
	}
	for _, idx := range m.byTitle[titleKey(r.Title, r.Author)] {
		if key == "" || isbn.Normalize(m.results[idx].ISBN) == "" {
			return idx, true
		}
	}
	return 0, false
}

// addSource merges candidates from the source at priority index p.
func (m *merger) addSource(p int, name string, candidates []sources.Candidate) {
	score := max(m.baseline-m.step*float64(p), m.floor)
	for _, c := range candidates {
		if c.Title == "" {
			continue
		}
		ext := candidateResult(m.query, c)

		if idx, ok := m.find(ext); ok {
			m.absorb(idx, ext, name)
			continue
		}
		if !matchesFilters(c, m.query.Filters) {
			continue
		}

		ext.Score = score
		ext.ID = 0
		m.add(MergedResult{Result: ext, Origin: OriginExternal, ExternalSource: name})
	}
}

// absorb folds a duplicate external record into an existing result. Local
// fields stay authoritative; only empty ones are filled.
func (m *merger) absorb(idx int, ext search.Result, source string) {
	dst := &m.results[idx]
	switch dst.Origin {
	case OriginLocal:
		dst.Origin = OriginBoth
		dst.ExternalSource = source
	case OriginExternal, OriginBoth:
		if dst.ExternalSource == "" {
			dst.ExternalSource = source
		}
	}

	if dst.Description == "" {
		dst.Description = ext.Description
	}
	if dst.CoverURL == "" {
		dst.CoverURL = ext.CoverURL
	}
	if dst.Publisher == "" {
		dst.Publisher = ext.Publisher
	}
	if dst.Genre == "" {
		dst.Genre = ext.Genre
	}
	if dst.PublicationYear == 0 {
		dst.PublicationYear = ext.PublicationYear
	}
	if dst.ISBN == "" && ext.ISBN != "" {
		dst.ISBN = ext.ISBN
		m.byISBN[isbn.Normalize(ext.ISBN)] = idx
	}

	dst.MatchedFields = search.MergeFields(dst.MatchedFields, ext.MatchedFields)
	dst.MatchedTerms = search.MergeFields(dst.MatchedTerms, ext.MatchedTerms)
}

// candidateResult converts a candidate and records which fields the query
// matched in it.
func candidateResult(q search.Query, c sources.Candidate) search.Result {
	book := catalog.Book{
		Title:           c.Title,
		Author:          c.Author(),
		ISBN:            isbn.Normalize(c.ISBN),
		Genre:           c.Genre(),
		Publisher:       c.Publisher,
		Description:     c.Description,
		CoverURL:        c.CoverURL,
		PublicationYear: c.PublishYear,
	}
	return search.Score(q, book, catalog.TextMatch{})
}

// matchesFilters applies request filters to an external-only candidate.
// Sources know nothing of shelves or ratings, so those filters exclude it.
func matchesFilters(c sources.Candidate, f catalog.Filters) bool {
	if f.PhysicalLocation != "" || f.MinRating > 0 {
		return false
	}
	if f.Category != "" && !slices.ContainsFunc(c.Subjects, func(s string) bool {
		return textnorm.Equal(s, f.Category)
	}) {
		return false
	}
	if f.YearFrom > 0 && (c.PublishYear == 0 || c.PublishYear < f.YearFrom) {
		return false
	}
	if f.YearTo > 0 && (c.PublishYear == 0 || c.PublishYear > f.YearTo) {
		return false
	}
	return true
}
