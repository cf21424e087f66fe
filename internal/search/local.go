package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/folio/internal/catalog"
)

// DefaultBatchSize is how many catalog rows are fetched per round trip.
const DefaultBatchSize = 500

// LocalSearch ranks catalog rows for a query.
type LocalSearch struct {
	store     catalog.Store
	batchSize int
	logger    *slog.Logger
}

// Option configures a LocalSearch.
type Option func(*LocalSearch)

// WithBatchSize sets how many catalog rows are fetched per round trip.
func WithBatchSize(n int) Option {
	return func(l *LocalSearch) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *LocalSearch) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocalSearch creates a LocalSearch over store.
func NewLocalSearch(store catalog.Store, opts ...Option) *LocalSearch {
	l := &LocalSearch{
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Ranked returns every matching row, scored and ordered by relevance. For the
// empty query it returns rows ordered by title with zero scores. Rows are
// read in batches and all of them are scored before ordering.
func (l *LocalSearch) Ranked(ctx context.Context, q Query) ([]Result, error) {
	criteria := q.Criteria()
	if !q.IsEmpty() && criteria.MatchAll() {
		// only sub-length terms; nothing can match
		return nil, nil
	}

	var results []Result
	scanned := 0
	for offset := 0; ; offset += l.batchSize {
		rows, err := l.store.Search(ctx, criteria, q.Filters, catalog.Page{Limit: l.batchSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("local search: %w", err)
		}
		scanned += len(rows)

		for _, row := range rows {
			if q.IsEmpty() {
				results = append(results, FromBook(row.Book))
				continue
			}
			r := Score(q, row.Book, row.Match)
			if r.Score <= 0 {
				continue
			}
			results = append(results, r)
		}
		if len(rows) < l.batchSize {
			break
		}
	}
	l.logger.Debug("Local candidates scored", "query", q.Raw, "scanned", scanned, "matched", len(results))

	if !q.IsEmpty() {
		SortResults(results, DefaultSort)
	}
	return results, nil
}

// Search returns one page of local results under s and the total number of
// matches. The empty query is paged by the catalog directly when s is its
// native title ordering.
func (l *LocalSearch) Search(ctx context.Context, q Query, s Sort, p Page) ([]Result, int, error) {
	if q.IsEmpty() && s.TitleOrder() {
		return l.browse(ctx, q, p)
	}

	results, err := l.Ranked(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	SortResults(results, s)
	return Slice(results, p), len(results), nil
}

func (l *LocalSearch) browse(ctx context.Context, q Query, p Page) ([]Result, int, error) {
	total, err := l.store.Count(ctx, catalog.Criteria{}, q.Filters)
	if err != nil {
		return nil, 0, fmt.Errorf("local search: %w", err)
	}

	rows, err := l.store.Search(ctx, catalog.Criteria{}, q.Filters, catalog.Page{Limit: p.Size, Offset: p.Offset()})
	if err != nil {
		return nil, 0, fmt.Errorf("local search: %w", err)
	}

	results := make([]Result, len(rows))
	for i, row := range rows {
		results[i] = FromBook(row.Book)
	}
	return results, total, nil
}
