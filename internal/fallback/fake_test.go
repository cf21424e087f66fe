package fallback

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/cache"
	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/search"
	"github.com/lepinkainen/folio/internal/sources"
	"github.com/lepinkainen/folio/internal/sourcestate"
	"github.com/lepinkainen/folio/internal/testutil"
)

type fakeSource struct {
	name  string
	calls atomic.Int32
	fetch func(ctx context.Context, query string) ([]sources.Candidate, error)
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, query string) ([]sources.Candidate, error) {
	f.calls.Add(1)
	return f.fetch(ctx, query)
}

func returning(name string, candidates ...sources.Candidate) *fakeSource {
	return &fakeSource{name: name, fetch: func(context.Context, string) ([]sources.Candidate, error) {
		return candidates, nil
	}}
}

func failing(name string, kind sources.Kind) *fakeSource {
	return &fakeSource{name: name, fetch: func(context.Context, string) ([]sources.Candidate, error) {
		return nil, sources.NewError(name, kind, context.DeadlineExceeded)
	}}
}

// hanging blocks until its context ends.
func hanging(name string) *fakeSource {
	return &fakeSource{name: name, fetch: func(ctx context.Context, _ string) ([]sources.Candidate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

type harness struct {
	orch     *Orchestrator
	registry *sourcestate.Registry
	cache    *cache.ResponseCache
	clock    *testutil.Clock
}

func newHarness(t *testing.T, books []catalog.Book, srcs []sources.Source, opts ...Option) *harness {
	t.Helper()

	store := catalog.NewSQLiteStore(":memory:", catalog.StrategyLike)
	require.NoError(t, store.Connect(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	if len(books) > 0 {
		_, err := store.Upsert(context.Background(), books)
		require.NoError(t, err)
	}

	clock := testutil.NewClock()
	registry := sourcestate.New(
		sourcestate.WithClock(clock.Now),
		sourcestate.WithDefaultLimits(sourcestate.Limits{Rate: 100, Burst: 100}),
	)
	rc := newTestCache()

	opts = append([]Option{WithSources(srcs...)}, opts...)
	orch, err := New(search.NewLocalSearch(store), registry, rc, opts...)
	require.NoError(t, err)
	t.Cleanup(orch.Release)

	return &harness{orch: orch, registry: registry, cache: rc, clock: clock}
}

func (h *harness) search(t *testing.T, req Request) *Response {
	t.Helper()
	resp, err := h.orch.Search(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func outcomeOf(resp *Response, source string) Outcome {
	for _, r := range resp.Sources {
		if r.Source == source {
			return r.Outcome
		}
	}
	return ""
}

func tolkienBooks() []catalog.Book {
	return []catalog.Book{
		{Title: "The Hobbit", Author: "J.R.R. Tolkien", ISBN: "9780547928227", Genre: "Fantasy"},
		{Title: "The Silmarillion", Author: "J.R.R. Tolkien", ISBN: "9780544338012", Genre: "Fantasy", Description: "Myths of the First Age."},
		{Title: "Unfinished Tales", Author: "J.R.R. Tolkien", ISBN: "9780544337800", Genre: "Fantasy"},
	}
}

func newTestCache() *cache.ResponseCache {
	return cache.New(time.Hour, time.Hour)
}
