// Package fallback answers search requests from the local catalog and, when
// local results are thin, from external sources queried in parallel behind
// per-source circuit breakers, rate limiters and a response cache.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/lepinkainen/folio/internal/cache"
	folioerrors "github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/search"
	"github.com/lepinkainen/folio/internal/sources"
	"github.com/lepinkainen/folio/internal/sourcestate"
)

// Defaults for an Orchestrator.
const (
	DefaultSufficiencyThreshold = 10
	DefaultCallTimeout          = 3 * time.Second
	DefaultDeadline             = 5 * time.Second
	DefaultPoolSize             = 64
	DefaultBaselineScore        = 0.9
	DefaultBaselineStep         = 0.1
	MinBaselineScore            = 0.1
)

var (
	// ErrLocalSearchRequired is returned by New without a LocalSearch.
	ErrLocalSearchRequired = errors.New("local search is required")
	// ErrRegistryRequired is returned by New without a source registry.
	ErrRegistryRequired = errors.New("source registry is required")
	// ErrCacheRequired is returned by New without a response cache.
	ErrCacheRequired = errors.New("response cache is required")
)

// Orchestrator runs searches. It holds no per-request state; breakers,
// limiters and cached responses live in the injected registry and cache.
type Orchestrator struct {
	local     *search.LocalSearch
	sources   []sources.Source
	state     *sourcestate.Registry
	cache     *cache.ResponseCache
	pool      *ants.Pool
	poolSize  int
	threshold int
	timeout   time.Duration
	deadline  time.Duration
	baseline  float64
	step      float64
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithSources sets the external sources in priority order.
func WithSources(srcs ...sources.Source) Option {
	return func(o *Orchestrator) error {
		o.sources = append(o.sources, srcs...)
		return nil
	}
}

// WithSufficiencyThreshold sets how many local results make external sources
// unnecessary.
func WithSufficiencyThreshold(n int) Option {
	return func(o *Orchestrator) error {
		if n < 0 {
			return fmt.Errorf("sufficiency threshold must not be negative: %d", n)
		}
		o.threshold = n
		return nil
	}
}

// WithTimeouts sets the per-call timeout and the overall fan-out deadline.
func WithTimeouts(perCall, overall time.Duration) Option {
	return func(o *Orchestrator) error {
		if perCall <= 0 || overall <= 0 {
			return fmt.Errorf("timeouts must be positive: per call %s, overall %s", perCall, overall)
		}
		o.timeout = perCall
		o.deadline = overall
		return nil
	}
}

// WithPoolSize sets the number of fan-out workers shared by all requests.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		o.poolSize = size
		return nil
	}
}

// WithBaseline sets the score of external-only results: baseline minus step
// per source priority index, never below MinBaselineScore.
func WithBaseline(baseline, step float64) Option {
	return func(o *Orchestrator) error {
		if baseline <= 0 || step < 0 {
			return fmt.Errorf("invalid baseline %v / step %v", baseline, step)
		}
		o.baseline = baseline
		o.step = step
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// New creates an Orchestrator. Call Release when done with it.
func New(local *search.LocalSearch, state *sourcestate.Registry, rc *cache.ResponseCache, opts ...Option) (*Orchestrator, error) {
	if local == nil {
		return nil, ErrLocalSearchRequired
	}
	if state == nil {
		return nil, ErrRegistryRequired
	}
	if rc == nil {
		return nil, ErrCacheRequired
	}

	o := &Orchestrator{
		local:     local,
		state:     state,
		cache:     rc,
		poolSize:  DefaultPoolSize,
		threshold: DefaultSufficiencyThreshold,
		timeout:   DefaultCallTimeout,
		deadline:  DefaultDeadline,
		baseline:  DefaultBaselineScore,
		step:      DefaultBaselineStep,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(o.poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	o.pool = pool
	return o, nil
}

// Release stops the worker pool.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// Sources returns the configured sources in priority order.
func (o *Orchestrator) Sources() []sources.Source {
	return o.sources
}

// Search answers req. Validation problems are returned as ValidationError
// and a catalog failure as catalog.ErrUnavailable; source failures never
// fail the request.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Response, error) {
	q, err := search.Normalize(req.Query, req.Filters)
	if err != nil {
		return nil, err
	}
	sortBy, err := search.ParseSort(req.SortBy, req.SortOrder)
	if err != nil {
		return nil, err
	}
	page, err := search.NewPage(req.Page, req.Size)
	if err != nil {
		return nil, err
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	logger := o.logger.With("request_id", req.ID)

	if q.IsEmpty() {
		results, total, err := o.local.Search(ctx, q, sortBy, page)
		if err != nil {
			return nil, err
		}
		merged := make([]MergedResult, len(results))
		for i, r := range results {
			merged[i] = MergedResult{Result: r, Origin: OriginLocal}
		}
		logger.Debug("Browse request", "total", total, "page", page.Number)
		return o.response(q, page, merged, total, summarize(total, nil, false)), nil
	}

	local, err := o.local.Ranked(ctx, q)
	if err != nil {
		return nil, err
	}

	if len(local) >= o.threshold && !req.IncludeExternal {
		logger.Debug("Local results sufficient", "query", q.Raw, "local", len(local))
		m := newMerger(q, local, o.baseline, o.step, MinBaselineScore)
		return o.finish(q, sortBy, page, m.results, summarize(len(m.results), nil, true)), nil
	}

	outcomes := o.fanOut(ctx, logger, q)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := newMerger(q, local, o.baseline, o.step, MinBaselineScore)
	for p, r := range outcomes {
		if r.outcome.contributed() {
			m.addSource(p, r.source, r.candidates)
		}
	}

	summary := summarize(len(m.results), outcomes, false)
	resp := o.finish(q, sortBy, page, m.results, summary)
	resp.Sources = reports(outcomes)

	logger.Info("Search completed",
		"query", q.Raw,
		"local", len(local),
		"total", resp.TotalResults,
		"summary", summary)
	return resp, nil
}

func (o *Orchestrator) finish(q search.Query, s search.Sort, page search.Page, results []MergedResult, summary Summary) *Response {
	sortMerged(results, s)
	return o.response(q, page, search.Slice(results, page), len(results), summary)
}

func (o *Orchestrator) response(q search.Query, page search.Page, results []MergedResult, total int, summary Summary) *Response {
	if results == nil {
		results = []MergedResult{}
	}
	return &Response{
		Results:       results,
		TotalResults:  total,
		Query:         q.Raw,
		Page:          page.Number,
		Size:          page.Size,
		HasMore:       page.HasMore(total),
		OriginSummary: summary,
	}
}

// fanOut consults every source in priority order. Cache hits are used as
// is; otherwise a source is dispatched only when its breaker and limiter
// both allow it. Results arriving after the overall deadline are dropped.
func (o *Orchestrator) fanOut(ctx context.Context, logger *slog.Logger, q search.Query) []sourceResult {
	results := make([]sourceResult, len(o.sources))
	if len(o.sources) == 0 {
		return results
	}

	fanCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	key := q.Key()
	done := make(chan sourceResult, len(o.sources))
	pending := 0

	for i, src := range o.sources {
		name := src.Name()
		results[i] = sourceResult{index: i, source: name}

		if cached, ok := o.cache.Get(key, name); ok {
			results[i].outcome = OutcomeCached
			results[i].candidates = cached
			logger.Debug("Cache hit", "source", name, "candidates", len(cached))
			continue
		}

		entry := o.state.Get(name)
		if !entry.Breaker.Allow() {
			results[i].outcome = OutcomeCircuitOpen
			results[i].err = folioerrors.NewSourceUnavailableError(name, "circuit open")
			logger.Debug("Source unavailable", "source", name, "reason", "circuit open")
			continue
		}
		if !entry.Limiter.TryAcquire() {
			entry.Breaker.Release()
			results[i].outcome = OutcomeRateLimited
			results[i].err = folioerrors.NewRateLimitError(name + " request budget exhausted")
			logger.Debug("Source unavailable", "source", name, "reason", "rate limited")
			continue
		}

		task := o.fetchTask(fanCtx, logger, i, src, entry, key, q.Raw, done)
		if err := o.pool.Submit(task); err != nil {
			entry.Breaker.Release()
			results[i].outcome = OutcomeOverloaded
			results[i].err = folioerrors.NewSourceUnavailableError(name, "worker pool saturated")
			logger.Warn("Source unavailable", "source", name, "reason", "worker pool", "error", err)
			continue
		}
		results[i].outcome = outcomePending
		pending++
	}

	for pending > 0 {
		select {
		case r := <-done:
			results[r.index] = r
			pending--
		case <-fanCtx.Done():
			for i := range results {
				if results[i].outcome == outcomePending {
					results[i].outcome = OutcomeAbandoned
					logger.Warn("Source abandoned at deadline", "source", results[i].source, "deadline", o.deadline)
				}
			}
			return results
		}
	}
	return results
}

// fetchTask calls one source. It reports to the breaker and cache even when
// the request has stopped waiting for it.
func (o *Orchestrator) fetchTask(
	fanCtx context.Context,
	logger *slog.Logger,
	index int,
	src sources.Source,
	entry *sourcestate.Entry,
	key, raw string,
	done chan<- sourceResult,
) func() {
	return func() {
		callCtx, cancel := context.WithTimeout(fanCtx, o.timeout)
		defer cancel()

		name := src.Name()
		start := time.Now()
		candidates, err := src.Fetch(callCtx, raw)
		r := sourceResult{index: index, source: name}

		switch {
		case err == nil:
			r.candidates = candidates
			// cache first so no request sees a closed breaker and a cold cache
			o.cache.Put(key, name, candidates, 0)
			entry.Breaker.RecordSuccess()
			r.outcome = OutcomeOK
			logger.Debug("Source responded", "source", name, "candidates", len(candidates), "duration", time.Since(start))
		case errors.Is(callCtx.Err(), context.Canceled):
			// the caller went away before any deadline; not the source's fault
			entry.Breaker.Release()
			r.outcome = OutcomeAbandoned
			r.err = err
		default:
			entry.Breaker.RecordFailure()
			r.err = sources.Classify(name, err)
			r.outcome = OutcomeFailed
			if sources.KindOf(r.err) == sources.Timeout {
				r.outcome = OutcomeTimeout
			}
			if folioerrors.IsRateLimitError(err) {
				logger.Info("Source rate limited upstream", "source", name, "error", err)
				break
			}
			logger.Warn("Source failed", "source", name, "kind", sources.KindOf(r.err).String(), "error", err, "duration", time.Since(start))
		}

		done <- r
	}
}

// summarize picks the origin summary for a response with total results.
func summarize(total int, outcomes []sourceResult, localSufficient bool) Summary {
	if total == 0 {
		return SummaryEmpty
	}
	if localSufficient {
		return SummaryLocalOnly
	}

	var contributed, missing, dispatched bool
	for _, r := range outcomes {
		if r.outcome.contributed() {
			contributed = true
		} else {
			missing = true
		}
		if r.outcome.dispatched() {
			dispatched = true
		}
	}

	switch {
	case contributed && missing:
		return SummaryMergedPartial
	case contributed:
		return SummaryMerged
	case dispatched:
		return SummaryMergedPartial
	default:
		return SummaryLocalOnly
	}
}

func reports(outcomes []sourceResult) []SourceReport {
	out := make([]SourceReport, len(outcomes))
	for i, r := range outcomes {
		out[i] = SourceReport{
			Source:     r.source,
			Outcome:    r.outcome,
			Candidates: len(r.candidates),
		}
		if r.err != nil {
			out[i].Error = r.err.Error()
		}
	}
	return out
}

func sortMerged(results []MergedResult, s search.Sort) {
	slices.SortStableFunc(results, func(a, b MergedResult) int {
		switch {
		case search.Less(&a.Result, &b.Result, s):
			return -1
		case search.Less(&b.Result, &a.Result, s):
			return 1
		}
		return 0
	})
}
