// Package sourcestate holds the process-wide breaker and limiter for each
// external source, keyed by source name. A Registry is constructed once and
// injected; tests build isolated instances.
package sourcestate

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lepinkainen/folio/internal/breaker"
	"github.com/lepinkainen/folio/internal/ratelimit"
)

// Default limiter settings applied to sources without their own.
const (
	DefaultRate  = 1.0
	DefaultBurst = 5
)

// Limits configures a source's token bucket.
type Limits struct {
	Rate  float64 `mapstructure:"rate" yaml:"rate"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

// Entry is the resilience state of a single source.
type Entry struct {
	Name    string
	Breaker *breaker.Breaker
	Limiter *ratelimit.Limiter
}

// Registry lazily creates one Entry per source name.
type Registry struct {
	entries        sync.Map
	breakerOptions []breaker.Option
	defaultLimits  Limits
	limits         map[string]Limits
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithBreakerOptions applies opts to every breaker the registry creates.
func WithBreakerOptions(opts ...breaker.Option) Option {
	return func(r *Registry) {
		r.breakerOptions = append(r.breakerOptions, opts...)
	}
}

// WithDefaultLimits sets the bucket used by sources without explicit limits.
func WithDefaultLimits(l Limits) Option {
	return func(r *Registry) {
		if l.Rate > 0 {
			r.defaultLimits = l
		}
	}
}

// WithLimits sets the bucket for one source.
func WithLimits(name string, l Limits) Option {
	return func(r *Registry) {
		r.limits[name] = l
	}
}

// WithClock sets the clock shared by breakers and limiters (for testing).
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithLogger sets the logger used for breaker transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		defaultLimits: Limits{Rate: DefaultRate, Burst: DefaultBurst},
		limits:        make(map[string]Limits),
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the entry for name, creating it on first use. Concurrent first
// calls for the same name all receive the same entry.
func (r *Registry) Get(name string) *Entry {
	if existing, ok := r.entries.Load(name); ok {
		return existing.(*Entry)
	}
	actual, _ := r.entries.LoadOrStore(name, r.newEntry(name))
	return actual.(*Entry)
}

// Lookup returns the entry for name without creating one.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	existing, ok := r.entries.Load(name)
	if !ok {
		return nil, false
	}
	return existing.(*Entry), true
}

// Entries returns every known entry ordered by name.
func (r *Registry) Entries() []*Entry {
	var out []*Entry
	r.entries.Range(func(_, value any) bool {
		out = append(out, value.(*Entry))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) newEntry(name string) *Entry {
	limits, ok := r.limits[name]
	if !ok || limits.Rate <= 0 {
		limits = r.defaultLimits
	}

	opts := append([]breaker.Option{
		breaker.WithClock(r.now),
		breaker.WithOnStateChange(r.logTransition),
	}, r.breakerOptions...)

	return &Entry{
		Name:    name,
		Breaker: breaker.New(name, opts...),
		Limiter: ratelimit.NewWithBurst(name, limits.Rate, limits.Burst, ratelimit.WithClock(r.now)),
	}
}

func (r *Registry) logTransition(name string, from, to breaker.State) {
	if to == breaker.Open {
		r.logger.Warn("Circuit opened", "source", name, "from", from.String())
		return
	}
	r.logger.Info("Circuit state changed", "source", name, "from", from.String(), "to", to.String())
}
