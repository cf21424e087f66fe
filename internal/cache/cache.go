// Package cache holds external source responses in memory, keyed by
// normalized query and source name.
package cache

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/lepinkainen/folio/internal/sources"
)

const (
	// DefaultTTL is the lifetime of a cached source response.
	DefaultTTL = 10 * time.Minute
	// DefaultCleanupInterval is how often expired entries are swept.
	DefaultCleanupInterval = 5 * time.Minute
	// DefaultNegativeTTL is the lifetime of a cached empty response.
	DefaultNegativeTTL = time.Minute
)

const keySeparator = "\x00"

// ResponseCache is a TTL cache of source responses. Reads never block each
// other; writes to the same key are last-write-wins.
type ResponseCache struct {
	items       *gocache.Cache
	ttl         time.Duration
	negativeTTL time.Duration
	logger      *slog.Logger
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

// WithNegativeTTL sets the lifetime of empty responses. Zero caches them for
// the full TTL.
func WithNegativeTTL(ttl time.Duration) Option {
	return func(c *ResponseCache) {
		c.negativeTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ResponseCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a ResponseCache. Non-positive durations take the defaults.
func New(ttl, cleanupInterval time.Duration, opts ...Option) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	c := &ResponseCache{
		items:       gocache.New(ttl, cleanupInterval),
		ttl:         ttl,
		negativeTTL: DefaultNegativeTTL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(query, source string) string {
	return source + keySeparator + query
}

// Get returns the cached candidates for (query, source). Expired entries are
// misses even before the sweeper removes them.
func (c *ResponseCache) Get(query, source string) ([]sources.Candidate, bool) {
	value, found := c.items.Get(cacheKey(query, source))
	if !found {
		return nil, false
	}
	candidates, ok := value.([]sources.Candidate)
	if !ok {
		return nil, false
	}
	return slices.Clone(candidates), true
}

// Put stores candidates for (query, source). A ttl of 0 uses the cache TTL,
// or the negative TTL when candidates is empty.
func (c *ResponseCache) Put(query, source string, candidates []sources.Candidate, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
		if len(candidates) == 0 && c.negativeTTL > 0 {
			ttl = c.negativeTTL
		}
	}
	c.items.Set(cacheKey(query, source), slices.Clone(candidates), ttl)
	c.logger.Debug("Cached source response", "source", source, "query", query, "candidates", len(candidates), "ttl", ttl)
}

// InvalidateSource removes every entry for source and returns how many were
// removed.
func (c *ResponseCache) InvalidateSource(source string) int {
	prefix := source + keySeparator
	removed := 0
	for key := range c.items.Items() {
		if strings.HasPrefix(key, prefix) {
			c.items.Delete(key)
			removed++
		}
	}
	c.logger.Debug("Cache source cleared", "source", source, "entries_deleted", removed)
	return removed
}

// Flush removes every entry.
func (c *ResponseCache) Flush() {
	c.items.Flush()
}

// ItemCount returns the number of entries, including expired ones not yet
// swept.
func (c *ResponseCache) ItemCount() int {
	return c.items.ItemCount()
}
