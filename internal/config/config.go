// Package config holds folio's viper-backed configuration: defaults, the
// typed Config read from them, and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/sourcestate"
)

// Source identifiers used in configuration.
const (
	SourceOpenLibrary = "openlibrary"
	SourceGoogleBooks = "googlebooks"
	SourceISBNdb      = "isbndb"
)

// Config is the typed view of the viper configuration.
type Config struct {
	Catalog   CatalogConfig
	Search    SearchConfig
	Fallback  FallbackConfig
	Breaker   BreakerConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Sources   SourcesConfig
	Server    ServerConfig
	LogLevel  string
}

// CatalogConfig configures the local SQLite catalog.
type CatalogConfig struct {
	DBFile   string
	Strategy catalog.Strategy
	// BatchSize is how many rows local search reads per round trip.
	BatchSize int
}

// SearchConfig configures local search and paging.
type SearchConfig struct {
	SufficiencyThreshold int
	PageSize             int
}

// FallbackConfig configures the external fan-out.
type FallbackConfig struct {
	CallTimeout time.Duration
	Deadline    time.Duration
	PoolSize    int
	Baseline    float64
	Step        float64
}

// BreakerConfig configures every source circuit breaker.
type BreakerConfig struct {
	Threshold    int
	Window       time.Duration
	OpenDuration time.Duration
}

// RateLimitConfig configures source token buckets.
type RateLimitConfig struct {
	Default sourcestate.Limits
	// Sources holds per-source overrides keyed by source identifier.
	Sources map[string]sourcestate.Limits
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	TTL         time.Duration
	Cleanup     time.Duration
	NegativeTTL time.Duration
}

// SourcesConfig lists enabled sources in priority order and their settings.
type SourcesConfig struct {
	Enabled     []string
	Results     int
	OpenLibrary SourceConfig
	GoogleBooks SourceConfig
	ISBNdb      SourceConfig
}

// SourceConfig is the endpoint and credential of one source.
type SourceConfig struct {
	BaseURL string
	APIKey  string
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string
}

// InitConfig registers defaults and environment bindings on the global viper
// instance.
func InitConfig() {
	viper.SetDefault("catalog.dbfile", "./folio.db")
	viper.SetDefault("catalog.strategy", string(catalog.StrategyLike))
	viper.SetDefault("catalog.batchsize", 500)

	viper.SetDefault("search.sufficiencythreshold", 10)
	viper.SetDefault("search.pagesize", 20)

	viper.SetDefault("fallback.calltimeout", "3s")
	viper.SetDefault("fallback.deadline", "5s")
	viper.SetDefault("fallback.poolsize", 64)
	viper.SetDefault("fallback.baseline", 0.9)
	viper.SetDefault("fallback.step", 0.1)

	viper.SetDefault("breaker.threshold", 5)
	viper.SetDefault("breaker.window", "60s")
	viper.SetDefault("breaker.openduration", "30s")

	viper.SetDefault("ratelimit.default.rate", sourcestate.DefaultRate)
	viper.SetDefault("ratelimit.default.burst", sourcestate.DefaultBurst)

	viper.SetDefault("cache.ttl", "10m")
	viper.SetDefault("cache.cleanup", "5m")
	viper.SetDefault("cache.negativettl", "1m")

	viper.SetDefault("sources.enabled", []string{SourceOpenLibrary, SourceGoogleBooks, SourceISBNdb})
	viper.SetDefault("sources.results", 10)
	viper.SetDefault("sources.openlibrary.baseurl", "https://openlibrary.org")
	viper.SetDefault("sources.googlebooks.baseurl", "https://www.googleapis.com/books/v1")
	viper.SetDefault("sources.isbndb.baseurl", "https://api2.isbndb.com")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("log.level", "info")

	viper.AutomaticEnv()
	_ = viper.BindEnv("sources.googlebooks.apikey", "GOOGLE_BOOKS_API_KEY")
	_ = viper.BindEnv("sources.isbndb.apikey", "ISBNDB_API_KEY")
}

// Load reads the current viper configuration into a Config and validates it.
func Load() (Config, error) {
	strategy, err := catalog.ParseStrategy(viper.GetString("catalog.strategy"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Catalog: CatalogConfig{
			DBFile:    viper.GetString("catalog.dbfile"),
			Strategy:  strategy,
			BatchSize: viper.GetInt("catalog.batchsize"),
		},
		Search: SearchConfig{
			SufficiencyThreshold: viper.GetInt("search.sufficiencythreshold"),
			PageSize:             viper.GetInt("search.pagesize"),
		},
		Fallback: FallbackConfig{
			CallTimeout: viper.GetDuration("fallback.calltimeout"),
			Deadline:    viper.GetDuration("fallback.deadline"),
			PoolSize:    viper.GetInt("fallback.poolsize"),
			Baseline:    viper.GetFloat64("fallback.baseline"),
			Step:        viper.GetFloat64("fallback.step"),
		},
		Breaker: BreakerConfig{
			Threshold:    viper.GetInt("breaker.threshold"),
			Window:       viper.GetDuration("breaker.window"),
			OpenDuration: viper.GetDuration("breaker.openduration"),
		},
		RateLimit: RateLimitConfig{
			Default: sourcestate.Limits{
				Rate:  viper.GetFloat64("ratelimit.default.rate"),
				Burst: viper.GetInt("ratelimit.default.burst"),
			},
			Sources: map[string]sourcestate.Limits{},
		},
		Cache: CacheConfig{
			TTL:         viper.GetDuration("cache.ttl"),
			Cleanup:     viper.GetDuration("cache.cleanup"),
			NegativeTTL: viper.GetDuration("cache.negativettl"),
		},
		Sources: SourcesConfig{
			Enabled: normalizeIDs(viper.GetStringSlice("sources.enabled")),
			Results: viper.GetInt("sources.results"),
			OpenLibrary: SourceConfig{
				BaseURL: viper.GetString("sources.openlibrary.baseurl"),
			},
			GoogleBooks: SourceConfig{
				BaseURL: viper.GetString("sources.googlebooks.baseurl"),
				APIKey:  viper.GetString("sources.googlebooks.apikey"),
			},
			ISBNdb: SourceConfig{
				BaseURL: viper.GetString("sources.isbndb.baseurl"),
				APIKey:  viper.GetString("sources.isbndb.apikey"),
			},
		},
		Server:   ServerConfig{Addr: viper.GetString("server.addr")},
		LogLevel: viper.GetString("log.level"),
	}

	if viper.IsSet("ratelimit.sources") {
		if err := viper.UnmarshalKey("ratelimit.sources", &cfg.RateLimit.Sources); err != nil {
			return Config{}, fmt.Errorf("invalid ratelimit.sources: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Validate checks ranges and known source identifiers.
func (c Config) Validate() error {
	if c.Catalog.DBFile == "" {
		return fmt.Errorf("catalog.dbfile must not be empty")
	}
	if c.Search.SufficiencyThreshold < 0 {
		return fmt.Errorf("search.sufficiencythreshold must not be negative")
	}
	if c.Search.PageSize < 1 || c.Search.PageSize > 100 {
		return fmt.Errorf("search.pagesize must be between 1 and 100, got %d", c.Search.PageSize)
	}
	if c.Fallback.CallTimeout <= 0 || c.Fallback.Deadline <= 0 {
		return fmt.Errorf("fallback timeouts must be positive")
	}
	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker.threshold must be at least 1")
	}
	if c.Breaker.OpenDuration <= 0 {
		return fmt.Errorf("breaker.openduration must be positive")
	}
	if c.RateLimit.Default.Rate <= 0 {
		return fmt.Errorf("ratelimit.default.rate must be positive")
	}
	for _, id := range c.Sources.Enabled {
		switch id {
		case SourceOpenLibrary, SourceGoogleBooks, SourceISBNdb:
		default:
			return fmt.Errorf("unknown source %q in sources.enabled", id)
		}
	}
	return nil
}

// Limits returns the token bucket settings for a source identifier.
func (c Config) Limits(id string) sourcestate.Limits {
	if l, ok := c.RateLimit.Sources[id]; ok && l.Rate > 0 {
		return l
	}
	return c.RateLimit.Default
}
