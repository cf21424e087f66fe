package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/sourcestate"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	InitConfig()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./folio.db", cfg.Catalog.DBFile)
	assert.Equal(t, catalog.StrategyLike, cfg.Catalog.Strategy)
	assert.Equal(t, 500, cfg.Catalog.BatchSize)
	assert.Equal(t, 10, cfg.Search.SufficiencyThreshold)
	assert.Equal(t, 20, cfg.Search.PageSize)
	assert.Equal(t, 3*time.Second, cfg.Fallback.CallTimeout)
	assert.Equal(t, 5*time.Second, cfg.Fallback.Deadline)
	assert.Equal(t, 5, cfg.Breaker.Threshold)
	assert.Equal(t, time.Minute, cfg.Breaker.Window)
	assert.Equal(t, 30*time.Second, cfg.Breaker.OpenDuration)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.Cleanup)
	assert.Equal(t, []string{SourceOpenLibrary, SourceGoogleBooks, SourceISBNdb}, cfg.Sources.Enabled)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvironmentAPIKeys(t *testing.T) {
	resetViper(t)
	t.Setenv("GOOGLE_BOOKS_API_KEY", "gb-key")
	t.Setenv("ISBNDB_API_KEY", "isbndb-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gb-key", cfg.Sources.GoogleBooks.APIKey)
	assert.Equal(t, "isbndb-key", cfg.Sources.ISBNdb.APIKey)
}

func TestLoad_Overrides(t *testing.T) {
	resetViper(t)
	viper.Set("catalog.strategy", "fulltext")
	viper.Set("sources.enabled", []string{" ISBNdb ", "openlibrary", ""})
	viper.Set("ratelimit.sources", map[string]any{
		"isbndb": map[string]any{"rate": 0.5, "burst": 1},
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, catalog.StrategyFullText, cfg.Catalog.Strategy)
	assert.Equal(t, []string{SourceISBNdb, SourceOpenLibrary}, cfg.Sources.Enabled)
	assert.Equal(t, sourcestate.Limits{Rate: 0.5, Burst: 1}, cfg.Limits(SourceISBNdb))
	assert.Equal(t, cfg.RateLimit.Default, cfg.Limits(SourceOpenLibrary))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{name: "strategy", key: "catalog.strategy", value: "vector"},
		{name: "page size", key: "search.pagesize", value: 0},
		{name: "timeout", key: "fallback.calltimeout", value: "0s"},
		{name: "threshold", key: "breaker.threshold", value: 0},
		{name: "unknown source", key: "sources.enabled", value: []string{"amazon"}},
		{name: "rate", key: "ratelimit.default.rate", value: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			viper.Set(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
