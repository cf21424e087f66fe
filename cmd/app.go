package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lepinkainen/folio/internal/breaker"
	"github.com/lepinkainen/folio/internal/cache"
	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/fallback"
	"github.com/lepinkainen/folio/internal/health"
	"github.com/lepinkainen/folio/internal/search"
	"github.com/lepinkainen/folio/internal/sources"
	"github.com/lepinkainen/folio/internal/sources/googlebooks"
	"github.com/lepinkainen/folio/internal/sources/isbndb"
	"github.com/lepinkainen/folio/internal/sources/openlibrary"
	"github.com/lepinkainen/folio/internal/sourcestate"
)

// sourceNames maps configuration identifiers to source names.
var sourceNames = map[string]string{
	config.SourceOpenLibrary: openlibrary.Name,
	config.SourceGoogleBooks: googlebooks.Name,
	config.SourceISBNdb:      isbndb.Name,
}

// resolveSourceName accepts a configuration identifier or a source name.
func resolveSourceName(value string) (string, error) {
	if name, ok := sourceNames[strings.ToLower(strings.TrimSpace(value))]; ok {
		return name, nil
	}
	for _, name := range sourceNames {
		if strings.EqualFold(name, strings.TrimSpace(value)) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", value)
}

// app is the fully wired search stack used by serve and search.
type app struct {
	cfg      config.Config
	store    *catalog.SQLiteStore
	registry *sourcestate.Registry
	cache    *cache.ResponseCache
	orch     *fallback.Orchestrator
	monitor  *health.Monitor
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := newRegistry(cfg, logger)
	rc := cache.New(cfg.Cache.TTL, cfg.Cache.Cleanup,
		cache.WithNegativeTTL(cfg.Cache.NegativeTTL),
		cache.WithLogger(logger))
	srcs := buildSources(cfg, logger)

	local := search.NewLocalSearch(store,
		search.WithBatchSize(cfg.Catalog.BatchSize),
		search.WithLogger(logger))

	orch, err := fallback.New(local, registry, rc,
		fallback.WithSources(srcs...),
		fallback.WithSufficiencyThreshold(cfg.Search.SufficiencyThreshold),
		fallback.WithTimeouts(cfg.Fallback.CallTimeout, cfg.Fallback.Deadline),
		fallback.WithPoolSize(cfg.Fallback.PoolSize),
		fallback.WithBaseline(cfg.Fallback.Baseline, cfg.Fallback.Step),
		fallback.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	var names []string
	for _, src := range orch.Sources() {
		names = append(names, src.Name())
	}

	return &app{
		cfg:      cfg,
		store:    store,
		registry: registry,
		cache:    rc,
		orch:     orch,
		monitor:  health.NewMonitor(registry, names...),
	}, nil
}

func (a *app) Close() {
	a.orch.Release()
	a.cache.Flush()
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close catalog", "error", err)
	}
}

func openCatalog(ctx context.Context, cfg config.Config, logger *slog.Logger) (*catalog.SQLiteStore, error) {
	store := catalog.NewSQLiteStore(cfg.Catalog.DBFile, cfg.Catalog.Strategy, catalog.WithLogger(logger))
	if err := store.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", cfg.Catalog.DBFile, err)
	}
	return store, nil
}

func newRegistry(cfg config.Config, logger *slog.Logger) *sourcestate.Registry {
	opts := []sourcestate.Option{
		sourcestate.WithBreakerOptions(
			breaker.WithThreshold(cfg.Breaker.Threshold),
			breaker.WithWindow(cfg.Breaker.Window),
			breaker.WithOpenDuration(cfg.Breaker.OpenDuration),
		),
		sourcestate.WithDefaultLimits(cfg.RateLimit.Default),
		sourcestate.WithLogger(logger),
	}
	for id, name := range sourceNames {
		opts = append(opts, sourcestate.WithLimits(name, cfg.Limits(id)))
	}
	return sourcestate.New(opts...)
}

// buildSources creates the enabled sources in priority order. ISBNdb is left
// out when it has no API key.
func buildSources(cfg config.Config, logger *slog.Logger) []sources.Source {
	var out []sources.Source
	for _, id := range cfg.Sources.Enabled {
		switch id {
		case config.SourceOpenLibrary:
			out = append(out, openlibrary.NewClient(
				openlibrary.WithBaseURL(cfg.Sources.OpenLibrary.BaseURL),
				openlibrary.WithLimit(cfg.Sources.Results)))
		case config.SourceGoogleBooks:
			out = append(out, googlebooks.NewClient(cfg.Sources.GoogleBooks.APIKey,
				googlebooks.WithBaseURL(cfg.Sources.GoogleBooks.BaseURL),
				googlebooks.WithLimit(cfg.Sources.Results)))
		case config.SourceISBNdb:
			c := isbndb.NewClient(cfg.Sources.ISBNdb.APIKey,
				isbndb.WithBaseURL(cfg.Sources.ISBNdb.BaseURL),
				isbndb.WithLimit(cfg.Sources.Results))
			if !c.Enabled() {
				logger.Info("ISBNdb disabled, no API key configured")
				continue
			}
			out = append(out, c)
		}
	}
	return out
}
