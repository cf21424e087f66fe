package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/lepinkainen/folio/cmd/goodreads"
	"github.com/lepinkainen/folio/cmd/seed"
	"github.com/lepinkainen/folio/cmd/serve"
	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/fallback"
	"github.com/lepinkainen/folio/internal/sources"
)

var (
	stdout     io.Writer = os.Stdout
	httpClient           = &http.Client{Timeout: 10 * time.Second}
)

// CLI represents the complete command structure for the folio application
type CLI struct {
	// Global flags
	LogLevel string `help:"Log level: debug, info, warn or error (overrides log.level)"`
	DB       string `help:"Path to the catalog SQLite database (overrides catalog.dbfile)"`
	Strategy string `help:"Catalog search strategy: like or fulltext (overrides catalog.strategy)"`

	Serve   ServeCmd   `cmd:"" help:"Run the HTTP search API"`
	Search  SearchCmd  `cmd:"" help:"Search the catalog, falling back to external sources"`
	Health  HealthCmd  `cmd:"" help:"Show external source health from a running server"`
	Sources SourcesCmd `cmd:"" help:"Work with external sources"`
	Import  ImportCmd  `cmd:"" help:"Import books into the catalog"`
	Cache   CacheCmd   `cmd:"" help:"Manage the response cache of a running server"`
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)"`
}

// SearchCmd runs one search from the command line.
type SearchCmd struct {
	Query     string  `arg:"" optional:"" help:"Search text; leave empty to browse the catalog"`
	External  bool    `help:"Consult external sources even when local results suffice"`
	Page      int     `help:"0-based page number" default:"0"`
	Size      int     `help:"Results per page (defaults to search.pagesize)"`
	Sort      string  `help:"RELEVANCE, TITLE, AUTHOR, DATE_ADDED or PUBLICATION_YEAR"`
	Order     string  `help:"ASC or DESC"`
	Category  string  `help:"Only books in this genre"`
	Location  string  `help:"Only books at this physical location"`
	MinRating float64 `help:"Only books rated at least this (0-5)"`
	YearFrom  int     `help:"Only books published in or after this year"`
	YearTo    int     `help:"Only books published in or before this year"`
	JSON      bool    `help:"Print the response as JSON"`
}

// HealthCmd prints source health reported by a running server.
type HealthCmd struct {
	Server string `help:"Base URL of the folio server (defaults to server.addr on localhost)"`
}

// SourcesCmd groups source commands.
type SourcesCmd struct {
	Ping PingCmd `cmd:"" help:"Check connectivity to every enabled source"`
}

// PingCmd pings the enabled sources.
type PingCmd struct {
	Timeout time.Duration `help:"Timeout per source" default:"5s"`
}

// ImportCmd groups catalog import commands.
type ImportCmd struct {
	Goodreads GoodreadsCmd `cmd:"" help:"Import books from a Goodreads library export"`
	YAML      YAMLCmd      `cmd:"" name:"yaml" help:"Import books from a YAML seed file"`
}

// GoodreadsCmd imports a Goodreads CSV export.
type GoodreadsCmd struct {
	Input string `short:"f" help:"Path to Goodreads library export CSV file"`
}

// YAMLCmd imports a YAML seed file.
type YAMLCmd struct {
	Input string `short:"f" required:"" help:"Path to the YAML seed file"`
}

// CacheCmd groups cache commands.
type CacheCmd struct {
	Invalidate InvalidateCmd `cmd:"" help:"Drop cached responses of one source"`
}

// InvalidateCmd drops one source's cached responses on a running server.
type InvalidateCmd struct {
	Source string `arg:"" help:"Source identifier (openlibrary, googlebooks, isbndb) or name"`
	Server string `help:"Base URL of the folio server (defaults to server.addr on localhost)"`
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging("info")
	initConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("folio"),
		kong.Description("Search a local book catalog with resilient fallback to external sources."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	updateGlobalConfig(&cli)
	initLogging(viper.GetString("log.level"))

	err := kctx.Run()
	stop()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.InitConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Debug("Config file not found, using defaults")
			return
		}
		slog.Error("Fatal error config file", "error", err)
		os.Exit(1)
	}
}

func updateGlobalConfig(cli *CLI) {
	if cli.LogLevel != "" {
		viper.Set("log.level", cli.LogLevel)
	}
	if cli.DB != "" {
		viper.Set("catalog.dbfile", cli.DB)
	}
	if cli.Strategy != "" {
		viper.Set("catalog.strategy", cli.Strategy)
	}
}

func initLogging(level string) {
	handler := humanlog.NewHandler(os.Stderr, &humanlog.Options{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Run methods for each command

func (s *ServeCmd) Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	addr := s.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv := serve.NewServer(a.orch, a.monitor, a.cache,
		serve.WithLogger(slog.Default()),
		serve.WithDefaultPageSize(cfg.Search.PageSize))
	return srv.ListenAndServe(ctx, addr)
}

func (s *SearchCmd) Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	size := s.Size
	if size == 0 {
		size = cfg.Search.PageSize
	}
	resp, err := a.orch.Search(ctx, fallback.Request{
		Query:           s.Query,
		IncludeExternal: s.External,
		Page:            s.Page,
		Size:            size,
		SortBy:          s.Sort,
		SortOrder:       s.Order,
		Filters: catalog.Filters{
			Category:         s.Category,
			PhysicalLocation: s.Location,
			MinRating:        s.MinRating,
			YearFrom:         s.YearFrom,
			YearTo:           s.YearTo,
		},
	})
	if err != nil {
		return err
	}

	if s.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	renderSearch(stdout, resp)
	return nil
}

func (h *HealthCmd) Run(ctx context.Context) error {
	var hr serve.HealthResponse
	// a down server answers 503 with the same body
	if err := callServer(ctx, http.MethodGet, serverURL(h.Server)+"/api/v1/health", &hr,
		http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return err
	}
	renderHealth(stdout, hr)
	return nil
}

func (p *PingCmd) Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.Default()
	registry := newRegistry(cfg, logger)

	var failed int
	for _, src := range buildSources(cfg, logger) {
		pinger, ok := src.(sources.Pinger)
		if !ok {
			continue
		}
		if err := registry.Get(src.Name()).Limiter.Wait(ctx); err != nil {
			return err
		}

		pingCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		start := time.Now()
		err := pinger.Ping(pingCtx)
		cancel()

		renderPing(stdout, src.Name(), err, time.Since(start))
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d source(s) unreachable", failed)
	}
	return nil
}

func (g *GoodreadsCmd) Run(ctx context.Context) error {
	// Read from config if value not provided via flag
	input := g.Input
	if input == "" {
		input = viper.GetString("goodreads.csvfile")
	}
	if input == "" {
		return fmt.Errorf("input CSV file is required (provide via --input flag or goodreads.csvfile in config)")
	}

	books, unreadable, err := goodreads.LoadBooks(input, slog.Default())
	if err != nil {
		return err
	}
	return importBooks(ctx, input, books, unreadable)
}

func (y *YAMLCmd) Run(ctx context.Context) error {
	books, err := seed.LoadFile(y.Input)
	if err != nil {
		return err
	}
	return importBooks(ctx, y.Input, books, 0)
}

func importBooks(ctx context.Context, file string, books []catalog.Book, unreadable int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := openCatalog(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	res, err := store.Upsert(ctx, books)
	if err != nil {
		return fmt.Errorf("importing %s: %w", file, err)
	}
	slog.Info("Import finished", "file", file, "inserted", res.Inserted, "updated", res.Updated, "skipped", res.Skipped+unreadable)
	renderImport(stdout, file, res, unreadable)
	return nil
}

func (i *InvalidateCmd) Run(ctx context.Context) error {
	name, err := resolveSourceName(i.Source)
	if err != nil {
		return err
	}

	var resp serve.InvalidateResponse
	endpoint := serverURL(i.Server) + "/api/v1/cache/" + url.PathEscape(name)
	if err := callServer(ctx, http.MethodDelete, endpoint, &resp, http.StatusOK); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %s: %d cached responses removed\n", headerStyle.Render("Invalidated"), resp.Source, resp.Removed)
	return nil
}

// serverURL returns base, or the configured listen address on localhost.
func serverURL(base string) string {
	if base == "" {
		addr := viper.GetString("server.addr")
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		base = "http://" + addr
	}
	return strings.TrimSuffix(base, "/")
}

func callServer(ctx context.Context, method, endpoint string, target any, accept ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contacting folio server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	for _, code := range accept {
		if resp.StatusCode == code {
			if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
				return fmt.Errorf("decoding server response: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("folio server returned status %d", resp.StatusCode)
}
