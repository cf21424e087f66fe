package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/cmd/serve"
	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/fallback"
	"github.com/lepinkainen/folio/internal/health"
	"github.com/lepinkainen/folio/internal/sourcestate"
	"github.com/lepinkainen/folio/internal/testutil"
)

func resetCmdState(t *testing.T) *testutil.TestEnv {
	t.Helper()

	env := testutil.NewTestEnv(t)
	testutil.SetTestConfig(t, env)
	config.InitConfig()
	return env
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()

	orig := stdout
	buf := &bytes.Buffer{}
	stdout = buf
	t.Cleanup(func() { stdout = orig })
	return buf
}

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()

	originalArgs := os.Args
	os.Args = append([]string{"folio"}, args...)
	t.Cleanup(func() { os.Args = originalArgs })

	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("folio"),
		kong.Description("Search a local book catalog with resilient fallback to external sources."),
		kong.UsageOnError(),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
		kong.Exit(func(code int) {
			t.Fatalf("unexpected Kong exit %d", code)
		}),
	)

	return cli, ctx
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	cli, ctx := parseCLI(t, args...)
	updateGlobalConfig(cli)
	return ctx.Run()
}

const seedYAML = `books:
  - title: Dune
    author: Frank Herbert
    isbn: "9780441172719"
    genre: Science Fiction
    physical_location: Shelf A
    publication_year: 1965
  - title: Emma
    author: Jane Austen
    genre: Classics
`

func TestUpdateGlobalConfig(t *testing.T) {
	resetCmdState(t)

	updateGlobalConfig(&CLI{LogLevel: "debug", DB: "/tmp/folio.db", Strategy: "fulltext"})

	assert.Equal(t, "debug", viper.GetString("log.level"))
	assert.Equal(t, "/tmp/folio.db", viper.GetString("catalog.dbfile"))
	assert.Equal(t, "fulltext", viper.GetString("catalog.strategy"))

	// empty flags leave config alone
	updateGlobalConfig(&CLI{})
	assert.Equal(t, "/tmp/folio.db", viper.GetString("catalog.dbfile"))
}

func TestSearchCommandParsing(t *testing.T) {
	resetCmdState(t)

	cli, ctx := parseCLI(t, "--db", "x.db", "search", "le guin", "--external", "--page", "2", "--size", "5",
		"--sort", "TITLE", "--order", "DESC", "--category", "SF", "--location", "Shelf B",
		"--min-rating", "3.5", "--year-from", "1960", "--year-to", "1980", "--json")

	assert.Equal(t, "search <query>", ctx.Command())
	assert.Equal(t, "x.db", cli.DB)
	s := cli.Search
	assert.Equal(t, "le guin", s.Query)
	assert.True(t, s.External)
	assert.Equal(t, 2, s.Page)
	assert.Equal(t, 5, s.Size)
	assert.Equal(t, "TITLE", s.Sort)
	assert.Equal(t, "DESC", s.Order)
	assert.Equal(t, "SF", s.Category)
	assert.Equal(t, "Shelf B", s.Location)
	assert.InDelta(t, 3.5, s.MinRating, 1e-9)
	assert.Equal(t, 1960, s.YearFrom)
	assert.Equal(t, 1980, s.YearTo)
	assert.True(t, s.JSON)
}

func TestCommandParsing(t *testing.T) {
	resetCmdState(t)

	cli, ctx := parseCLI(t, "import", "goodreads", "-f", "export.csv")
	assert.Equal(t, "import goodreads", ctx.Command())
	assert.Equal(t, "export.csv", cli.Import.Goodreads.Input)

	cli, ctx = parseCLI(t, "import", "yaml", "-f", "seed.yaml")
	assert.Equal(t, "import yaml", ctx.Command())
	assert.Equal(t, "seed.yaml", cli.Import.YAML.Input)

	cli, ctx = parseCLI(t, "cache", "invalidate", "googlebooks", "--server", "http://h:1")
	assert.Equal(t, "cache invalidate <source>", ctx.Command())
	assert.Equal(t, "googlebooks", cli.Cache.Invalidate.Source)

	cli, _ = parseCLI(t, "sources", "ping")
	assert.Equal(t, 5*time.Second, cli.Sources.Ping.Timeout)

	cli, _ = parseCLI(t, "serve", "--addr", ":9090")
	assert.Equal(t, ":9090", cli.Serve.Addr)
}

func TestImportCommandsRequireInput(t *testing.T) {
	resetCmdState(t)

	err := run(t, "import", "goodreads")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input CSV file is required")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"invalid": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
	require.NotPanics(t, func() { initLogging("debug") })
}

func TestResolveSourceName(t *testing.T) {
	for in, want := range map[string]string{
		"openlibrary":  "OpenLibrary",
		"GoogleBooks":  "Google Books",
		"google books": "Google Books",
		" isbndb ":     "ISBNdb",
	} {
		got, err := resolveSourceName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := resolveSourceName("amazon")
	assert.Error(t, err)
}

func TestServerURL(t *testing.T) {
	resetCmdState(t)

	assert.Equal(t, "http://localhost:8080", serverURL(""))
	assert.Equal(t, "http://example.test", serverURL("http://example.test/"))

	testutil.SetViperValue(t, "server.addr", "10.0.0.5:7000")
	assert.Equal(t, "http://10.0.0.5:7000", serverURL(""))
}

func TestImportYAMLThenSearch(t *testing.T) {
	env := resetCmdState(t)
	testutil.SetViperValue(t, "sources.enabled", []string{})
	env.WriteFileString("seed.yaml", seedYAML)
	out := captureStdout(t)

	require.NoError(t, run(t, "import", "yaml", "-f", env.Path("seed.yaml")))
	assert.Contains(t, out.String(), "inserted 2")

	// importing again updates in place
	out.Reset()
	require.NoError(t, run(t, "import", "yaml", "-f", env.Path("seed.yaml")))
	assert.Contains(t, out.String(), "updated 2")

	out.Reset()
	require.NoError(t, run(t, "search", "dune", "--json"))
	var resp fallback.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, fallback.SummaryLocalOnly, resp.OriginSummary)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Dune", resp.Results[0].Title)
	assert.Equal(t, fallback.OriginLocal, resp.Results[0].Origin)

	out.Reset()
	require.NoError(t, run(t, "search", "--sort", "TITLE"))
	text := out.String()
	assert.Contains(t, text, "2 results")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("Dune")), bytes.Index(out.Bytes(), []byte("Emma")))
	assert.Contains(t, text, "at Shelf A")

	err := run(t, "search", "dune", "--min-rating", "7")
	assert.Error(t, err)
}

func TestImportGoodreads(t *testing.T) {
	env := resetCmdState(t)
	env.WriteFileString("export.csv",
		"Book Id,Title,Author,Author l-f,Additional Authors,ISBN,ISBN13,My Rating,Average Rating,Publisher,"+
			"Binding,Number of Pages,Year Published,Original Publication Year,Date Read,Date Added,Bookshelves\n"+
			`1,Dune,Frank Herbert,"Herbert, Frank",,"=""0441172717""","=""9780441172719""",5,4.27,Ace,Paperback,604,1990,1965,,2023/05/01,"science-fiction, location-shelf-a"`+"\n"+
			`2,,Nobody,,,,,0,,,,,,,,2023/05/02,`+"\n")
	out := captureStdout(t)

	require.NoError(t, run(t, "import", "goodreads", "-f", env.Path("export.csv")))
	assert.Contains(t, out.String(), "inserted 1")
	assert.Contains(t, out.String(), "skipped 1")
}

func TestHealthCommand(t *testing.T) {
	resetCmdState(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(serve.HealthResponse{
			Status: health.StatusDown,
			Sources: []health.SourceHealth{
				{Name: "OpenLibrary", State: "OPEN", ConsecutiveFailures: 5, OpenedAt: time.Now()},
			},
		})
	}))
	t.Cleanup(srv.Close)
	out := captureStdout(t)

	require.NoError(t, run(t, "health", "--server", srv.URL))
	assert.Contains(t, out.String(), "down")
	assert.Contains(t, out.String(), "OpenLibrary")
	assert.Contains(t, out.String(), "failures 5")
}

func TestCacheInvalidateCommand(t *testing.T) {
	resetCmdState(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/cache/Google Books", r.URL.Path)
		_ = json.NewEncoder(w).Encode(serve.InvalidateResponse{Source: "Google Books", Removed: 4})
	}))
	t.Cleanup(srv.Close)
	out := captureStdout(t)

	require.NoError(t, run(t, "cache", "invalidate", "googlebooks", "--server", srv.URL))
	assert.Contains(t, out.String(), "4 cached responses removed")

	err := run(t, "cache", "invalidate", "nowhere", "--server", srv.URL)
	assert.ErrorContains(t, err, "unknown source")
}

func TestSourcesPing(t *testing.T) {
	resetCmdState(t)
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(up.Close)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	testutil.SetViperValue(t, "sources.enabled", []string{"openlibrary", "googlebooks"})
	testutil.SetViperValue(t, "sources.openlibrary.baseurl", up.URL)
	testutil.SetViperValue(t, "sources.googlebooks.baseurl", up.URL)
	out := captureStdout(t)

	require.NoError(t, run(t, "sources", "ping"))
	assert.Contains(t, out.String(), "OpenLibrary")
	assert.Contains(t, out.String(), "Google Books")
	assert.Equal(t, 2, bytes.Count(out.Bytes(), []byte("OK")))

	testutil.SetViperValue(t, "sources.googlebooks.baseurl", down.URL)
	out.Reset()
	err := run(t, "sources", "ping")
	assert.ErrorContains(t, err, "1 source(s) unreachable")
	assert.Contains(t, out.String(), "FAIL")
}

func TestNewAppWiring(t *testing.T) {
	resetCmdState(t)
	viper.Set("ratelimit.sources", map[string]any{
		"openlibrary": map[string]any{"rate": 3, "burst": 7},
	})

	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	// ISBNdb has no API key in tests
	require.Len(t, a.orch.Sources(), 2)
	assert.Equal(t, "OpenLibrary", a.orch.Sources()[0].Name())
	assert.Equal(t, "Google Books", a.orch.Sources()[1].Name())

	assert.Equal(t, 7, a.registry.Get("OpenLibrary").Limiter.Burst())
	assert.Equal(t, sourcestate.DefaultBurst, a.registry.Get("Google Books").Limiter.Burst())
	assert.Len(t, a.monitor.Snapshot(), 2)
	assert.Equal(t, health.StatusHealthy, a.monitor.Overall())
}
