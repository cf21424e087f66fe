package openlibrary

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lepinkainen/folio/internal/sources"
	"github.com/stretchr/testify/require"
)

// newIPv4TestServer starts a test server bound to IPv4 loopback to avoid IPv6 listener issues.
func newIPv4TestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()

	t.Cleanup(server.Close)
	return server
}

func TestFetchFreeText(t *testing.T) {
	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search.json", r.URL.Path)
		require.Equal(t, "great gatsby", r.URL.Query().Get("q"))
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"numFound":2,"docs":[
			{"key":"/works/OL468431W","title":"The Great Gatsby","author_name":["F. Scott Fitzgerald"],
			 "isbn":["0743273567","9780743273565"],"publisher":["Scribner"],"first_publish_year":1925,
			 "subject":["Fiction"],"cover_i":12345},
			{"key":"/works/empty","title":""}
		]}`))
	}))

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()), WithLimit(5))
	got, err := client.Fetch(context.Background(), "great gatsby")
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	require.Equal(t, Name, c.Source)
	require.Equal(t, "9780743273565", c.ISBN)
	require.Equal(t, "The Great Gatsby", c.Title)
	require.Equal(t, "F. Scott Fitzgerald", c.Author())
	require.Equal(t, "Scribner", c.Publisher)
	require.Equal(t, 1925, c.PublishYear)
	require.Equal(t, "Fiction", c.Genre())
	require.Equal(t, "https://covers.openlibrary.org/b/id/12345-L.jpg", c.CoverURL)
	require.Equal(t, "/works/OL468431W", c.Raw["key"])
}

func TestFetchByISBN(t *testing.T) {
	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "9780743273565", r.URL.Query().Get("isbn"))
		require.Empty(t, r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"numFound":0,"docs":[]}`))
	}))

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	got, err := client.Fetch(context.Background(), "978-0-7432-7356-5")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFetchServerError(t *testing.T) {
	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := client.Fetch(context.Background(), "gatsby")
	require.Error(t, err)
	require.Equal(t, sources.Unavailable, sources.KindOf(err))
}

func TestFetchMalformed(t *testing.T) {
	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"docs": [`))
	}))

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := client.Fetch(context.Background(), "gatsby")
	require.Error(t, err)
	require.Equal(t, sources.Malformed, sources.KindOf(err))
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release) })

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, "gatsby")
	require.Error(t, err)
	require.Equal(t, sources.Timeout, sources.KindOf(err))
}

func TestPing(t *testing.T) {
	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"numFound":1,"docs":[]}`))
	}))

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	require.NoError(t, client.Ping(context.Background()))
}
