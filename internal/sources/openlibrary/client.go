// Package openlibrary provides an OpenLibrary search client implementing sources.Source.
package openlibrary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/folio/internal/isbn"
	"github.com/lepinkainen/folio/internal/sources"
)

const (
	// Name is the source name used for breaker, limiter and cache keys.
	Name = "OpenLibrary"

	defaultBaseURL      = "https://openlibrary.org"
	defaultCoverBaseURL = "https://covers.openlibrary.org"
	defaultLimit        = 10
	searchFields        = "key,title,author_name,isbn,publisher,first_publish_year,subject,cover_i"
)

// Client is an OpenLibrary API client.
type Client struct {
	baseURL      string
	coverBaseURL string
	httpClient   sources.HTTPDoer
	limit        int
}

// Compile-time check that Client implements sources.Source.
var (
	_ sources.Source = (*Client)(nil)
	_ sources.Pinger = (*Client)(nil)
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c sources.HTTPDoer) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithBaseURL sets a custom base URL for the OpenLibrary API.
func WithBaseURL(base string) Option {
	return func(client *Client) {
		if base != "" {
			client.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithLimit sets the maximum number of documents requested per search.
func WithLimit(n int) Option {
	return func(client *Client) {
		if n > 0 {
			client.limit = n
		}
	}
}

// NewClient creates a new OpenLibrary client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:      defaultBaseURL,
		coverBaseURL: defaultCoverBaseURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		limit:        defaultLimit,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Name returns the human-readable name of this source.
func (c *Client) Name() string {
	return Name
}

// Ping tests the connection to OpenLibrary.
func (c *Client) Ping(ctx context.Context) error {
	return sources.Ping(ctx, c.httpClient, Name, c.baseURL+"/search.json?q=gatsby&limit=1&fields=key", nil)
}

// searchResponse matches the OpenLibrary search API response structure.
type searchResponse struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		Key              string   `json:"key"`
		Title            string   `json:"title"`
		AuthorName       []string `json:"author_name"`
		ISBN             []string `json:"isbn"`
		Publisher        []string `json:"publisher"`
		FirstPublishYear int      `json:"first_publish_year"`
		Subject          []string `json:"subject"`
		CoverID          int      `json:"cover_i"`
	} `json:"docs"`
}

// Fetch searches OpenLibrary. ISBN-shaped queries use the isbn filter,
// everything else the free-text q parameter.
func (c *Client) Fetch(ctx context.Context, query string) ([]sources.Candidate, error) {
	params := url.Values{}
	if isbn.Looks(query) {
		params.Set("isbn", isbn.Normalize(query))
	} else {
		params.Set("q", query)
	}
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("fields", searchFields)

	endpoint := fmt.Sprintf("%s/search.json?%s", c.baseURL, params.Encode())

	var resp searchResponse
	if err := sources.GetJSON(ctx, c.httpClient, Name, endpoint, nil, &resp); err != nil {
		if errors.Is(err, sources.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	candidates := make([]sources.Candidate, 0, len(resp.Docs))
	for _, doc := range resp.Docs {
		if doc.Title == "" {
			continue
		}
		cand := sources.Candidate{
			Source:      Name,
			ISBN:        preferISBN13(doc.ISBN),
			Title:       doc.Title,
			Authors:     doc.AuthorName,
			PublishYear: doc.FirstPublishYear,
			Subjects:    doc.Subject,
			Raw: map[string]any{
				"key": doc.Key,
			},
		}
		if len(doc.Publisher) > 0 {
			cand.Publisher = doc.Publisher[0]
		}
		if doc.CoverID > 0 {
			cand.CoverURL = fmt.Sprintf("%s/b/id/%d-L.jpg", c.coverBaseURL, doc.CoverID)
		}
		candidates = append(candidates, cand)
	}

	return candidates, nil
}

// preferISBN13 picks the first 13-digit ISBN, falling back to the first one listed.
func preferISBN13(values []string) string {
	for _, v := range values {
		n := isbn.Normalize(v)
		if len(n) == 13 {
			return n
		}
	}
	if len(values) > 0 {
		return isbn.Normalize(values[0])
	}
	return ""
}
