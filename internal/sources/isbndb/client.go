// Package isbndb provides an ISBNdb client implementing sources.Source.
package isbndb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/folio/internal/isbn"
	"github.com/lepinkainen/folio/internal/sources"
)

const (
	// Name is the source name used for breaker, limiter and cache keys.
	Name = "ISBNdb"

	defaultBaseURL = "https://api2.isbndb.com"
	defaultLimit   = 10
)

var yearPattern = regexp.MustCompile(`\b\d{4}\b`)

// Client is an ISBNdb API client. Requests without an API key are skipped.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient sources.HTTPDoer
	limit      int
}

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

// WithBaseURL sets a custom base URL for the ISBNdb API.
func WithBaseURL(base string) Option {
	return func(client *Client) {
		if base != "" {
			client.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithLimit sets the page size for free-text searches.
func WithLimit(n int) Option {
	return func(client *Client) {
		if n > 0 {
			client.limit = n
		}
	}
}

// NewClient creates a new ISBNdb client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limit:      defaultLimit,
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

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Ping tests the connection to ISBNdb API.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return fmt.Errorf("ISBNdb API key not configured")
	}
	// Test with a well-known ISBN
	return sources.Ping(ctx, c.httpClient, Name, c.baseURL+"/book/9780140447934", c.header())
}

// isbndbBook matches the ISBNdb book object.
type isbndbBook struct {
	Title         string   `json:"title"`
	ISBN          string   `json:"isbn"`
	ISBN13        string   `json:"isbn13"`
	Publisher     string   `json:"publisher"`
	Language      string   `json:"language"`
	DatePublished string   `json:"date_published"`
	Overview      string   `json:"overview"`
	Synopsis      string   `json:"synopsis"`
	Image         string   `json:"image"`
	ImageOriginal string   `json:"image_original"`
	Authors       []string `json:"authors"`
	Subjects      []string `json:"subjects"`
}

// Fetch looks up a single book for ISBN-shaped queries and searches titles otherwise.
func (c *Client) Fetch(ctx context.Context, query string) ([]sources.Candidate, error) {
	if !c.Enabled() {
		// No API key - skip this source silently
		return nil, nil
	}

	if isbn.Looks(query) {
		var resp struct {
			Book isbndbBook `json:"book"`
		}
		endpoint := fmt.Sprintf("%s/book/%s", c.baseURL, url.PathEscape(isbn.Normalize(query)))
		if err := sources.GetJSON(ctx, c.httpClient, Name, endpoint, c.header(), &resp); err != nil {
			if errors.Is(err, sources.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		if resp.Book.Title == "" {
			return nil, nil
		}
		return []sources.Candidate{toCandidate(resp.Book)}, nil
	}

	var resp struct {
		Total int          `json:"total"`
		Books []isbndbBook `json:"books"`
	}
	params := url.Values{}
	params.Set("page", "1")
	params.Set("pageSize", strconv.Itoa(c.limit))
	endpoint := fmt.Sprintf("%s/books/%s?%s", c.baseURL, url.PathEscape(query), params.Encode())
	if err := sources.GetJSON(ctx, c.httpClient, Name, endpoint, c.header(), &resp); err != nil {
		if errors.Is(err, sources.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	candidates := make([]sources.Candidate, 0, len(resp.Books))
	for _, b := range resp.Books {
		if b.Title == "" {
			continue
		}
		candidates = append(candidates, toCandidate(b))
	}
	return candidates, nil
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", c.apiKey)
	return h
}

func toCandidate(b isbndbBook) sources.Candidate {
	cand := sources.Candidate{
		Source:    Name,
		Title:     b.Title,
		Authors:   b.Authors,
		Publisher: b.Publisher,
		Subjects:  b.Subjects,
		Raw: map[string]any{
			"language": b.Language,
		},
	}

	cand.ISBN = isbn.Normalize(b.ISBN13)
	if cand.ISBN == "" {
		cand.ISBN = isbn.Normalize(b.ISBN)
	}

	// Prefer synopsis, then overview
	cand.Description = b.Synopsis
	if cand.Description == "" {
		cand.Description = b.Overview
	}

	cand.CoverURL = b.ImageOriginal
	if cand.CoverURL == "" {
		cand.CoverURL = b.Image
	}

	if match := yearPattern.FindString(b.DatePublished); match != "" {
		cand.PublishYear, _ = strconv.Atoi(match)
	}

	return cand
}
