// Package googlebooks provides a Google Books volumes client implementing sources.Source.
package googlebooks

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
	Name = "Google Books"

	defaultBaseURL = "https://www.googleapis.com/books/v1"
	defaultLimit   = 10
)

var yearPattern = regexp.MustCompile(`\b\d{4}\b`)

// Client is a Google Books API client.
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

// WithBaseURL sets a custom base URL for the Google Books API.
func WithBaseURL(base string) Option {
	return func(client *Client) {
		if base != "" {
			client.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithLimit sets maxResults for volume searches (Google caps it at 40).
func WithLimit(n int) Option {
	return func(client *Client) {
		if n > 0 && n <= 40 {
			client.limit = n
		}
	}
}

// NewClient creates a new Google Books client. The API key is optional.
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

// Ping tests the connection to Google Books API.
func (c *Client) Ping(ctx context.Context) error {
	// Use a simple search that should always return results
	return sources.Ping(ctx, c.httpClient, Name, c.endpoint("isbn:0140447938", 1), nil)
}

// volumesResponse matches the Google Books API response structure.
type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		ID         string `json:"id"`
		VolumeInfo struct {
			Title               string   `json:"title"`
			Subtitle            string   `json:"subtitle"`
			Authors             []string `json:"authors"`
			Publisher           string   `json:"publisher"`
			PublishedDate       string   `json:"publishedDate"`
			Description         string   `json:"description"`
			Categories          []string `json:"categories"`
			IndustryIdentifiers []struct {
				Type       string `json:"type"`
				Identifier string `json:"identifier"`
			} `json:"industryIdentifiers"`
			ImageLinks struct {
				Thumbnail      string `json:"thumbnail"`
				SmallThumbnail string `json:"smallThumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Fetch searches Google Books volumes, using the isbn: qualifier for ISBN-shaped queries.
func (c *Client) Fetch(ctx context.Context, query string) ([]sources.Candidate, error) {
	q := query
	if isbn.Looks(query) {
		q = "isbn:" + isbn.Normalize(query)
	}

	var resp volumesResponse
	if err := sources.GetJSON(ctx, c.httpClient, Name, c.endpoint(q, c.limit), nil, &resp); err != nil {
		if errors.Is(err, sources.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	candidates := make([]sources.Candidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		vol := item.VolumeInfo
		if vol.Title == "" {
			continue
		}

		cand := sources.Candidate{
			Source:      Name,
			Title:       vol.Title,
			Authors:     vol.Authors,
			Publisher:   vol.Publisher,
			Description: vol.Description,
			Subjects:    vol.Categories,
			PublishYear: parseYear(vol.PublishedDate),
			Raw: map[string]any{
				"id":       item.ID,
				"subtitle": vol.Subtitle,
			},
		}

		for _, ident := range vol.IndustryIdentifiers {
			switch ident.Type {
			case "ISBN_13":
				cand.ISBN = isbn.Normalize(ident.Identifier)
			case "ISBN_10":
				if cand.ISBN == "" {
					cand.ISBN = isbn.Normalize(ident.Identifier)
				}
			}
		}

		// Prefer larger thumbnail
		coverURL := vol.ImageLinks.Thumbnail
		if coverURL == "" {
			coverURL = vol.ImageLinks.SmallThumbnail
		}
		if coverURL != "" {
			// Remove zoom parameter for higher quality
			cand.CoverURL = strings.Replace(coverURL, "zoom=1", "zoom=0", 1)
		}

		candidates = append(candidates, cand)
	}

	return candidates, nil
}

func (c *Client) endpoint(q string, limit int) string {
	params := url.Values{}
	params.Set("q", q)
	params.Set("maxResults", strconv.Itoa(limit))
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	return fmt.Sprintf("%s/volumes?%s", c.baseURL, params.Encode())
}

// parseYear extracts the first four-digit year from a publishedDate ("2004", "2004-09-30").
func parseYear(date string) int {
	match := yearPattern.FindString(date)
	if match == "" {
		return 0
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return year
}
