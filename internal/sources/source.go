// Package sources defines the contract the fallback orchestrator consumes from
// external bibliographic providers. Each provider lives in its own subpackage
// and handles its own request shapes and transport.
package sources

import (
	"context"
	"net/http"
)

// Source fetches candidate records for a free-text query or an ISBN.
type Source interface {
	// Name returns a stable, human-readable source name (e.g., "OpenLibrary").
	// It keys the breaker, limiter and cache state for the source.
	Name() string

	// Fetch returns candidates for the query. The per-call timeout is carried
	// by ctx. An empty result is a success; failures are returned as *Error.
	Fetch(ctx context.Context, query string) ([]Candidate, error)
}

// Pinger is implemented by sources that can check their connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Candidate is a single record returned by an external source.
type Candidate struct {
	// Source is the name of the source that produced the record.
	Source string `json:"source"`

	// ISBN is the normalized ISBN-13 (or ISBN-10 when that is all the source has).
	ISBN string `json:"isbn,omitempty"`

	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Description string   `json:"description,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	Subjects    []string `json:"subjects,omitempty"`
	PublishYear int      `json:"publish_year,omitempty"`

	// Raw holds provider fields as returned, for callers that need more than
	// the common shape.
	Raw map[string]any `json:"raw,omitempty"`
}

// Author returns the authors joined for display and deduplication.
func (c Candidate) Author() string {
	switch len(c.Authors) {
	case 0:
		return ""
	case 1:
		return c.Authors[0]
	}
	out := c.Authors[0]
	for _, a := range c.Authors[1:] {
		out += ", " + a
	}
	return out
}

// Genre returns the first subject, which providers list most specific first.
func (c Candidate) Genre() string {
	if len(c.Subjects) == 0 {
		return ""
	}
	return c.Subjects[0]
}
