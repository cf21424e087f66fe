// Package catalog is the local book catalog store. It returns candidate rows
// for a normalized query; ranking happens in the search package so both
// query strategies share one scoring formula.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnavailable is returned when the catalog database cannot be reached.
// Unlike external sources, the catalog is not optional and this error fails
// the whole request.
var ErrUnavailable = errors.New("catalog unavailable")

// Book is a catalog row.
type Book struct {
	ID               int64     `json:"id" yaml:"id"`
	Title            string    `json:"title" yaml:"title"`
	Author           string    `json:"author" yaml:"author"`
	ISBN             string    `json:"isbn,omitempty" yaml:"isbn"`
	Genre            string    `json:"genre,omitempty" yaml:"genre"`
	Publisher        string    `json:"publisher,omitempty" yaml:"publisher"`
	Description      string    `json:"description,omitempty" yaml:"description"`
	CoverURL         string    `json:"cover_url,omitempty" yaml:"cover_url"`
	PhysicalLocation string    `json:"physical_location,omitempty" yaml:"physical_location"`
	PublicationYear  int       `json:"publication_year,omitempty" yaml:"publication_year"`
	AverageRating    float64   `json:"average_rating,omitempty" yaml:"average_rating"`
	DateAdded        time.Time `json:"date_added" yaml:"date_added"`
}

// TextMatch records which full-text groups a row matched. It is always zero
// under the LIKE strategy.
type TextMatch struct {
	// Text is a hit on the title/author/description group.
	Text bool
	// Category is a hit on the genre/publisher group.
	Category bool
}

// Row is a candidate returned by a Store.
type Row struct {
	Book
	Match TextMatch
}

// Filters narrow the candidate set. Zero values mean "no filter".
type Filters struct {
	Category         string  `json:"category,omitempty"`
	PhysicalLocation string  `json:"physicalLocation,omitempty"`
	MinRating        float64 `json:"minRating,omitempty"`
	YearFrom         int     `json:"yearFrom,omitempty"`
	YearTo           int     `json:"yearTo,omitempty"`
}

// Criteria is the store-facing form of a normalized search query.
type Criteria struct {
	// Terms are lower-cased query terms; empty means match-all.
	Terms []string
	// ISBN is the hyphen-stripped raw query, set when it may be an ISBN.
	ISBN string
}

// MatchAll reports whether the criteria select every row.
func (c Criteria) MatchAll() bool {
	return len(c.Terms) == 0 && c.ISBN == ""
}

// Page selects a window of rows. Limit 0 means no limit.
type Page struct {
	Limit  int
	Offset int
}

// Store is the local catalog collaborator.
type Store interface {
	// Search returns candidate rows ordered by title.
	Search(ctx context.Context, c Criteria, f Filters, page Page) ([]Row, error)
	// Count returns the number of rows Search would return without paging.
	Count(ctx context.Context, c Criteria, f Filters) (int, error)
}

// Strategy selects how candidates are found.
type Strategy string

const (
	// StrategyLike uses portable LIKE substring matching only.
	StrategyLike Strategy = "like"
	// StrategyFullText additionally annotates rows with SQLite FTS5 hits.
	StrategyFullText Strategy = "fulltext"
)

// ParseStrategy converts a configuration value to a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case StrategyLike, "":
		return StrategyLike, nil
	case StrategyFullText, "fts":
		return StrategyFullText, nil
	default:
		return "", fmt.Errorf("unknown catalog strategy %q (want %q or %q)", value, StrategyLike, StrategyFullText)
	}
}
