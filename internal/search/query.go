// Package search normalizes queries and ranks local catalog rows with a
// single weighted scoring formula shared by every catalog strategy.
package search

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/lepinkainen/folio/internal/catalog"
	folioerrors "github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/isbn"
	"github.com/lepinkainen/folio/internal/textnorm"
)

const (
	// MaxQueryLength is the longest accepted query, in runes.
	MaxQueryLength = 100
	// MinTermLength is the shortest term used for matching, in runes.
	MinTermLength = 2
	// MaxRating is the top of the rating scale.
	MaxRating = 5.0
)

// Query is a normalized search query. The zero Raw value is the empty-query
// sentinel, which matches every row ordered by title.
type Query struct {
	// Raw is the trimmed input, kept for exact-ISBN checks.
	Raw string
	// Terms are the folded, de-duplicated matching terms.
	Terms   []string
	Filters catalog.Filters
}

// IsEmpty reports whether q is the empty-query sentinel.
func (q Query) IsEmpty() bool {
	return q.Raw == ""
}

// ISBN returns the hyphen-stripped, upper-cased raw query.
func (q Query) ISBN() string {
	return isbn.Normalize(q.Raw)
}

// ISBNFragment returns the normalized raw query when it is long enough and
// shaped like part of an ISBN, and "" otherwise.
func (q Query) ISBNFragment() string {
	n := q.ISBN()
	if utf8.RuneCountInString(n) < MinTermLength || !isbn.Fragment(n) {
		return ""
	}
	return n
}

// Key is the cache key form of the query: folded raw text with collapsed
// whitespace.
func (q Query) Key() string {
	return strings.Join(strings.Fields(textnorm.Fold(q.Raw)), " ")
}

// Criteria converts the query for a catalog store.
func (q Query) Criteria() catalog.Criteria {
	if q.IsEmpty() {
		return catalog.Criteria{}
	}
	return catalog.Criteria{Terms: q.Terms, ISBN: q.ISBNFragment()}
}

// Normalize validates raw and filters and produces a Query.
func Normalize(raw string, filters catalog.Filters) (Query, error) {
	trimmed := strings.TrimSpace(raw)
	if utf8.RuneCountInString(trimmed) > MaxQueryLength {
		return Query{}, folioerrors.NewValidationError("query", "must be at most 100 characters")
	}
	if err := ValidateFilters(filters); err != nil {
		return Query{}, err
	}

	filters.Category = strings.TrimSpace(filters.Category)
	filters.PhysicalLocation = strings.TrimSpace(filters.PhysicalLocation)

	q := Query{Raw: trimmed, Filters: filters}
	if trimmed == "" {
		return q, nil
	}

	seen := make(map[string]bool)
	for _, term := range strings.Fields(textnorm.Fold(trimmed)) {
		if utf8.RuneCountInString(term) < MinTermLength || seen[term] {
			continue
		}
		seen[term] = true
		q.Terms = append(q.Terms, term)
	}
	return q, nil
}

// ValidateFilters rejects out-of-range filter values.
func ValidateFilters(f catalog.Filters) error {
	if math.IsNaN(f.MinRating) || f.MinRating < 0 || f.MinRating > MaxRating {
		return folioerrors.NewValidationError("minRating", "must be between 0 and 5")
	}
	if f.YearFrom < 0 || f.YearTo < 0 {
		return folioerrors.NewValidationError("year", "must not be negative")
	}
	if f.YearFrom > 0 && f.YearTo > 0 && f.YearFrom > f.YearTo {
		return folioerrors.NewValidationError("year", "range start is after its end")
	}
	return nil
}
