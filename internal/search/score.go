package search

import (
	"sort"
	"strings"
	"time"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/isbn"
	"github.com/lepinkainen/folio/internal/textnorm"
)

// Field weights.
const (
	WeightISBNExact     = 10.0
	WeightISBNSubstring = 4.0
	WeightTitle         = 3.0
	WeightAuthor        = 2.0
	WeightGenre         = 1.5
	WeightPublisher     = 1.0
	WeightDescription   = 1.0

	// BonusTextMatch applies to a full-text hit on title/author/description.
	BonusTextMatch = 2.0
	// BonusCategoryMatch applies to a full-text hit on genre/publisher.
	BonusCategoryMatch = 1.0
)

// Matched field names.
const (
	FieldISBN        = "isbn"
	FieldTitle       = "title"
	FieldAuthor      = "author"
	FieldGenre       = "genre"
	FieldPublisher   = "publisher"
	FieldDescription = "description"
	FieldFullText    = "fulltext"
)

// Result is a scored catalog row.
type Result struct {
	ID               int64     `json:"id,omitempty"`
	Title            string    `json:"title"`
	Author           string    `json:"author"`
	ISBN             string    `json:"isbn,omitempty"`
	Genre            string    `json:"genre,omitempty"`
	Publisher        string    `json:"publisher,omitempty"`
	Description      string    `json:"description,omitempty"`
	CoverURL         string    `json:"coverUrl,omitempty"`
	PhysicalLocation string    `json:"physicalLocation,omitempty"`
	PublicationYear  int       `json:"publicationYear,omitempty"`
	DateAdded        time.Time `json:"dateAdded,omitzero"`
	AverageRating    float64   `json:"averageRating,omitempty"`
	Score            float64   `json:"score"`
	MatchedFields    []string  `json:"matchedFields,omitempty"`
	MatchedTerms     []string  `json:"matchedTerms,omitempty"`
}

// FromBook copies the display fields of a catalog row.
func FromBook(b catalog.Book) Result {
	return Result{
		ID:               b.ID,
		Title:            b.Title,
		Author:           b.Author,
		ISBN:             b.ISBN,
		Genre:            b.Genre,
		Publisher:        b.Publisher,
		Description:      b.Description,
		CoverURL:         b.CoverURL,
		PhysicalLocation: b.PhysicalLocation,
		PublicationYear:  b.PublicationYear,
		DateAdded:        b.DateAdded,
		AverageRating:    b.AverageRating,
	}
}

type weightedField struct {
	name   string
	value  string
	weight float64
}

// Score computes the relevance of row for q. nl carries full-text hits and
// is zero when no full-text index is in use. A row that matches nothing
// scores 0.
func Score(q Query, row catalog.Book, nl catalog.TextMatch) Result {
	result := FromBook(row)
	if q.IsEmpty() {
		return result
	}

	fields := make(map[string]bool)
	terms := make(map[string]bool)

	if isbn.Equal(q.Raw, row.ISBN) {
		result.Score += WeightISBNExact
		fields[FieldISBN] = true
	}
	if fragment, rowISBN := q.ISBNFragment(), isbn.Normalize(row.ISBN); fragment != "" && strings.Contains(rowISBN, fragment) {
		result.Score += WeightISBNSubstring
		fields[FieldISBN] = true
	}

	for _, f := range []weightedField{
		{FieldTitle, row.Title, WeightTitle},
		{FieldAuthor, row.Author, WeightAuthor},
		{FieldGenre, row.Genre, WeightGenre},
		{FieldPublisher, row.Publisher, WeightPublisher},
		{FieldDescription, row.Description, WeightDescription},
	} {
		folded := textnorm.Fold(f.value)
		hit := false
		for _, term := range q.Terms {
			if strings.Contains(folded, term) {
				hit = true
				terms[term] = true
			}
		}
		if hit {
			result.Score += f.weight
			fields[f.name] = true
		}
	}

	if nl.Text {
		result.Score += BonusTextMatch
		fields[FieldFullText] = true
	}
	if nl.Category {
		result.Score += BonusCategoryMatch
		fields[FieldFullText] = true
	}

	result.MatchedFields = sortedKeys(fields)
	result.MatchedTerms = sortedKeys(terms)
	return result
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MergeFields returns the sorted union of two matched-field or term sets.
func MergeFields(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		set[v] = true
	}
	return sortedKeys(set)
}
