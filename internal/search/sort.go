package search

import (
	"sort"
	"strings"

	folioerrors "github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/textnorm"
)

// SortField selects the primary ordering.
type SortField string

const (
	SortRelevance       SortField = "RELEVANCE"
	SortTitle           SortField = "TITLE"
	SortAuthor          SortField = "AUTHOR"
	SortDateAdded       SortField = "DATE_ADDED"
	SortPublicationYear SortField = "PUBLICATION_YEAR"
)

// SortOrder is the direction of the primary ordering.
type SortOrder string

const (
	Asc  SortOrder = "ASC"
	Desc SortOrder = "DESC"
)

// Sort is a validated ordering.
type Sort struct {
	Field SortField
	Order SortOrder
}

// DefaultSort orders by relevance, best first.
var DefaultSort = Sort{Field: SortRelevance, Order: Desc}

// ParseSort validates sortBy and sortOrder. Empty values take the defaults:
// RELEVANCE, DESC for relevance and ASC for every other field.
func ParseSort(sortBy, sortOrder string) (Sort, error) {
	s := Sort{Field: SortField(strings.ToUpper(strings.TrimSpace(sortBy)))}
	switch s.Field {
	case "":
		s.Field = SortRelevance
	case SortRelevance, SortTitle, SortAuthor, SortDateAdded, SortPublicationYear:
	default:
		return Sort{}, folioerrors.NewValidationError("sortBy", "unknown sort field "+sortBy)
	}

	s.Order = SortOrder(strings.ToUpper(strings.TrimSpace(sortOrder)))
	switch s.Order {
	case "":
		s.Order = Asc
		if s.Field == SortRelevance {
			s.Order = Desc
		}
	case Asc, Desc:
	default:
		return Sort{}, folioerrors.NewValidationError("sortOrder", "must be ASC or DESC")
	}
	return s, nil
}

// TitleOrder reports whether s is satisfied by the catalog's native title
// ordering for the empty query, where relevance means title ascending.
func (s Sort) TitleOrder() bool {
	return s.Field == SortRelevance || (s.Field == SortTitle && s.Order == Asc)
}

// Less orders a before b under s. Ties always fall back to title ascending,
// case-insensitive, then ID.
func Less(a, b *Result, s Sort) bool {
	if c := compare(a, b, s.Field); c != 0 {
		if s.Order == Asc {
			return c < 0
		}
		return c > 0
	}
	if c := strings.Compare(textnorm.Fold(a.Title), textnorm.Fold(b.Title)); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

func compare(a, b *Result, field SortField) int {
	switch field {
	case SortTitle:
		return strings.Compare(textnorm.Fold(a.Title), textnorm.Fold(b.Title))
	case SortAuthor:
		return strings.Compare(textnorm.Fold(a.Author), textnorm.Fold(b.Author))
	case SortDateAdded:
		return a.DateAdded.Compare(b.DateAdded)
	case SortPublicationYear:
		return cmpInt(a.PublicationYear, b.PublicationYear)
	default:
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		}
		return 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortResults sorts results in place.
func SortResults(results []Result, s Sort) {
	sort.SliceStable(results, func(i, j int) bool {
		return Less(&results[i], &results[j], s)
	})
}
