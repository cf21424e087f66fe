package search

import (
	folioerrors "github.com/lepinkainen/folio/internal/errors"
)

const (
	// DefaultPageSize is used when a request does not name a size.
	DefaultPageSize = 20
	// MaxPageSize bounds a single page.
	MaxPageSize = 100
)

// Page is a 0-based page window.
type Page struct {
	Number int
	Size   int
}

// NewPage validates a page request. A size of 0 takes DefaultPageSize.
func NewPage(number, size int) (Page, error) {
	if number < 0 {
		return Page{}, folioerrors.NewValidationError("page", "must not be negative")
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if size < 1 || size > MaxPageSize {
		return Page{}, folioerrors.NewValidationError("size", "must be between 1 and 100")
	}
	return Page{Number: number, Size: size}, nil
}

// Offset is the index of the first item on the page.
func (p Page) Offset() int {
	return p.Number * p.Size
}

// HasMore reports whether items exist beyond this page.
func (p Page) HasMore(total int) bool {
	return (p.Number+1)*p.Size < total
}

// Slice returns the page window of items.
func Slice[T any](items []T, p Page) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := min(start+p.Size, len(items))
	return items[start:end]
}
