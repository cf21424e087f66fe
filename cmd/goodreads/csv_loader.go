// Package goodreads converts a Goodreads library export into catalog books.
package goodreads

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/csvutil"
	"github.com/lepinkainen/folio/internal/isbn"
)

// LocationShelfPrefix marks a Goodreads shelf naming where a copy is kept,
// e.g. "location-study" files the book under "study".
const LocationShelfPrefix = "location-"

// Column positions in the Goodreads export.
const (
	colTitle             = 1
	colAuthor            = 2
	colAdditionalAuthors = 4
	colISBN              = 5
	colISBN13            = 6
	colAverageRating     = 8
	colPublisher         = 9
	colYearPublished     = 12
	colOriginalYear      = 13
	colDateAdded         = 15
	colBookshelves       = 16
	minColumns           = 17
)

// statusShelves are Goodreads reading states, never genres.
var statusShelves = map[string]bool{
	"read":              true,
	"to-read":           true,
	"currently-reading": true,
	"owned":             true,
	"favorites":         true,
}

var dateLayouts = []string{"2006/01/02", "2006-01-02"}

// LoadBooks reads the export at filePath. Rows without a title are skipped.
func LoadBooks(filePath string, logger *slog.Logger) ([]catalog.Book, int, error) {
	res, err := csvutil.ProcessCSV(filePath, parseBookRecord, csvutil.ProcessorOptions{
		SkipInvalid: true,
		Logger:      logger,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("goodreads export: %w", err)
	}
	return res.Items, res.Skipped, nil
}

func parseBookRecord(record []string) (catalog.Book, error) {
	if len(record) < minColumns {
		return catalog.Book{}, fmt.Errorf("record has %d columns, want at least %d", len(record), minColumns)
	}

	title := strings.TrimSpace(record[colTitle])
	if title == "" {
		return catalog.Book{}, fmt.Errorf("record has no title")
	}

	book := catalog.Book{
		Title:           title,
		Author:          joinAuthors(record[colAuthor], record[colAdditionalAuthors]),
		ISBN:            pickISBN(record[colISBN13], record[colISBN]),
		Publisher:       strings.TrimSpace(record[colPublisher]),
		AverageRating:   parseFloatField(record[colAverageRating]),
		PublicationYear: parseIntField(record[colYearPublished]),
		DateAdded:       parseDate(record[colDateAdded]),
	}
	if book.PublicationYear == 0 {
		book.PublicationYear = parseIntField(record[colOriginalYear])
	}
	book.Genre, book.PhysicalLocation = classifyShelves(record[colBookshelves])

	return book, nil
}

// classifyShelves picks the first location shelf and the first shelf that
// is neither a location nor a reading state.
func classifyShelves(value string) (genre, location string) {
	for _, shelf := range splitString(value) {
		shelf = strings.ToLower(shelf)
		switch {
		case strings.HasPrefix(shelf, LocationShelfPrefix):
			if location == "" {
				location = strings.TrimPrefix(shelf, LocationShelfPrefix)
			}
		case statusShelves[shelf]:
		case genre == "":
			genre = shelf
		}
	}
	return genre, location
}

func joinAuthors(primary, additional string) string {
	authors := splitString(primary)
	for _, a := range splitString(additional) {
		if !contains(authors, a) {
			authors = append(authors, a)
		}
	}
	return strings.Join(authors, ", ")
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if strings.EqualFold(existing, v) {
			return true
		}
	}
	return false
}

func splitString(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func pickISBN(values ...string) string {
	for _, v := range values {
		if n := isbn.Normalize(v); isbn.Looks(n) {
			return n
		}
	}
	return ""
}

func parseIntField(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func parseFloatField(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
