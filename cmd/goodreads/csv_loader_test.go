package goodreads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/testutil"
)

const exportHeader = "Book Id,Title,Author,Author l-f,Additional Authors,ISBN,ISBN13,My Rating,Average Rating," +
	"Publisher,Binding,Number of Pages,Year Published,Original Publication Year,Date Read,Date Added," +
	"Bookshelves,Bookshelves with positions,Exclusive Shelf,My Review,Spoiler,Private Notes,Read Count,Owned Copies\n"

func TestParseBookRecord(t *testing.T) {
	tests := []struct {
		name     string
		record   []string
		wantBook catalog.Book
		wantErr  bool
	}{
		{
			name: "valid complete record",
			record: []string{
				"12345",                       // 0: Book Id
				"The Hobbit",                  // 1: Title
				"J.R.R. Tolkien",              // 2: Author
				"Tolkien, J.R.R.",             // 3: Author l-f
				"Christopher Tolkien",         // 4: Additional Authors
				"=\"0547928227\"",             // 5: ISBN
				"=\"9780547928227\"",          // 6: ISBN13
				"5",                           // 7: My Rating
				"4.28",                        // 8: Average Rating
				"Harper Collins",              // 9: Publisher
				"Paperback",                   // 10: Binding
				"310",                         // 11: Number of Pages
				"2012",                        // 12: Year Published
				"1937",                        // 13: Original Publication Year
				"2024/01/15",                  // 14: Date Read
				"2024/01/10",                  // 15: Date Added
				"read, fantasy, location-den", // 16: Bookshelves
				"fantasy (#3)",                // 17: Bookshelves with positions
				"read",                        // 18: Exclusive Shelf
				"", "", "", "1", "1",
			},
			wantBook: catalog.Book{
				Title:            "The Hobbit",
				Author:           "J.R.R. Tolkien, Christopher Tolkien",
				ISBN:             "9780547928227",
				Genre:            "fantasy",
				Publisher:        "Harper Collins",
				PhysicalLocation: "den",
				PublicationYear:  2012,
				AverageRating:    4.28,
				DateAdded:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "minimal record falls back to ISBN-10 and original year",
			record: []string{
				"1", "Test Book", "Test Author", "", "", "=\"0-306-40615-2\"", "=\"\"",
				"0", "", "", "", "", "", "1999", "", "2024-01-01", "to-read",
			},
			wantBook: catalog.Book{
				Title:           "Test Book",
				Author:          "Test Author",
				ISBN:            "0306406152",
				PublicationYear: 1999,
				DateAdded:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			name:    "missing title",
			record:  []string{"1", "  ", "Author", "", "", "", "", "", "", "", "", "", "", "", "", "", ""},
			wantErr: true,
		},
		{
			name:    "too few fields",
			record:  []string{"1", "Test Book"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book, err := parseBookRecord(tt.record)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBook, book)
		})
	}
}

func TestClassifyShelves(t *testing.T) {
	genre, location := classifyShelves("currently-reading, Location-Attic, history, location-den, science")
	assert.Equal(t, "history", genre)
	assert.Equal(t, "attic", location)

	genre, location = classifyShelves("")
	assert.Empty(t, genre)
	assert.Empty(t, location)
}

func TestLoadBooks(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFileString("export.csv", exportHeader+
		`1,Dune,Frank Herbert,"Herbert, Frank",,"=""0441172717""","=""9780441172719""",5,4.27,Ace,Paperback,604,1990,1965,,2023/05/01,"science-fiction, location-shelf-a",,read,,,,1,1`+"\n"+
		`2,,Nobody,,,,,0,,,,,,,,2023/05/02,,,to-read,,,,0,0`+"\n"+
		`3,Emma,Jane Austen,"Austen, Jane",,"=""""","=""""",0,4.02,Penguin,Paperback,474,2003,1815,,2023/05/03,classics,,to-read,,,,0,0`+"\n")

	books, skipped, err := LoadBooks(env.Path("export.csv"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, books, 2)

	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, "9780441172719", books[0].ISBN)
	assert.Equal(t, "science-fiction", books[0].Genre)
	assert.Equal(t, "shelf-a", books[0].PhysicalLocation)

	assert.Equal(t, "Emma", books[1].Title)
	assert.Empty(t, books[1].ISBN)
	assert.Equal(t, "classics", books[1].Genre)
}

func TestLoadBooksMissingFile(t *testing.T) {
	_, _, err := LoadBooks("/nonexistent/export.csv", nil)
	assert.Error(t, err)
}
