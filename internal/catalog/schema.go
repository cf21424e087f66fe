package catalog

// BooksSchema defines the catalog table.
const BooksSchema = `
CREATE TABLE IF NOT EXISTS books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	isbn TEXT NOT NULL DEFAULT '',
	genre TEXT NOT NULL DEFAULT '',
	publisher TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	cover_url TEXT NOT NULL DEFAULT '',
	physical_location TEXT NOT NULL DEFAULT '',
	publication_year INTEGER NOT NULL DEFAULT 0,
	average_rating REAL NOT NULL DEFAULT 0,
	date_added TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn);
CREATE INDEX IF NOT EXISTS idx_books_title ON books(title COLLATE NOCASE);
`

// FullTextSchema defines the FTS5 index used by StrategyFullText. Diacritics
// are kept so that every full-text token hit is also a LIKE substring hit.
const FullTextSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS books_fts USING fts5(
	title, author, description, genre, publisher,
	tokenize = 'unicode61 remove_diacritics 0'
);
`

const (
	textGroupColumns     = "{title author description}"
	categoryGroupColumns = "{genre publisher}"
)

// likeColumns are the columns searched by substring.
var likeColumns = []string{"title", "author", "genre", "publisher", "description"}

var bookColumns = []string{
	"b.id", "b.title", "b.author", "b.isbn", "b.genre", "b.publisher", "b.description",
	"b.cover_url", "b.physical_location", "b.publication_year", "b.average_rating", "b.date_added",
}
