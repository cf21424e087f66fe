package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lepinkainen/folio/internal/isbn"
	"github.com/lepinkainen/folio/internal/textnorm"
	"modernc.org/sqlite"
)

// foldFunc is the SQL name of textnorm.Fold.
const foldFunc = "folio_fold"

var registerOnce sync.Once
var registerErr error

func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction(foldFunc, 1,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case string:
					return textnorm.Fold(v), nil
				case []byte:
					return textnorm.Fold(string(v)), nil
				case nil:
					return "", nil
				default:
					return textnorm.Fold(fmt.Sprint(v)), nil
				}
			})
	})
	return registerErr
}

// SQLiteStore implements Store on a local SQLite database
type SQLiteStore struct {
	db       *sql.DB
	dbPath   string
	strategy Strategy
	logger   *slog.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger used for degraded full-text lookups.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSQLiteStore creates a new SQLiteStore instance
func NewSQLiteStore(dbPath string, strategy Strategy, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		dbPath:   dbPath,
		strategy: strategy,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.strategy == "" {
		s.strategy = StrategyLike
	}
	return s
}

// Strategy returns the configured query strategy.
func (s *SQLiteStore) Strategy() Strategy {
	return s.strategy
}

// Connect opens the database and ensures the schema exists
func (s *SQLiteStore) Connect(ctx context.Context) error {
	if err := registerFunctions(); err != nil {
		return fmt.Errorf("failed to register sql functions: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("%w: failed to open database: %v", ErrUnavailable, err)
	}
	if isMemoryPath(s.dbPath) {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.db = db

	return s.EnsureSchema(ctx)
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory") || strings.HasPrefix(path, "file::memory:")
}

// EnsureSchema creates the books table and, for the full-text strategy, the
// FTS5 index. The index is rebuilt when its row count drifts from books.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return ErrUnavailable
	}
	if _, err := s.db.ExecContext(ctx, BooksSchema); err != nil {
		return fmt.Errorf("failed to create books table: %w", err)
	}
	if s.strategy != StrategyFullText {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, FullTextSchema); err != nil {
		return fmt.Errorf("failed to create full-text index: %w", err)
	}

	var books, indexed int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books").Scan(&books); err != nil {
		return fmt.Errorf("failed to count books: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books_fts").Scan(&indexed); err != nil {
		return fmt.Errorf("failed to count full-text rows: %w", err)
	}
	if books == indexed {
		return nil
	}

	s.logger.Info("Rebuilding full-text index", "books", books, "indexed", indexed)
	return s.rebuildFullText(ctx)
}

func (s *SQLiteStore) rebuildFullText(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM books_fts"); err != nil {
		return fmt.Errorf("failed to clear full-text index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO books_fts (rowid, title, author, description, genre, publisher)
		SELECT id, title, author, description, genre, publisher FROM books`); err != nil {
		return fmt.Errorf("failed to fill full-text index: %w", err)
	}
	return tx.Commit()
}

// Search returns candidate rows ordered by title. Under StrategyFullText the
// rows are the same ones StrategyLike returns, annotated with FTS hits.
func (s *SQLiteStore) Search(ctx context.Context, c Criteria, f Filters, page Page) ([]Row, error) {
	if s.db == nil {
		return nil, ErrUnavailable
	}

	query := sq.Select(bookColumns...).
		From("books b").
		Where(matchClause(c)).
		Where(filterClause(f)).
		OrderBy(foldFunc+"(b.title) ASC", "b.id ASC")
	if page.Limit > 0 {
		query = query.Limit(uint64(page.Limit))
	}
	if page.Offset > 0 {
		if page.Limit <= 0 {
			query = query.Limit(1<<63 - 1)
		}
		query = query.Offset(uint64(page.Offset))
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}

	result, err := s.queryRows(ctx, sqlStr, args)
	if err != nil {
		return nil, err
	}

	if s.strategy == StrategyFullText && len(c.Terms) > 0 && len(result) > 0 {
		s.annotate(ctx, c.Terms, result)
	}
	return result, nil
}

func (s *SQLiteStore) queryRows(ctx context.Context, sqlStr string, args []any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, unavailable(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	var result []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(ctx, err)
	}
	return result, nil
}

// Count returns the number of rows Search would return without paging.
func (s *SQLiteStore) Count(ctx context.Context, c Criteria, f Filters) (int, error) {
	if s.db == nil {
		return 0, ErrUnavailable
	}

	sqlStr, args, err := sq.Select("COUNT(*)").
		From("books b").
		Where(matchClause(c)).
		Where(filterClause(f)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, unavailable(ctx, err)
	}
	return total, nil
}

// annotate marks rows hit by the FTS5 index. Failures degrade to no
// annotation; the candidate set itself never changes.
func (s *SQLiteStore) annotate(ctx context.Context, terms []string, rows []Row) {
	ids := make([]any, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	text, err := s.fullTextHits(ctx, textGroupColumns, terms, ids)
	if err != nil {
		s.logger.Warn("Full-text lookup failed", "group", "text", "error", err)
		return
	}
	category, err := s.fullTextHits(ctx, categoryGroupColumns, terms, ids)
	if err != nil {
		s.logger.Warn("Full-text lookup failed", "group", "category", "error", err)
		return
	}

	for i := range rows {
		rows[i].Match = TextMatch{
			Text:     text[rows[i].ID],
			Category: category[rows[i].ID],
		}
	}
}

func (s *SQLiteStore) fullTextHits(ctx context.Context, columns string, terms []string, ids []any) (map[int64]bool, error) {
	sqlStr, args, err := sq.Select("rowid").
		From("books_fts").
		Where("books_fts MATCH ?", matchExpression(columns, terms)).
		Where(sq.Eq{"rowid": ids}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hits := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		hits[id] = true
	}
	return hits, rows.Err()
}

// matchExpression builds an FTS5 column-filtered OR of quoted prefix terms,
// e.g. {title author} : ("dune"* OR "herbert"*).
func matchExpression(columns string, terms []string) string {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"*`
	}
	return columns + " : (" + strings.Join(quoted, " OR ") + ")"
}

func matchClause(c Criteria) sq.Sqlizer {
	if c.MatchAll() {
		return sq.Expr("1 = 1")
	}

	var or sq.Or
	for _, term := range c.Terms {
		pattern := "%" + escapeLike(term) + "%"
		for _, col := range likeColumns {
			or = append(or, sq.Expr(foldFunc+"(b."+col+") LIKE ? ESCAPE '\\'", pattern))
		}
	}
	if c.ISBN != "" {
		or = append(or, sq.Expr("UPPER(b.isbn) LIKE ? ESCAPE '\\'", "%"+escapeLike(c.ISBN)+"%"))
	}
	return or
}

func filterClause(f Filters) sq.Sqlizer {
	and := sq.And{}
	if f.Category != "" {
		and = append(and, sq.Expr(foldFunc+"(b.genre) = ?", textnorm.Fold(strings.TrimSpace(f.Category))))
	}
	if f.PhysicalLocation != "" {
		and = append(and, sq.Expr(foldFunc+"(b.physical_location) = ?", textnorm.Fold(strings.TrimSpace(f.PhysicalLocation))))
	}
	if f.MinRating > 0 {
		and = append(and, sq.GtOrEq{"b.average_rating": f.MinRating})
	}
	if f.YearFrom > 0 {
		and = append(and, sq.GtOrEq{"b.publication_year": f.YearFrom})
	}
	if f.YearTo > 0 {
		and = append(and, sq.LtOrEq{"b.publication_year": f.YearTo})
	}
	return and
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(rows scanner) (Row, error) {
	var (
		row       Row
		dateAdded string
	)
	err := rows.Scan(
		&row.ID, &row.Title, &row.Author, &row.ISBN, &row.Genre, &row.Publisher, &row.Description,
		&row.CoverURL, &row.PhysicalLocation, &row.PublicationYear, &row.AverageRating, &dateAdded,
	)
	if err != nil {
		return Row{}, fmt.Errorf("failed to scan book: %w", err)
	}
	row.DateAdded = parseDate(dateAdded)
	return row, nil
}

func parseDate(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func unavailable(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// UpsertResult counts rows touched by Upsert.
type UpsertResult struct {
	Inserted int
	Updated  int
	Skipped  int
}

// Upsert inserts or updates books, matching existing rows by ISBN or by
// folded (title, author). The FTS5 index is kept in step.
func (s *SQLiteStore) Upsert(ctx context.Context, books []Book) (UpsertResult, error) {
	var result UpsertResult
	if s.db == nil {
		return result, ErrUnavailable
	}
	if len(books) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback if we don't commit - ignore errors as they're expected if transaction was committed
		_ = tx.Rollback()
	}()

	for _, book := range books {
		book.Title = strings.TrimSpace(book.Title)
		book.Author = strings.TrimSpace(book.Author)
		book.ISBN = isbn.Normalize(book.ISBN)
		if book.Title == "" {
			result.Skipped++
			continue
		}
		if book.DateAdded.IsZero() {
			book.DateAdded = time.Now()
		}

		id, found, err := findExisting(ctx, tx, book)
		if err != nil {
			return result, err
		}

		if found {
			book.ID = id
			if err := updateBook(ctx, tx, book); err != nil {
				return result, err
			}
			result.Updated++
		} else {
			book.ID, err = insertBook(ctx, tx, book)
			if err != nil {
				return result, err
			}
			result.Inserted++
		}

		if s.strategy == StrategyFullText {
			if err := indexBook(ctx, tx, book); err != nil {
				return result, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

func findExisting(ctx context.Context, tx *sql.Tx, book Book) (int64, bool, error) {
	query := sq.Select("id").From("books").Limit(1)
	if book.ISBN != "" {
		query = query.Where(sq.Eq{"isbn": book.ISBN})
	} else {
		query = query.Where(sq.And{
			sq.Expr(foldFunc+"(title) = ?", textnorm.Fold(book.Title)),
			sq.Expr(foldFunc+"(author) = ?", textnorm.Fold(book.Author)),
		})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("failed to build lookup query: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, sqlStr, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up book: %w", err)
	}
	return id, true, nil
}

func insertBook(ctx context.Context, tx *sql.Tx, book Book) (int64, error) {
	sqlStr, args, err := sq.Insert("books").
		Columns("title", "author", "isbn", "genre", "publisher", "description", "cover_url",
			"physical_location", "publication_year", "average_rating", "date_added").
		Values(book.Title, book.Author, book.ISBN, book.Genre, book.Publisher, book.Description, book.CoverURL,
			book.PhysicalLocation, book.PublicationYear, book.AverageRating, formatDate(book.DateAdded)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build insert: %w", err)
	}

	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert book %q: %w", book.Title, err)
	}
	return res.LastInsertId()
}

func updateBook(ctx context.Context, tx *sql.Tx, book Book) error {
	sqlStr, args, err := sq.Update("books").
		SetMap(map[string]any{
			"title":             book.Title,
			"author":            book.Author,
			"isbn":              book.ISBN,
			"genre":             book.Genre,
			"publisher":         book.Publisher,
			"description":       book.Description,
			"cover_url":         book.CoverURL,
			"physical_location": book.PhysicalLocation,
			"publication_year":  book.PublicationYear,
			"average_rating":    book.AverageRating,
		}).
		Where(sq.Eq{"id": book.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to update book %q: %w", book.Title, err)
	}
	return nil
}

func indexBook(ctx context.Context, tx *sql.Tx, book Book) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM books_fts WHERE rowid = ?", book.ID); err != nil {
		return fmt.Errorf("failed to unindex book: %w", err)
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO books_fts (rowid, title, author, description, genre, publisher) VALUES (?, ?, ?, ?, ?, ?)",
		book.ID, book.Title, book.Author, book.Description, book.Genre, book.Publisher)
	if err != nil {
		return fmt.Errorf("failed to index book: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
