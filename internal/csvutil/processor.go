// Package csvutil reads header-prefixed CSV exports into typed records.
package csvutil

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrEmpty is returned for a file with no header row.
var ErrEmpty = errors.New("CSV input is empty")

// ProcessorOptions configures CSV processing behavior.
type ProcessorOptions struct {
	// FieldsPerRecord sets the expected number of fields per record.
	// If 0, it's set to the number of fields in the first record.
	FieldsPerRecord int

	// SkipInvalid skips records the parser rejects instead of failing.
	SkipInvalid bool

	// Logger receives warnings about skipped records.
	Logger *slog.Logger
}

// Result holds the parsed records and how many rows were skipped.
type Result[T any] struct {
	Items   []T
	Skipped int
}

// ProcessCSV opens filename and parses it with ProcessReader.
func ProcessCSV[T any](filename string, parser func([]string) (T, error), opts ProcessorOptions) (Result[T], error) {
	f, err := os.Open(filename)
	if err != nil {
		return Result[T]{}, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ProcessReader(f, parser, opts)
}

// ProcessReader skips the header row and converts every following record
// with parser. Unreadable rows are always skipped; rows the parser rejects
// are skipped only with SkipInvalid.
func ProcessReader[T any](r io.Reader, parser func([]string) (T, error), opts ProcessorOptions) (Result[T], error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = opts.FieldsPerRecord
	reader.LazyQuotes = true

	_, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Result[T]{}, ErrEmpty
	}
	if err != nil {
		return Result[T]{}, fmt.Errorf("failed to read header: %w", err)
	}

	var res Result[T]
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("Error reading record", "error", err)
			res.Skipped++
			continue
		}

		item, err := parser(record)
		if err != nil {
			if opts.SkipInvalid {
				logger.Warn("Skipping invalid record", "error", err)
				res.Skipped++
				continue
			}
			return Result[T]{}, fmt.Errorf("invalid record: %w", err)
		}
		res.Items = append(res.Items, item)
	}

	return res, nil
}
