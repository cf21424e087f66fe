// Package seed reads catalog books from a YAML seed file.
package seed

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lepinkainen/folio/internal/catalog"
)

// File is the document layout of a seed file.
type File struct {
	Books []catalog.Book `yaml:"books"`
}

// LoadFile reads the seed file at path.
func LoadFile(path string) ([]catalog.Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}

// Load decodes a seed document. Unknown keys are rejected so typos in field
// names do not silently drop data.
func Load(r io.Reader) ([]catalog.Book, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc File
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}

	for i, b := range doc.Books {
		if strings.TrimSpace(b.Title) == "" {
			return nil, fmt.Errorf("book %d: title is required", i+1)
		}
	}
	return doc.Books, nil
}
