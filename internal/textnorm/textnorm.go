// Package textnorm folds text into the form used for case-insensitive
// matching, so SQL candidate selection and Go-side scoring agree.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Fold returns s NFKC-normalized and lower-cased.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(norm.NFKC.String(s))
}

// Equal reports whether a and b are equal after folding and trimming.
func Equal(a, b string) bool {
	return folder.String(Fold(strings.TrimSpace(a))) == folder.String(Fold(strings.TrimSpace(b)))
}
