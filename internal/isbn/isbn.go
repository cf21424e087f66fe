// Package isbn provides ISBN normalization and shape checks shared by the
// search, merge and provider code.
package isbn

import "strings"

// Normalize strips hyphens, spaces and Goodreads-style ="..." wrapping from an
// ISBN and upper-cases a trailing check digit X.
func Normalize(value string) string {
	normalized := strings.TrimSpace(value)
	normalized = strings.TrimPrefix(normalized, "=\"")
	normalized = strings.TrimSuffix(normalized, "\"")
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, " ", "")
	return strings.ToUpper(normalized)
}

// Looks reports whether value has the shape of an ISBN-10 or ISBN-13 once
// normalized. Check digits are not verified; catalogs contain enough typos
// that rejecting them would hide real matches.
func Looks(value string) bool {
	n := Normalize(value)
	switch len(n) {
	case 10:
		return allDigits(n[:9]) && (isDigit(n[9]) || n[9] == 'X')
	case 13:
		return allDigits(n)
	default:
		return false
	}
}

// Fragment reports whether value, once normalized, could be part of an ISBN:
// digits, optionally followed by a single trailing X.
func Fragment(value string) bool {
	n := Normalize(value)
	if n == "" {
		return false
	}
	if n[len(n)-1] == 'X' {
		n = n[:len(n)-1]
	}
	return n != "" && allDigits(n)
}

// Equal compares two ISBNs after normalization. Empty values never match.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
