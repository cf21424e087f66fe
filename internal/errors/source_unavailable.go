package errors

import (
	stdErrors "errors"
	"fmt"
)

// SourceUnavailableError marks an external source that was skipped before any
// call was made (open circuit or exhausted rate limit).
type SourceUnavailableError struct {
	Source string
	Reason string
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %s", e.Source, e.Reason)
}

// NewSourceUnavailableError creates a SourceUnavailableError.
func NewSourceUnavailableError(source, reason string) *SourceUnavailableError {
	return &SourceUnavailableError{Source: source, Reason: reason}
}

// IsSourceUnavailableError reports whether err is a SourceUnavailableError (even when wrapped).
func IsSourceUnavailableError(err error) bool {
	var suErr *SourceUnavailableError
	return stdErrors.As(err, &suErr)
}
