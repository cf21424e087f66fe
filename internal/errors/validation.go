package errors

import (
	stdErrors "errors"
	"fmt"
)

// ValidationError represents a malformed request parameter. It is the only
// search failure that is reported back to the caller as a client error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the named field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is a ValidationError (even when wrapped).
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return stdErrors.As(err, &vErr)
}
