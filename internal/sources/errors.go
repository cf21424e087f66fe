package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies a source failure.
type Kind int

const (
	// Timeout means the call exceeded its deadline.
	Timeout Kind = iota
	// Unavailable covers connection errors and non-success responses.
	Unavailable
	// Malformed means the response could not be decoded.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case Unavailable:
		return "unavailable"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is returned by Source.Fetch for every failure. All kinds count as
// breaker failures.
type Error struct {
	Source string
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as a source failure of the given kind.
func NewError(source string, kind Kind, err error) *Error {
	return &Error{Source: source, Kind: kind, Err: err}
}

// Classify wraps a transport error, picking Timeout for deadline and network
// timeouts and Unavailable for everything else. Errors that already are
// *Error are returned unchanged.
func Classify(source string, err error) error {
	if err == nil {
		return nil
	}
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(source, Timeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(source, Timeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return NewError(source, Timeout, err)
	}
	return NewError(source, Unavailable, err)
}

// KindOf returns the kind of a source error, or Unavailable for foreign errors.
func KindOf(err error) Kind {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Unavailable
}
