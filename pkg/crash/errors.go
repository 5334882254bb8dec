package crash

import (
	"errors"
	"fmt"
)

// Sentinel kinds; match with errors.Is.
var (
	ErrNotFound         = errors.New("crash flag not found")
	ErrMalformedState   = errors.New("crash flag malformed")
	ErrReadFailed       = errors.New("crash flag read failed")
	ErrWriteFailed      = errors.New("crash flag write failed")
	ErrConcurrentToggle = errors.New("crash flag changed concurrently")
)

// Error wraps a toggle failure with its kind and a human-readable reason.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}
