package scheduler

import (
	"errors"
	"fmt"
)

// Kind classifies scheduler errors for the caller's taxonomy: validation
// maps to a 4xx-equivalent, not-found to 404, upstream/generation to
// per-item outcomes, persistence to logged-and-retried.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindNotFound    Kind = "NOT_FOUND"
	KindUpstream    Kind = "UPSTREAM"
	KindGeneration  Kind = "GENERATION"
	KindPersistence Kind = "PERSISTENCE"
)

// Error is a kind-carrying scheduler error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or empty when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a not-found scheduler error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsValidation reports whether err is a validation scheduler error.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}
