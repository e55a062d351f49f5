package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/event-reservation/internal/repository"
)

// Error kinds. Every error returned by a service either wraps one of these
// (test with errors.Is) or is an unexpected infrastructure failure.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrBusinessRule = errors.New("business rule violation")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrExhausted marks an operational failure such as running out of
	// reservation codes. It is not the caller's fault.
	ErrExhausted = errors.New("exhausted")
)

// Error pairs a kind with the human-readable reason shown to the caller.
type Error struct {
	Kind    error
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

func newErr(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error     { return newErr(ErrNotFound, format, args...) }
func forbiddenf(format string, args ...any) error    { return newErr(ErrForbidden, format, args...) }
func badRequestf(format string, args ...any) error   { return newErr(ErrBadRequest, format, args...) }
func businessRulef(format string, args ...any) error { return newErr(ErrBusinessRule, format, args...) }

// lookupErr turns repository.ErrNotFound into a NotFound error with the
// given message and wraps anything else.
func lookupErr(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundf(format, args...)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Message returns the caller-facing text of err when it carries a kind.
func Message(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Message, true
	}
	return "", false
}
