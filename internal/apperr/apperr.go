// Package apperr defines the request-level error taxonomy and its HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and the HTTP layer.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindAccessDenied     Kind = "access_denied"
	KindValidation       Kind = "validation_error"
	KindTooManyItems     Kind = "too_many_items"
	KindStoreUnavailable Kind = "store_unavailable"
)

// Error carries a Kind, a caller-safe message, and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to err. Returns nil if err is nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// NotFound is shorthand for New(KindNotFound, ...).
func NotFound(format string, args ...any) *Error {
	return Newf(KindNotFound, format, args...)
}

// Validation is shorthand for New(KindValidation, ...).
func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

// AccessDenied is shorthand for New(KindAccessDenied, ...).
func AccessDenied(format string, args ...any) *Error {
	return Newf(KindAccessDenied, format, args...)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain. Errors outside
// the taxonomy are treated as store failures.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindStoreUnavailable
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to a response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindAccessDenied:
		return http.StatusForbidden
	case KindValidation, KindTooManyItems:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a client. Store failures
// never leak their cause.
func PublicMessage(err error) string {
	ae, ok := As(err)
	if !ok || ae.Kind == KindStoreUnavailable {
		return "internal server error"
	}
	return ae.Msg
}
