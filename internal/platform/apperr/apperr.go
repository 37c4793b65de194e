// Package apperr defines the error taxonomy shared by the scheduling, triage
// and billing engines. Every failure a handler can surface maps to one of the
// kinds below; the HTTP layer translates kinds to status codes in one place.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers: everything except StorageUnavailable
// is recoverable by the caller (fix input, re-read, or retry).
type Kind int

const (
	// Validation marks malformed or missing input; never retried automatically.
	Validation Kind = iota
	// Conflict marks a lost slot race; the caller should re-list and retry.
	Conflict
	// InvalidTransition marks an illegal state change; surfaced, not retried.
	InvalidTransition
	// StaleWrite marks an optimistic concurrency collision; re-read and retry.
	StaleWrite
	// ExceedsBalance marks a payment that would overpay an invoice.
	ExceedsBalance
	// NotFound marks a missing record.
	NotFound
	// StorageUnavailable marks a persistence outage; maps to a 5xx response.
	StorageUnavailable
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case InvalidTransition:
		return "invalid_transition"
	case StaleWrite:
		return "stale_write"
	case ExceedsBalance:
		return "exceeds_balance"
	case NotFound:
		return "not_found"
	case StorageUnavailable:
		return "storage_unavailable"
	}
	return "unknown"
}

// Error is a classified error. Wrapped causes stay reachable via errors.Is/As.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error, typically at the persistence boundary.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind of err. Unclassified errors are treated as
// StorageUnavailable so that an unexpected failure never masquerades as a
// caller mistake.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return StorageUnavailable
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps an error kind to the status code the API layer returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case Conflict, StaleWrite:
		return http.StatusConflict
	case InvalidTransition, ExceedsBalance:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}
