package errcode

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for the HTTP boundary:
// - Validation: malformed, missing or out-of-range input
// - Authentication: bad credentials, absent/expired/invalid token
// - Authorization: role or ownership mismatch
// - NotFound: missing entity
// - RateLimited: too many attempts
// - Internal: anything unexpected (store or disk failure)
type Kind int

const (
	Internal Kind = iota
	Validation
	Authentication
	Authorization
	NotFound
	RateLimited
)

// Error is a classified failure whose Message is safe to show to clients.
// Package-level *Error values act as sentinels and are matched with errors.Is.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Invalid(msg string) *Error         { return New(Validation, msg) }
func Unauthenticated(msg string) *Error { return New(Authentication, msg) }
func Forbidden(msg string) *Error       { return New(Authorization, msg) }
func Missing(msg string) *Error         { return New(NotFound, msg) }

// As extracts the first classified error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns Internal for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a kind onto its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Authentication:
		return http.StatusUnauthorized
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
