// Package faults defines the gateway error taxonomy. Every operation returns
// one of these kinds at the trust boundary; HTTP handlers map kinds to status
// codes in one place.
package faults

import (
	"errors"
	"net/http"
)

type Kind string

const (
	Validation        Kind = "validation"         // caller-fixable input, never retried
	Unauthorized      Kind = "unauthorized"       // bad/inactive credential
	Forbidden         Kind = "forbidden"          // credential/ownership mismatch
	NotFound          Kind = "not_found"          // unknown device/zone/command
	InvalidTransition Kind = "invalid_transition" // state machine violation
	Conflict          Kind = "conflict"           // lost an atomic-update race; retry
	Unavailable       Kind = "unavailable"        // store/network failure; retry with backoff
)

// Error — a fault with a kind, a human message and (for validation) the full
// list of violated rules.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	cause   error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// NewValidation carries every violated rule, not just the first one.
func NewValidation(msg string, details []string) *Error {
	return &Error{Kind: Validation, Message: msg, Details: details}
}

// KindOf extracts the fault kind; unexpected internal errors are Unavailable.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unavailable
}

// DetailsOf returns the rule list for validation faults, nil otherwise.
func DetailsOf(err error) []string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Details
	}
	return nil
}

// HTTPStatus maps a kind to its wire status.
func HTTPStatus(k Kind) int {
	switch k {
	case Validation, InvalidTransition:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}
