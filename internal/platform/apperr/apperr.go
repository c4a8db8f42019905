// Package apperr defines the error kinds raised by pumpfleet domain
// operations and their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies a domain error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindEligibility
	KindPolicy
	KindState
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindEligibility:
		return "eligibility"
	case KindPolicy:
		return "policy"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a user-facing domain error. Message names the offending record
// and the rule that was broken.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a malformed or out-of-range field value.
func Validation(format string, args ...interface{}) error {
	return newf(KindValidation, format, args...)
}

// Conflict reports a uniqueness invariant violation.
func Conflict(format string, args ...interface{}) error {
	return newf(KindConflict, format, args...)
}

// Eligibility reports an RMA gating failure.
func Eligibility(format string, args ...interface{}) error {
	return newf(KindEligibility, format, args...)
}

// Policy reports a disallowed workflow.
func Policy(format string, args ...interface{}) error {
	return newf(KindPolicy, format, args...)
}

// State reports an operation that is invalid for the current lifecycle state.
func State(format string, args ...interface{}) error {
	return newf(KindState, format, args...)
}

// NotFound reports a missing record.
func NotFound(format string, args ...interface{}) error {
	return newf(KindNotFound, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps a kind onto an HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindState:
		return http.StatusConflict
	case KindEligibility:
		return http.StatusUnprocessableEntity
	case KindPolicy:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into an echo HTTP error. Unknown errors are
// reported as 500; their text is kept only as the internal cause for logging.
func HTTPError(err error) *echo.HTTPError {
	var e *Error
	if errors.As(err, &e) {
		return echo.NewHTTPError(Status(e.Kind), e.Message)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}
