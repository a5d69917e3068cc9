// Package domainerrors provides coded domain errors. Services create these
// from validation failures or by translating infrastructure sentinels, and
// the transport layer maps codes to HTTP statuses. Codes are stable strings
// that also appear in JSON error envelopes.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"

	// Lifecycle-specific codes surfaced to callers of the record API.
	CodeInvalidState         Code = "invalid_state_transition"
	CodeAttemptsExhausted    Code = "attempts_exhausted"
	CodeIncompleteSubmission Code = "incomplete_submission"
)

// Error carries a code, a caller-facing message, an optional cause, and
// optional string metadata (e.g. the missing-answer count on an incomplete
// submission).
type Error struct {
	Code    Code
	Message string
	cause   error
	meta    map[string]string
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Unwrap for logging; only code and message are
// caller-facing.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Add attaches a metadata key to the error and returns it for chaining.
func (e *Error) Add(key, value string) *Error {
	if e.meta == nil {
		e.meta = make(map[string]string)
	}
	e.meta[key] = value
	return e
}

// Load reads a metadata key from the nearest *Error in err's chain.
func Load(err error, key string) (string, bool) {
	var de *Error
	if !errors.As(err, &de) || de.meta == nil {
		return "", false
	}
	v, ok := de.meta[key]
	return v, ok
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is a readability alias for HasCode.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from an error chain, defaulting to CodeInternal
// so unclassified failures never leak details to callers.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidInput, CodeIncompleteSubmission:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState, CodeAttemptsExhausted:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
