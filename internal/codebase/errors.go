package codebase

import (
	"fmt"

	errors "github.com/Laisky/errors/v2"
)

// ErrorCode identifies a machine-stable codebase error code.
type ErrorCode string

const (
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeIngestion         ErrorCode = "INGESTION_ERROR"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeNotReady          ErrorCode = "NOT_READY"
	ErrCodeSynthesisDegraded ErrorCode = "SYNTHESIS_DEGRADED"
	ErrCodePayloadTooLarge   ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeResourceBusy      ErrorCode = "RESOURCE_BUSY"
	ErrCodeSearchBackend     ErrorCode = "SEARCH_BACKEND_ERROR"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"
)

// Error captures a typed codebase error with retryability metadata.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
}

// Error returns the error message.
func (e *Error) Error() string {
	if e == nil {
		return "codebase error: <nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("codebase error: %s", e.Code)
	}
	return e.Message
}

// NewError constructs a typed codebase error.
func NewError(code ErrorCode, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// AsError extracts a typed codebase error from the error chain.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	typed, ok := AsError(err)
	return ok && typed.Code == code
}

func validationError(format string, args ...any) *Error {
	return NewError(ErrCodeValidation, fmt.Sprintf(format, args...), false)
}

func notFoundError(codebaseID string) *Error {
	return NewError(ErrCodeNotFound, fmt.Sprintf("codebase %q not found", codebaseID), false)
}

func notReadyError(codebaseID string, status Status) *Error {
	return NewError(ErrCodeNotReady, fmt.Sprintf("codebase %q is %s, not ready for queries", codebaseID, status), status != StatusFailed)
}
