package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures so callers can react without string matching.
// The human-readable message is produced only at the API boundary.
type ErrorKind string

const (
	// KindConstraintViolation is a uniqueness clash on add. Callers recover it
	// locally by fetching the existing record.
	KindConstraintViolation ErrorKind = "CONSTRAINT_VIOLATION"
	// KindNotFound means a record or asset is absent.
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindIOFailure is a transient storage or network failure.
	KindIOFailure ErrorKind = "IO_FAILURE"
	// KindDecodeFailure means image or payload decoding failed.
	KindDecodeFailure ErrorKind = "DECODE_FAILURE"
	// KindValidationFailure means input data failed validation.
	KindValidationFailure ErrorKind = "VALIDATION_FAILURE"
	// KindInternal is an unexpected error.
	KindInternal ErrorKind = "INTERNAL"
)

// Error is a tagged error carrying a machine-readable kind.
type Error struct {
	kind    ErrorKind
	message string
	wrapped error
}

// NewError creates a tagged error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Errorf creates a tagged error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// WrapError tags an underlying error with a kind.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{kind: kind, message: message, wrapped: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Kind returns the error classification.
func (e *Error) Kind() ErrorKind {
	return e.kind
}

// KindOf extracts the kind from an error chain. Untagged errors are KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// StatusCode maps an error kind to an HTTP status for the API boundary.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindConstraintViolation:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindValidationFailure, KindDecodeFailure:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
