package sync

import (
	"errors"
	"fmt"
)

// ErrorClass buckets sync failures by how far they propagate.
//
// Record-level classes (validation, conflict) never escalate to
// source-level failure; a source-level class (connectivity) never
// escalates to aborting the run; only configuration and concurrency
// abort before any work happens.
type ErrorClass string

const (
	ClassConfiguration ErrorClass = "configuration"
	ClassConcurrency   ErrorClass = "concurrency"
	ClassConnectivity  ErrorClass = "connectivity"
	ClassValidation    ErrorClass = "validation"
	ClassConflict      ErrorClass = "conflict"
)

// Error is a classified sync failure.
type Error struct {
	Class   ErrorClass
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigurationError reports missing or invalid sync configuration.
func NewConfigurationError(message string) *Error {
	return &Error{Class: ClassConfiguration, Message: message}
}

// NewConcurrencyError reports a rejected trigger while a run is active.
func NewConcurrencyError(message string) *Error {
	return &Error{Class: ClassConcurrency, Message: message}
}

// NewConnectivityError reports a network or auth failure against the
// external system; it fails the whole source attempt.
func NewConnectivityError(message string, cause error) *Error {
	return &Error{Class: ClassConnectivity, Message: message, Err: cause}
}

// NewValidationError reports one malformed record; the batch continues.
func NewValidationError(message string) *Error {
	return &Error{Class: ClassValidation, Message: message}
}

// NewConflictError reports an optimistic version mismatch on a local
// record; the record is skipped and the batch continues.
func NewConflictError(message string, cause error) *Error {
	return &Error{Class: ClassConflict, Message: message, Err: cause}
}

// ClassOf returns the class of err, or "" if err carries none.
func ClassOf(err error) ErrorClass {
	var se *Error
	if errors.As(err, &se) {
		return se.Class
	}
	return ""
}

// IsClass reports whether err belongs to the given class.
func IsClass(err error, class ErrorClass) bool {
	return ClassOf(err) == class
}
