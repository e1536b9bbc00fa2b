package domain

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a referenced team, user, task, meeting or file does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ForbiddenError is an authorization denial. Reason is returned to the caller verbatim.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return e.Reason }

// InvalidStateError indicates the request is well formed but would break a
// membership invariant, e.g. removing a team's creator.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string { return e.Message }

// ValidationError indicates malformed input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a concurrent write or a uniqueness clash.
type ConflictError struct {
	Message   string
	Retryable bool
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrForbidden creates a ForbiddenError carrying reason.
func ErrForbidden(reason string) *ForbiddenError {
	return &ForbiddenError{Reason: reason}
}

// ErrInvalidState creates an InvalidStateError with a formatted message.
func ErrInvalidState(format string, args ...any) *InvalidStateError {
	return &InvalidStateError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a retryable ConflictError for a lost compare-and-swap.
func ErrConflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...), Retryable: true}
}

// ErrDuplicate creates a non-retryable ConflictError for a uniqueness clash.
func ErrDuplicate(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidToken is returned when a bearer token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err wraps a retryable ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c) && c.Retryable
}
