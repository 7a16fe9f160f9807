// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Request errors.
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")

	// AI enrichment errors.
	ErrExplainerDisabled = errors.New("explanation service is disabled")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// NotFoundError reports a referenced entity that is absent or not owned by
// the requesting tenant.
type NotFoundError struct {
	Entity string
	Detail string
}

func (e *NotFoundError) Error() string {
	return e.Detail
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a NotFoundError for the named entity.
func NewNotFoundError(entity, format string, args ...any) error {
	return &NotFoundError{
		Entity: entity,
		Detail: fmt.Sprintf(format, args...),
	}
}

// ConflictError reports a state collision: duplicate names or numbers, an
// idempotency key reused with a different payload, or a competing match
// confirmation.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	return e.Detail
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError creates a ConflictError with a user-facing detail message.
func NewConflictError(format string, args ...any) error {
	return &ConflictError{Detail: fmt.Sprintf(format, args...)}
}

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError with a user-facing detail message.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
