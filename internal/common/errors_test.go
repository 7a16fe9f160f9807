package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		detail   string
	}{
		{
			name:     "not found",
			err:      NewNotFoundError("invoice", "invoice with id %d not found", 42),
			sentinel: ErrNotFound,
			detail:   "invoice with id 42 not found",
		},
		{
			name:     "conflict",
			err:      NewConflictError("invoice already matched to transaction %d", 7),
			sentinel: ErrConflict,
			detail:   "invoice already matched to transaction 7",
		},
		{
			name:     "validation",
			err:      NewValidationError("min score cannot be negative, got %s", "-5"),
			sentinel: ErrValidation,
			detail:   "min score cannot be negative, got -5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, sentinel) = false", tt.err)
			}
			if tt.err.Error() != tt.detail {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.detail)
			}

			// Still matchable after further wrapping.
			wrapped := fmt.Errorf("outer context: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("wrapped error lost its sentinel")
			}
		})
	}
}

func TestNotFoundErrorCarriesEntity(t *testing.T) {
	err := NewNotFoundError("tenant", "tenant with id %d not found", 3)

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatal("errors.As() failed")
	}
	if notFound.Entity != "tenant" {
		t.Errorf("Entity = %q, want tenant", notFound.Entity)
	}
}

func TestRetryableErrorUnwraps(t *testing.T) {
	inner := errors.New("connection reset")
	err := &RetryableError{Err: fmt.Errorf("request failed: %w", inner), Retryable: true}

	if !errors.Is(err, inner) {
		t.Error("RetryableError should unwrap to the inner error")
	}
	if err.Error() != "request failed: connection reset" {
		t.Errorf("Error() = %q", err.Error())
	}
}
