package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// validateContext ensures a usable context was supplied.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context is already cancelled: %w", err)
	}
	return nil
}

// validateString ensures a required string field is non-blank.
func validateString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	return nil
}

// validateID ensures an entity or tenant identifier is positive.
func validateID(id int64, field string) error {
	if id <= 0 {
		return fmt.Errorf("%s must be positive, got %d", field, id)
	}
	return nil
}

// validateScore ensures a match score sits in the allowed 0-100 range.
func validateScore(score decimal.Decimal) error {
	if score.IsNegative() || score.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("score must be between 0 and 100, got %s", score)
	}
	return nil
}
