// Package model defines the core domain models used throughout the application.
package model

import "time"

// Tenant is the isolation boundary. Every invoice, transaction, match and
// idempotency record belongs to exactly one tenant.
type Tenant struct {
	CreatedAt time.Time
	Name      string
	ID        int64
	Active    bool
}
