package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MatchStatus tracks the lifecycle of a proposed invoice/transaction pairing.
type MatchStatus string

// Match status constants. Proposed is the only non-terminal state: confirmed
// is terminal-success, rejected is terminal-superseded.
const (
	MatchStatusProposed  MatchStatus = "proposed"
	MatchStatusConfirmed MatchStatus = "confirmed"
	MatchStatusRejected  MatchStatus = "rejected"
)

// Match pairs an invoice with a bank transaction at a given confidence
// score. At most one confirmed match exists per invoice; the (tenant,
// invoice, transaction) pair is unique.
type Match struct {
	ConfirmedAt   *time.Time
	CreatedAt     time.Time
	Status        MatchStatus
	Reason        string
	Score         decimal.Decimal
	ID            int64
	TenantID      int64
	InvoiceID     int64
	TransactionID int64
}

// Confirm transitions the match to confirmed. Confirming an
// already-confirmed match is a no-op so retried confirmations stay safe.
func (m *Match) Confirm(at time.Time) error {
	switch m.Status {
	case MatchStatusConfirmed:
		return nil
	case MatchStatusRejected:
		return fmt.Errorf("cannot confirm rejected match %d", m.ID)
	default:
		m.Status = MatchStatusConfirmed
		m.ConfirmedAt = &at
		return nil
	}
}

// Reject transitions the match to rejected, superseded by a sibling
// confirmation on the same invoice.
func (m *Match) Reject() error {
	if m.Status == MatchStatusConfirmed {
		return fmt.Errorf("cannot reject confirmed match %d", m.ID)
	}
	m.Status = MatchStatusRejected
	return nil
}
