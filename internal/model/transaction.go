package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankTransaction is a posted bank statement line. Immutable from the
// reconciliation core's perspective; a transaction may be scored against
// several invoices before one match is confirmed.
type BankTransaction struct {
	PostedAt    time.Time
	CreatedAt   time.Time
	ExternalID  string
	Currency    string
	Description string
	Amount      decimal.Decimal
	ID          int64
	TenantID    int64
}
