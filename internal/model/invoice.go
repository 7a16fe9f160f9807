package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus tracks where an invoice sits in its payment lifecycle.
type InvoiceStatus string

// Invoice status constants.
const (
	InvoiceStatusOpen    InvoiceStatus = "open"
	InvoiceStatusMatched InvoiceStatus = "matched"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// Invoice represents a receivable to reconcile against bank transactions.
// The reconciliation core only mutates it on match confirmation.
type Invoice struct {
	IssueDate            *time.Time
	DueDate              *time.Time
	MatchedTransactionID *int64
	CreatedAt            time.Time
	InvoiceNumber        string
	VendorName           string
	Currency             string
	Description          string
	Status               InvoiceStatus
	Amount               decimal.Decimal
	ID                   int64
	TenantID             int64
}

// Unmatched reports whether the invoice is still eligible for candidate
// generation.
func (i *Invoice) Unmatched() bool {
	return i.Status != InvoiceStatusMatched && i.MatchedTransactionID == nil
}

// MarkMatched transitions the invoice into the matched state, recording the
// bank transaction it settled against.
func (i *Invoice) MarkMatched(transactionID int64) {
	i.Status = InvoiceStatusMatched
	i.MatchedTransactionID = &transactionID
}
