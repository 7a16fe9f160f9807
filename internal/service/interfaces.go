// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/model"
)

// Storage defines the contract for our persistence layer.
//
// Get methods return a NotFound error from the common package when the row
// is absent or owned by another tenant. GetConfirmedMatchForInvoice is the
// exception: no confirmed match is a normal outcome and yields (nil, nil).
type Storage interface {
	// Tenant operations
	CreateTenant(ctx context.Context, name string) (*model.Tenant, error)
	GetTenant(ctx context.Context, id int64) (*model.Tenant, error)
	ListTenants(ctx context.Context) ([]model.Tenant, error)

	// Invoice operations
	CreateInvoice(ctx context.Context, invoice *model.Invoice) (*model.Invoice, error)
	GetInvoice(ctx context.Context, id, tenantID int64) (*model.Invoice, error)
	ListInvoices(ctx context.Context, tenantID int64) ([]model.Invoice, error)
	InvoiceNumberExists(ctx context.Context, tenantID int64, invoiceNumber string) (bool, error)
	UpdateInvoice(ctx context.Context, invoice *model.Invoice) error

	// Bank transaction operations
	CreateTransaction(ctx context.Context, transaction *model.BankTransaction) (*model.BankTransaction, error)
	GetTransaction(ctx context.Context, id, tenantID int64) (*model.BankTransaction, error)
	ListTransactions(ctx context.Context, tenantID int64) ([]model.BankTransaction, error)
	GetTransactionsByExternalIDs(ctx context.Context, tenantID int64, externalIDs []string) ([]model.BankTransaction, error)

	// Match operations
	CreateMatch(ctx context.Context, match *model.Match) (*model.Match, error)
	GetMatch(ctx context.Context, id, tenantID int64) (*model.Match, error)
	GetMatchesByInvoice(ctx context.Context, invoiceID, tenantID int64, status model.MatchStatus) ([]model.Match, error)
	GetProposedCandidates(ctx context.Context, tenantID int64, top int, minScore decimal.Decimal) ([]model.Match, int, error)
	UpdateMatchStatus(ctx context.Context, id, tenantID int64, status model.MatchStatus, confirmedAt *time.Time) (*model.Match, error)
	GetConfirmedMatchForInvoice(ctx context.Context, invoiceID, tenantID int64) (*model.Match, error)

	// Idempotency operations
	GetIdempotencyRecord(ctx context.Context, key string, tenantID int64, now time.Time) (*model.IdempotencyRecord, error)
	CreateIdempotencyRecord(ctx context.Context, record *model.IdempotencyRecord) (*model.IdempotencyRecord, error)
	UpdateIdempotencyResponse(ctx context.Context, key string, tenantID int64, body []byte, statusCode int) error
	DeleteIdempotencyRecord(ctx context.Context, key string, tenantID int64) error
	DeleteExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Timeout bounds the wall clock across all attempts. Zero means the
	// caller's context deadline (if any) is the only limit.
	Timeout time.Duration
}
