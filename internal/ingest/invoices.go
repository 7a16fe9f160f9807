package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
	"github.com/recountlabs/recount/internal/service"
)

// Importer runs bulk invoice and bank-transaction imports. Each batch is
// all-or-nothing: a validation or conflict failure leaves nothing behind.
type Importer struct {
	storage service.Storage
}

// NewImporter creates an importer backed by the given storage.
func NewImporter(storage service.Storage) *Importer {
	return &Importer{storage: storage}
}

// InvoiceImportItem is a single invoice in a bulk import request.
type InvoiceImportItem struct {
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	VendorName    string          `json:"vendor_name,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	IssueDate     BoundaryTime    `json:"issue_date,omitempty"`
	DueDate       BoundaryTime    `json:"due_date,omitempty"`
}

// ImportInvoices validates and persists a batch of invoices for the tenant.
func (imp *Importer) ImportInvoices(ctx context.Context, tenantID int64, items []InvoiceImportItem) ([]model.Invoice, error) {
	if err := imp.validateTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, common.NewValidationError("cannot import empty invoice list")
	}

	seen := make(map[string]struct{}, len(items))
	for i := range items {
		item := &items[i]

		// Invoice amounts are whole currency units: no cents allowed.
		if !item.Amount.IsPositive() || !item.Amount.Equal(item.Amount.Truncate(0)) {
			return nil, common.NewValidationError(
				"invoice amount must be a positive integer (no cents allowed), got %s", item.Amount)
		}

		if item.Currency == "" {
			item.Currency = "USD"
		}
		if err := validateCurrency(item.Currency); err != nil {
			return nil, err
		}

		if issue, due := item.IssueDate.Time(), item.DueDate.Time(); issue != nil && due != nil && due.Before(*issue) {
			return nil, common.NewValidationError("due date cannot be before invoice date")
		}

		if item.InvoiceNumber == "" {
			continue
		}
		if _, dup := seen[item.InvoiceNumber]; dup {
			return nil, common.NewValidationError(
				"duplicate invoice number %q in import batch", item.InvoiceNumber)
		}
		seen[item.InvoiceNumber] = struct{}{}

		exists, err := imp.storage.InvoiceNumberExists(ctx, tenantID, item.InvoiceNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to check invoice number: %w", err)
		}
		if exists {
			return nil, common.NewConflictError(
				"invoice with number %q already exists for this tenant", item.InvoiceNumber)
		}
	}

	tx, err := imp.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := make([]model.Invoice, 0, len(items))
	for i := range items {
		item := &items[i]
		invoice, err := tx.CreateInvoice(ctx, &model.Invoice{
			TenantID:      tenantID,
			InvoiceNumber: item.InvoiceNumber,
			VendorName:    item.VendorName,
			Amount:        item.Amount,
			Currency:      strings.ToUpper(item.Currency),
			IssueDate:     item.IssueDate.Time(),
			DueDate:       item.DueDate.Time(),
			Description:   item.Description,
			Status:        model.InvoiceStatusOpen,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, *invoice)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invoice import: %w", err)
	}

	slog.Info("Imported invoices", "tenant_id", tenantID, "count", len(created))
	return created, nil
}

// validateTenant ensures the tenant exists and is active.
func (imp *Importer) validateTenant(ctx context.Context, tenantID int64) error {
	tenant, err := imp.storage.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if !tenant.Active {
		return common.NewValidationError("tenant with id %d is not active", tenantID)
	}
	return nil
}

func validateCurrency(currency string) error {
	if len(currency) != 3 {
		return common.NewValidationError("currency must be a 3-letter code, got %q", currency)
	}
	return nil
}
