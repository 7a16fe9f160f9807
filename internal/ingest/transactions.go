package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
)

// TransactionImportItem is a single bank transaction in a bulk import
// request. Amounts are signed; refunds and reversals come in negative.
type TransactionImportItem struct {
	ExternalID  string          `json:"external_id,omitempty"`
	Currency    string          `json:"currency,omitempty"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	PostedAt    BoundaryTime    `json:"posted_at"`
}

// ImportTransactions validates and persists a batch of bank transactions
// for the tenant.
func (imp *Importer) ImportTransactions(ctx context.Context, tenantID int64, items []TransactionImportItem) ([]model.BankTransaction, error) {
	if err := imp.validateTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, common.NewValidationError("cannot import empty transaction list")
	}

	externalIDs := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i := range items {
		item := &items[i]

		if item.PostedAt.Time() == nil {
			return nil, common.NewValidationError("transaction posted_at is required")
		}

		// Bank amounts carry at most two decimal places.
		if !item.Amount.Equal(item.Amount.Round(2)) {
			return nil, common.NewValidationError(
				"transaction amount cannot have more than 2 decimal places, got %s", item.Amount)
		}

		if item.Currency == "" {
			item.Currency = "USD"
		}
		if err := validateCurrency(item.Currency); err != nil {
			return nil, err
		}

		if item.ExternalID == "" {
			continue
		}
		if _, dup := seen[item.ExternalID]; dup {
			return nil, common.NewValidationError(
				"duplicate external_ids found in import batch")
		}
		seen[item.ExternalID] = struct{}{}
		externalIDs = append(externalIDs, item.ExternalID)
	}

	if len(externalIDs) > 0 {
		existing, err := imp.storage.GetTransactionsByExternalIDs(ctx, tenantID, externalIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to check external ids: %w", err)
		}
		if len(existing) > 0 {
			ids := make([]string, len(existing))
			for i := range existing {
				ids[i] = existing[i].ExternalID
			}
			return nil, common.NewConflictError(
				"transactions with external_ids already exist: %s", strings.Join(ids, ", "))
		}
	}

	tx, err := imp.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := make([]model.BankTransaction, 0, len(items))
	for i := range items {
		item := &items[i]
		transaction, err := tx.CreateTransaction(ctx, &model.BankTransaction{
			TenantID:    tenantID,
			ExternalID:  item.ExternalID,
			PostedAt:    item.PostedAt.Time().UTC(),
			Amount:      item.Amount,
			Currency:    strings.ToUpper(item.Currency),
			Description: item.Description,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, *transaction)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction import: %w", err)
	}

	slog.Info("Imported bank transactions", "tenant_id", tenantID, "count", len(created))
	return created, nil
}
