package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
)

const transactionColumns = `id, tenant_id, external_id, posted_at, amount, currency,
	description, created_at`

// CreateTransaction inserts a bank transaction and returns it with its
// assigned id.
func (q *queries) CreateTransaction(ctx context.Context, transaction *model.BankTransaction) (*model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if transaction == nil {
		return nil, errors.New("transaction cannot be nil")
	}
	if err := validateID(transaction.TenantID, "tenantID"); err != nil {
		return nil, err
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO bank_transactions (
			tenant_id, external_id, posted_at, amount, currency, description
		) VALUES (?, ?, ?, ?, ?, ?)`,
		transaction.TenantID,
		nullString(transaction.ExternalID),
		transaction.PostedAt,
		transaction.Amount.String(),
		transaction.Currency,
		nullString(transaction.Description),
	)
	if err != nil {
		if errors.Is(wrapConstraintErr(err), common.ErrDuplicateEntry) {
			return nil, common.NewConflictError(
				"transaction with external id %q already exists for this tenant", transaction.ExternalID)
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction id: %w", err)
	}

	return q.GetTransaction(ctx, id, transaction.TenantID)
}

// GetTransaction fetches a bank transaction by id within the tenant scope.
func (q *queries) GetTransaction(ctx context.Context, id, tenantID int64) (*model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM bank_transactions WHERE id = ? AND tenant_id = ?`,
		id, tenantID)

	transaction, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewNotFoundError("transaction", "transaction with id %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return transaction, nil
}

// ListTransactions returns all bank transactions for a tenant ordered by
// posting time.
func (q *queries) ListTransactions(ctx context.Context, tenantID int64) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM bank_transactions WHERE tenant_id = ? ORDER BY posted_at, id`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.BankTransaction
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *transaction)
	}

	return transactions, rows.Err()
}

// GetTransactionsByExternalIDs returns the tenant's transactions whose
// external ids appear in the given set.
func (q *queries) GetTransactionsByExternalIDs(ctx context.Context, tenantID int64, externalIDs []string) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if len(externalIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(externalIDs)), ",")
	args := make([]any, 0, len(externalIDs)+1)
	args = append(args, tenantID)
	for _, id := range externalIDs {
		args = append(args, id)
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM bank_transactions
		WHERE tenant_id = ? AND external_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by external id: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.BankTransaction
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *transaction)
	}

	return transactions, rows.Err()
}

func scanTransaction(row scanner) (*model.BankTransaction, error) {
	var transaction model.BankTransaction
	var externalID, description sql.NullString
	var amount string

	err := row.Scan(
		&transaction.ID,
		&transaction.TenantID,
		&externalID,
		&transaction.PostedAt,
		&amount,
		&transaction.Currency,
		&description,
		&transaction.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	transaction.ExternalID = externalID.String
	transaction.Description = description.String

	transaction.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}

	return &transaction, nil
}
