package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
)

// Amounts are persisted as decimal strings so no value ever round-trips
// through binary floating point.

const invoiceColumns = `id, tenant_id, invoice_number, vendor_name, amount, currency,
	issue_date, due_date, description, status, matched_transaction_id, created_at`

// CreateInvoice inserts an invoice and returns it with its assigned id.
func (q *queries) CreateInvoice(ctx context.Context, invoice *model.Invoice) (*model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, errors.New("invoice cannot be nil")
	}
	if err := validateID(invoice.TenantID, "tenantID"); err != nil {
		return nil, err
	}

	status := invoice.Status
	if status == "" {
		status = model.InvoiceStatusOpen
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO invoices (
			tenant_id, invoice_number, vendor_name, amount, currency,
			issue_date, due_date, description, status, matched_transaction_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.TenantID,
		nullString(invoice.InvoiceNumber),
		nullString(invoice.VendorName),
		invoice.Amount.String(),
		invoice.Currency,
		nullTime(invoice.IssueDate),
		nullTime(invoice.DueDate),
		nullString(invoice.Description),
		string(status),
		invoice.MatchedTransactionID,
	)
	if err != nil {
		if errors.Is(wrapConstraintErr(err), common.ErrDuplicateEntry) {
			return nil, common.NewConflictError(
				"invoice with number %q already exists for this tenant", invoice.InvoiceNumber)
		}
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice id: %w", err)
	}

	return q.GetInvoice(ctx, id, invoice.TenantID)
}

// GetInvoice fetches an invoice by id within the tenant scope.
func (q *queries) GetInvoice(ctx context.Context, id, tenantID int64) (*model.Invoice, error) {
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
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ? AND tenant_id = ?`,
		id, tenantID)

	invoice, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewNotFoundError("invoice", "invoice with id %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return invoice, nil
}

// ListInvoices returns all invoices for a tenant ordered by id.
func (q *queries) ListInvoices(ctx context.Context, tenantID int64) ([]model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = ? ORDER BY id`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invoices []model.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *invoice)
	}

	return invoices, rows.Err()
}

// InvoiceNumberExists reports whether the tenant already has an invoice with
// the given number.
func (q *queries) InvoiceNumberExists(ctx context.Context, tenantID int64, invoiceNumber string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return false, err
	}
	if err := validateString(invoiceNumber, "invoiceNumber"); err != nil {
		return false, err
	}

	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM invoices WHERE tenant_id = ? AND invoice_number = ?`,
		tenantID, invoiceNumber).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice number: %w", err)
	}

	return count > 0, nil
}

// UpdateInvoice persists invoice mutations: status and the
// matched-transaction back-reference set during match confirmation.
func (q *queries) UpdateInvoice(ctx context.Context, invoice *model.Invoice) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if invoice == nil {
		return errors.New("invoice cannot be nil")
	}
	if err := validateID(invoice.ID, "id"); err != nil {
		return err
	}
	if err := validateID(invoice.TenantID, "tenantID"); err != nil {
		return err
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE invoices
		SET status = ?, matched_transaction_id = ?, description = ?
		WHERE id = ? AND tenant_id = ?`,
		string(invoice.Status),
		invoice.MatchedTransactionID,
		nullString(invoice.Description),
		invoice.ID,
		invoice.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return common.NewNotFoundError("invoice", "invoice with id %d not found", invoice.ID)
	}

	return nil
}

// scanner covers sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (*model.Invoice, error) {
	var invoice model.Invoice
	var invoiceNumber, vendorName, description sql.NullString
	var issueDate, dueDate sql.NullTime
	var matchedTransactionID sql.NullInt64
	var amount string

	err := row.Scan(
		&invoice.ID,
		&invoice.TenantID,
		&invoiceNumber,
		&vendorName,
		&amount,
		&invoice.Currency,
		&issueDate,
		&dueDate,
		&description,
		&invoice.Status,
		&matchedTransactionID,
		&invoice.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	invoice.InvoiceNumber = invoiceNumber.String
	invoice.VendorName = vendorName.String
	invoice.Description = description.String
	if issueDate.Valid {
		t := issueDate.Time
		invoice.IssueDate = &t
	}
	if dueDate.Valid {
		t := dueDate.Time
		invoice.DueDate = &t
	}
	if matchedTransactionID.Valid {
		v := matchedTransactionID.Int64
		invoice.MatchedTransactionID = &v
	}

	invoice.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}

	return &invoice, nil
}
