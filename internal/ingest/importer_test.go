package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
	"github.com/recountlabs/recount/internal/storage"
)

func newTestImporter(t *testing.T) (*Importer, *storage.SQLiteStorage, int64) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	tenant, err := store.CreateTenant(ctx, "acme")
	if err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}

	return NewImporter(store), store, tenant.ID
}

func boundary(t time.Time) BoundaryTime {
	return BoundaryTime{value: &t}
}

func TestImportInvoices(t *testing.T) {
	importer, store, tenantID := newTestImporter(t)
	ctx := context.Background()

	items := []InvoiceImportItem{
		{
			InvoiceNumber: "INV-001",
			VendorName:    "Acme Corp",
			Amount:        decimal.NewFromInt(1200),
			IssueDate:     boundary(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)),
			DueDate:       boundary(time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)),
		},
		{
			InvoiceNumber: "INV-002",
			Amount:        decimal.NewFromInt(500),
			Currency:      "eur",
		},
	}

	created, err := importer.ImportInvoices(ctx, tenantID, items)
	if err != nil {
		t.Fatalf("ImportInvoices() error = %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("ImportInvoices() created %d invoices, want 2", len(created))
	}

	// Currency defaults to USD and is normalized to upper case.
	if created[0].Currency != "USD" {
		t.Errorf("Invoice currency = %q, want USD", created[0].Currency)
	}
	if created[1].Currency != "EUR" {
		t.Errorf("Invoice currency = %q, want EUR", created[1].Currency)
	}
	if created[0].Status != model.InvoiceStatusOpen {
		t.Errorf("Invoice status = %q, want open", created[0].Status)
	}

	persisted, err := store.ListInvoices(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListInvoices() error = %v", err)
	}
	if len(persisted) != 2 {
		t.Errorf("ListInvoices() = %d rows, want 2", len(persisted))
	}
}

func TestImportInvoicesValidation(t *testing.T) {
	importer, store, tenantID := newTestImporter(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		items   []InvoiceImportItem
		wantErr error
	}{
		{
			name:    "empty batch",
			items:   nil,
			wantErr: common.ErrValidation,
		},
		{
			name: "fractional amount",
			items: []InvoiceImportItem{
				{InvoiceNumber: "INV-001", Amount: decimal.RequireFromString("99.99")},
			},
			wantErr: common.ErrValidation,
		},
		{
			name: "zero amount",
			items: []InvoiceImportItem{
				{InvoiceNumber: "INV-001", Amount: decimal.Zero},
			},
			wantErr: common.ErrValidation,
		},
		{
			name: "negative amount",
			items: []InvoiceImportItem{
				{InvoiceNumber: "INV-001", Amount: decimal.NewFromInt(-10)},
			},
			wantErr: common.ErrValidation,
		},
		{
			name: "bad currency",
			items: []InvoiceImportItem{
				{InvoiceNumber: "INV-001", Amount: decimal.NewFromInt(10), Currency: "DOLLARS"},
			},
			wantErr: common.ErrValidation,
		},
		{
			name: "due before issue",
			items: []InvoiceImportItem{
				{
					InvoiceNumber: "INV-001",
					Amount:        decimal.NewFromInt(10),
					IssueDate:     boundary(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)),
					DueDate:       boundary(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)),
				},
			},
			wantErr: common.ErrValidation,
		},
		{
			name: "duplicate numbers in batch",
			items: []InvoiceImportItem{
				{InvoiceNumber: "INV-001", Amount: decimal.NewFromInt(10)},
				{InvoiceNumber: "INV-001", Amount: decimal.NewFromInt(20)},
			},
			wantErr: common.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := importer.ImportInvoices(ctx, tenantID, tt.items)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ImportInvoices() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Failed batches leave nothing behind.
	persisted, err := store.ListInvoices(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListInvoices() error = %v", err)
	}
	if len(persisted) != 0 {
		t.Errorf("ListInvoices() = %d rows after failed imports, want 0", len(persisted))
	}
}

func TestImportInvoicesConflictsWithExisting(t *testing.T) {
	importer, _, tenantID := newTestImporter(t)
	ctx := context.Background()

	_, err := importer.ImportInvoices(ctx, tenantID, []InvoiceImportItem{
		{InvoiceNumber: "INV-001", Amount: decimal.NewFromInt(100)},
	})
	if err != nil {
		t.Fatalf("ImportInvoices() error = %v", err)
	}

	_, err = importer.ImportInvoices(ctx, tenantID, []InvoiceImportItem{
		{InvoiceNumber: "INV-001", Amount: decimal.NewFromInt(200)},
	})
	if !errors.Is(err, common.ErrConflict) {
		t.Errorf("ImportInvoices() duplicate error = %v, want ErrConflict", err)
	}
}

func TestImportInvoicesUnknownTenant(t *testing.T) {
	importer, _, _ := newTestImporter(t)

	_, err := importer.ImportInvoices(context.Background(), 999, []InvoiceImportItem{
		{InvoiceNumber: "INV-001", Amount: decimal.NewFromInt(100)},
	})
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("ImportInvoices() error = %v, want ErrNotFound", err)
	}
}

func TestImportTransactions(t *testing.T) {
	importer, store, tenantID := newTestImporter(t)
	ctx := context.Background()

	items := []TransactionImportItem{
		{
			ExternalID:  "BK-1",
			Amount:      decimal.RequireFromString("1200.00"),
			Description: "ACH payment INV-001",
			PostedAt:    boundary(time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC)),
		},
		{
			// Refunds come in negative and are legal.
			ExternalID: "BK-2",
			Amount:     decimal.RequireFromString("-45.50"),
			Currency:   "usd",
			PostedAt:   boundary(time.Date(2024, time.January, 17, 0, 0, 0, 0, time.UTC)),
		},
	}

	created, err := importer.ImportTransactions(ctx, tenantID, items)
	if err != nil {
		t.Fatalf("ImportTransactions() error = %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("ImportTransactions() created %d transactions, want 2", len(created))
	}
	if !created[1].Amount.Equal(decimal.RequireFromString("-45.50")) {
		t.Errorf("Transaction amount = %s, want -45.50", created[1].Amount)
	}

	persisted, err := store.ListTransactions(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(persisted) != 2 {
		t.Errorf("ListTransactions() = %d rows, want 2", len(persisted))
	}
}

func TestImportTransactionsValidation(t *testing.T) {
	importer, _, tenantID := newTestImporter(t)
	ctx := context.Background()
	posted := boundary(time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name  string
		items []TransactionImportItem
	}{
		{
			name:  "empty batch",
			items: nil,
		},
		{
			name: "missing posted_at",
			items: []TransactionImportItem{
				{ExternalID: "BK-1", Amount: decimal.NewFromInt(10)},
			},
		},
		{
			name: "too many decimal places",
			items: []TransactionImportItem{
				{ExternalID: "BK-1", Amount: decimal.RequireFromString("10.123"), PostedAt: posted},
			},
		},
		{
			name: "duplicate external ids in batch",
			items: []TransactionImportItem{
				{ExternalID: "BK-1", Amount: decimal.NewFromInt(10), PostedAt: posted},
				{ExternalID: "BK-1", Amount: decimal.NewFromInt(20), PostedAt: posted},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := importer.ImportTransactions(ctx, tenantID, tt.items)
			if !errors.Is(err, common.ErrValidation) {
				t.Errorf("ImportTransactions() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestImportTransactionsConflictNamesExternalIDs(t *testing.T) {
	importer, _, tenantID := newTestImporter(t)
	ctx := context.Background()
	posted := boundary(time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))

	_, err := importer.ImportTransactions(ctx, tenantID, []TransactionImportItem{
		{ExternalID: "BK-1", Amount: decimal.NewFromInt(10), PostedAt: posted},
		{ExternalID: "BK-2", Amount: decimal.NewFromInt(20), PostedAt: posted},
	})
	if err != nil {
		t.Fatalf("ImportTransactions() error = %v", err)
	}

	_, err = importer.ImportTransactions(ctx, tenantID, []TransactionImportItem{
		{ExternalID: "BK-2", Amount: decimal.NewFromInt(20), PostedAt: posted},
		{ExternalID: "BK-3", Amount: decimal.NewFromInt(30), PostedAt: posted},
	})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("ImportTransactions() error = %v, want ErrConflict", err)
	}
	if !strings.Contains(err.Error(), "BK-2") {
		t.Errorf("Conflict error %q should name the colliding external id", err)
	}
}
