package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/recountlabs/recount/internal/cli"
	"github.com/recountlabs/recount/internal/ingest"
)

// importSummary is the cached response body for idempotent imports.
type importSummary struct {
	IDs      []int64 `json:"ids"`
	Imported int     `json:"imported"`
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import invoices and bank transactions",
		Long: `Import invoices or bank transactions for a tenant.

Invoices are read from a JSON file. Transactions are read from JSON or
from OFX/QFX files exported by a bank. Every import is guarded by an
idempotency key so a retried command never double-inserts a batch.`,
	}

	cmd.PersistentFlags().Int64P("tenant", "t", 0, "tenant ID to import into (required)")
	cmd.PersistentFlags().String("idempotency-key", "", "idempotency key for this import (auto-generated when empty)")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(importInvoicesCmd())
	cmd.AddCommand(importTransactionsCmd())

	return cmd
}

func importInvoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoices <file.json>",
		Short: "Import invoices from a JSON file",
		Long: `Import invoices from a JSON file containing an array of objects:

  [{"invoice_number": "INV-001", "vendor_name": "Acme",
    "amount": 1200, "currency": "USD",
    "issue_date": "2024-01-15", "due_date": 1708041600}]

Date fields accept Unix timestamps in seconds or milliseconds as well
as ISO date strings. Amounts must be positive whole numbers.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportInvoices,
	}
}

func runImportInvoices(cmd *cobra.Command, args []string) error {
	tenantID, _ := cmd.Flags().GetInt64("tenant")
	key := importKey(cmd)

	payload, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var items []ingest.InvoiceImportItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	importer := ingest.NewImporter(app.storage)

	resp, err := app.guard.Execute(cmd.Context(), key, tenantID, "import/invoices", payload,
		func(ctx context.Context) ([]byte, int, error) {
			invoices, importErr := importer.ImportInvoices(ctx, tenantID, items)
			if importErr != nil {
				return nil, 0, importErr
			}
			summary := importSummary{Imported: len(invoices)}
			for i := range invoices {
				summary.IDs = append(summary.IDs, invoices[i].ID)
			}
			body, marshalErr := json.Marshal(summary)
			return body, 200, marshalErr
		})
	if err != nil {
		return err
	}

	return printImportResult(cmd, "invoices", key, resp.Body, resp.Replayed)
}

func importTransactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions <files...>",
		Short: "Import bank transactions from JSON or OFX/QFX files",
		Long: `Import bank transactions for a tenant.

JSON files contain an array of objects:

  [{"external_id": "TXN-9", "amount": "1200.00", "currency": "USD",
    "description": "ACME INVOICE INV-001", "posted_at": 1705276800}]

Files ending in .ofx or .qfx are parsed as bank exports instead.
Multiple files are combined into a single idempotent batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportTransactions,
	}

	return cmd
}

func runImportTransactions(cmd *cobra.Command, args []string) error {
	tenantID, _ := cmd.Flags().GetInt64("tenant")
	key := importKey(cmd)

	items, payload, err := collectTransactionItems(args)
	if err != nil {
		return err
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	importer := ingest.NewImporter(app.storage)

	resp, err := app.guard.Execute(cmd.Context(), key, tenantID, "import/transactions", payload,
		func(ctx context.Context) ([]byte, int, error) {
			transactions, importErr := importer.ImportTransactions(ctx, tenantID, items)
			if importErr != nil {
				return nil, 0, importErr
			}
			summary := importSummary{Imported: len(transactions)}
			for i := range transactions {
				summary.IDs = append(summary.IDs, transactions[i].ID)
			}
			body, marshalErr := json.Marshal(summary)
			return body, 200, marshalErr
		})
	if err != nil {
		return err
	}

	return printImportResult(cmd, "transactions", key, resp.Body, resp.Replayed)
}

// collectTransactionItems reads every input file and returns the combined
// batch plus the concatenated file contents used as the idempotency payload.
func collectTransactionItems(paths []string) ([]ingest.TransactionImportItem, []byte, error) {
	var items []ingest.TransactionImportItem
	var payload []byte

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Reading files..."),
	)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		payload = append(payload, data...)

		switch strings.ToLower(filepath.Ext(path)) {
		case ".ofx", ".qfx":
			parsed, err := ingest.ParseOFX(bytes.NewReader(data))
			if err != nil {
				return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			items = append(items, parsed...)
		default:
			var parsed []ingest.TransactionImportItem
			if err := json.Unmarshal(data, &parsed); err != nil {
				return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			items = append(items, parsed...)
		}

		_ = bar.Add(1)
	}
	_ = bar.Finish()

	return items, payload, nil
}

// importKey returns the operator-supplied idempotency key or mints one.
func importKey(cmd *cobra.Command) string {
	key, _ := cmd.Flags().GetString("idempotency-key")
	if key == "" {
		key = uuid.NewString()
		slog.Debug("Generated idempotency key", "key", key)
	}
	return key
}

func printImportResult(cmd *cobra.Command, kind, key string, body []byte, replayed bool) error {
	var summary importSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return fmt.Errorf("failed to decode import summary: %w", err)
	}

	if replayed {
		cmd.Println(cli.WarningStyle.Render(
			fmt.Sprintf("Replayed cached result for idempotency key %s", key)))
	}
	cmd.Println(cli.SuccessStyle.Render(
		fmt.Sprintf("Imported %d %s", summary.Imported, kind)))
	return nil
}
