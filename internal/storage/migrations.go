package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Tenants, invoices and bank transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS tenants (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS invoices (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					invoice_number TEXT,
					vendor_name TEXT,
					amount TEXT NOT NULL,
					currency TEXT NOT NULL DEFAULT 'USD',
					issue_date DATETIME,
					due_date DATETIME,
					description TEXT,
					status TEXT NOT NULL DEFAULT 'open'
						CHECK (status IN ('open', 'matched', 'paid')),
					matched_transaction_id INTEGER,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_invoices_tenant ON invoices(tenant_id)`,
				`CREATE INDEX idx_invoices_tenant_status ON invoices(tenant_id, status)`,
				`CREATE UNIQUE INDEX idx_invoices_tenant_number
					ON invoices(tenant_id, invoice_number)
					WHERE invoice_number IS NOT NULL`,

				`CREATE TABLE IF NOT EXISTS bank_transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					external_id TEXT,
					posted_at DATETIME NOT NULL,
					amount TEXT NOT NULL,
					currency TEXT NOT NULL DEFAULT 'USD',
					description TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_bank_transactions_tenant ON bank_transactions(tenant_id)`,
				`CREATE UNIQUE INDEX idx_bank_transactions_tenant_external
					ON bank_transactions(tenant_id, external_id)
					WHERE external_id IS NOT NULL`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Match records with pair uniqueness and score ranking",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				// Score is stored scaled by 1e4 so ORDER BY ranks the
				// audited 4-decimal value exactly.
				`CREATE TABLE IF NOT EXISTS matches (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					invoice_id INTEGER NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
					transaction_id INTEGER NOT NULL REFERENCES bank_transactions(id) ON DELETE CASCADE,
					score INTEGER NOT NULL
						CHECK (score >= 0 AND score <= 1000000),
					status TEXT NOT NULL DEFAULT 'proposed'
						CHECK (status IN ('proposed', 'confirmed', 'rejected')),
					reason TEXT,
					confirmed_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE UNIQUE INDEX idx_matches_unique_pair
					ON matches(tenant_id, invoice_id, transaction_id)`,
				`CREATE INDEX idx_matches_tenant_invoice ON matches(tenant_id, invoice_id)`,
				`CREATE INDEX idx_matches_tenant_status_score ON matches(tenant_id, status, score)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Idempotency records with TTL expiry",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS idempotency_records (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					idempotency_key TEXT NOT NULL,
					tenant_id INTEGER NOT NULL,
					endpoint TEXT NOT NULL,
					request_payload_hash TEXT NOT NULL,
					response_body BLOB,
					response_status_code INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					expires_at DATETIME NOT NULL
				)`,
				`CREATE UNIQUE INDEX idx_idempotency_key_tenant
					ON idempotency_records(idempotency_key, tenant_id)`,
				`CREATE INDEX idx_idempotency_expires ON idempotency_records(expires_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending migrations in order.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		slog.Info("Applying migration",
			"version", migration.Version,
			"description", migration.Description)

		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
