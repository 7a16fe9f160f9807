package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
)

// CreateTenant inserts a tenant. Tenant names are unique; a duplicate is a
// caller-visible conflict rather than a benign skip.
func (q *queries) CreateTenant(ctx context.Context, name string) (*model.Tenant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO tenants (name, active) VALUES (?, 1)`, name)
	if err != nil {
		if errors.Is(wrapConstraintErr(err), common.ErrDuplicateEntry) {
			return nil, common.NewConflictError("tenant with name %q already exists", name)
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant id: %w", err)
	}

	return q.GetTenant(ctx, id)
}

// GetTenant fetches a tenant by id.
func (q *queries) GetTenant(ctx context.Context, id int64) (*model.Tenant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	var tenant model.Tenant
	var active int
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, active, created_at FROM tenants WHERE id = ?`, id).
		Scan(&tenant.ID, &tenant.Name, &active, &tenant.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewNotFoundError("tenant", "tenant with id %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	tenant.Active = active != 0
	return &tenant, nil
}

// ListTenants returns all tenants ordered by id.
func (q *queries) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, active, created_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []model.Tenant
	for rows.Next() {
		var tenant model.Tenant
		var active int
		if err := rows.Scan(&tenant.ID, &tenant.Name, &active, &tenant.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenant.Active = active != 0
		tenants = append(tenants, tenant)
	}

	return tenants, rows.Err()
}
