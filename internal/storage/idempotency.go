package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
)

// GetIdempotencyRecord returns the non-expired record for (key, tenant), or
// (nil, nil) when absent. Records past their expiry are logically absent.
func (q *queries) GetIdempotencyRecord(ctx context.Context, key string, tenantID int64, now time.Time) (*model.IdempotencyRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(key, "key"); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	var record model.IdempotencyRecord
	var body []byte
	err := q.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, tenant_id, endpoint, request_payload_hash,
			response_body, response_status_code, created_at, expires_at
		FROM idempotency_records
		WHERE idempotency_key = ? AND tenant_id = ? AND expires_at > ?`,
		key, tenantID, now).
		Scan(
			&record.ID,
			&record.Key,
			&record.TenantID,
			&record.Endpoint,
			&record.RequestPayloadHash,
			&body,
			&record.ResponseStatusCode,
			&record.CreatedAt,
			&record.ExpiresAt,
		)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	record.ResponseBody = body
	return &record, nil
}

// CreateIdempotencyRecord inserts a record before the protected operation
// runs so concurrent duplicates observe it. A (key, tenant) collision
// yields common.ErrDuplicateEntry for the guard to resolve.
func (q *queries) CreateIdempotencyRecord(ctx context.Context, record *model.IdempotencyRecord) (*model.IdempotencyRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.New("record cannot be nil")
	}
	if err := validateString(record.Key, "key"); err != nil {
		return nil, err
	}
	if err := validateID(record.TenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(record.RequestPayloadHash, "requestPayloadHash"); err != nil {
		return nil, err
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (
			idempotency_key, tenant_id, endpoint, request_payload_hash,
			response_body, response_status_code, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Key,
		record.TenantID,
		record.Endpoint,
		record.RequestPayloadHash,
		record.ResponseBody,
		record.ResponseStatusCode,
		record.ExpiresAt,
	)
	if err != nil {
		return nil, wrapConstraintErr(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency record id: %w", err)
	}

	created := *record
	created.ID = id
	return &created, nil
}

// UpdateIdempotencyResponse caches the protected operation's response for
// replay on retries.
func (q *queries) UpdateIdempotencyResponse(ctx context.Context, key string, tenantID int64, body []byte, statusCode int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return err
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET response_body = ?, response_status_code = ?
		WHERE idempotency_key = ? AND tenant_id = ?`,
		body, statusCode, key, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update idempotency response: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return common.NewNotFoundError("idempotency record",
			"idempotency record for key %q not found", key)
	}

	return nil
}

// DeleteIdempotencyRecord removes the record for (key, tenant). Deleting a
// record that does not exist is not an error.
func (q *queries) DeleteIdempotencyRecord(ctx context.Context, key string, tenantID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return err
	}

	_, err := q.db.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE idempotency_key = ? AND tenant_id = ?`,
		key, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}

	return nil
}

// DeleteExpiredIdempotencyRecords reaps every record past its expiry and
// returns the number deleted.
func (q *queries) DeleteExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	res, err := q.db.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired idempotency records: %w", err)
	}

	return res.RowsAffected()
}
