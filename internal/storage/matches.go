package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
)

const matchColumns = `id, tenant_id, invoice_id, transaction_id, score, status,
	reason, confirmed_at, created_at`

// scoreToStored scales a 0-100 score to the integer representation ranked
// by SQL. Four decimal places are retained for audit.
func scoreToStored(score decimal.Decimal) int64 {
	return score.Round(4).Shift(4).IntPart()
}

// storedToScore is the inverse of scoreToStored.
func storedToScore(stored int64) decimal.Decimal {
	return decimal.New(stored, -4)
}

// CreateMatch inserts a proposed match. A duplicate (tenant, invoice,
// transaction) pair yields common.ErrDuplicateEntry, which candidate
// generation absorbs as a benign skip.
func (q *queries) CreateMatch(ctx context.Context, match *model.Match) (*model.Match, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if match == nil {
		return nil, errors.New("match cannot be nil")
	}
	if err := validateID(match.TenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateID(match.InvoiceID, "invoiceID"); err != nil {
		return nil, err
	}
	if err := validateID(match.TransactionID, "transactionID"); err != nil {
		return nil, err
	}
	if err := validateScore(match.Score); err != nil {
		return nil, err
	}

	status := match.Status
	if status == "" {
		status = model.MatchStatusProposed
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO matches (
			tenant_id, invoice_id, transaction_id, score, status, reason, confirmed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		match.TenantID,
		match.InvoiceID,
		match.TransactionID,
		scoreToStored(match.Score),
		string(status),
		nullString(match.Reason),
		nullTime(match.ConfirmedAt),
	)
	if err != nil {
		return nil, wrapConstraintErr(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read match id: %w", err)
	}

	return q.GetMatch(ctx, id, match.TenantID)
}

// GetMatch fetches a match by id within the tenant scope.
func (q *queries) GetMatch(ctx context.Context, id, tenantID int64) (*model.Match, error) {
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
		`SELECT `+matchColumns+` FROM matches WHERE id = ? AND tenant_id = ?`,
		id, tenantID)

	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewNotFoundError("match", "match with id %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	return match, nil
}

// GetMatchesByInvoice returns the invoice's matches, optionally filtered by
// status. An empty status returns every state.
func (q *queries) GetMatchesByInvoice(ctx context.Context, invoiceID, tenantID int64, status model.MatchStatus) ([]model.Match, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(invoiceID, "invoiceID"); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + matchColumns + ` FROM matches WHERE tenant_id = ? AND invoice_id = ?`
	args := []any{tenantID, invoiceID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY score DESC, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches by invoice: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectMatches(rows)
}

// GetProposedCandidates returns the tenant's proposed matches with score >=
// minScore, ranked by score descending and truncated to top. The returned
// total deliberately counts ALL proposed matches for the tenant, not just
// those over the bar: callers distinguish "how many exist" from "how many
// are shown".
func (q *queries) GetProposedCandidates(ctx context.Context, tenantID int64, top int, minScore decimal.Decimal) ([]model.Match, int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, 0, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, 0, err
	}
	if top <= 0 {
		return nil, 0, fmt.Errorf("top must be positive, got %d", top)
	}

	var total int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM matches WHERE tenant_id = ? AND status = 'proposed'`,
		tenantID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count proposed matches: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE tenant_id = ? AND status = 'proposed' AND score >= ?
		ORDER BY score DESC, id
		LIMIT ?`,
		tenantID, scoreToStored(minScore), top)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query proposed candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := collectMatches(rows)
	if err != nil {
		return nil, 0, err
	}

	return candidates, total, nil
}

// UpdateMatchStatus transitions a match and returns the updated row.
func (q *queries) UpdateMatchStatus(ctx context.Context, id, tenantID int64, status model.MatchStatus, confirmedAt *time.Time) (*model.Match, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE matches
		SET status = ?, confirmed_at = COALESCE(?, confirmed_at)
		WHERE id = ? AND tenant_id = ?`,
		string(status), nullTime(confirmedAt), id, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to update match status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return nil, common.NewNotFoundError("match", "match with id %d not found", id)
	}

	return q.GetMatch(ctx, id, tenantID)
}

// GetConfirmedMatchForInvoice returns the invoice's confirmed match, or
// (nil, nil) when none exists.
func (q *queries) GetConfirmedMatchForInvoice(ctx context.Context, invoiceID, tenantID int64) (*model.Match, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(invoiceID, "invoiceID"); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE tenant_id = ? AND invoice_id = ? AND status = 'confirmed'`,
		tenantID, invoiceID)

	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmed match: %w", err)
	}

	return match, nil
}

func collectMatches(rows *sql.Rows) ([]model.Match, error) {
	var matches []model.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, *match)
	}
	return matches, rows.Err()
}

func scanMatch(row scanner) (*model.Match, error) {
	var match model.Match
	var reason sql.NullString
	var confirmedAt sql.NullTime
	var stored int64

	err := row.Scan(
		&match.ID,
		&match.TenantID,
		&match.InvoiceID,
		&match.TransactionID,
		&stored,
		&match.Status,
		&reason,
		&confirmedAt,
		&match.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	match.Score = storedToScore(stored)
	match.Reason = reason.String
	if confirmedAt.Valid {
		t := confirmedAt.Time
		match.ConfirmedAt = &t
	}

	return &match, nil
}
