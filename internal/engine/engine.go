// Package engine implements the reconciliation core: candidate generation,
// the match-confirmation state machine and explanation enrichment.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
	"github.com/recountlabs/recount/internal/scoring"
	"github.com/recountlabs/recount/internal/service"
)

// Defaults for candidate ranking.
var (
	DefaultTop      = 5
	DefaultMinScore = decimal.NewFromInt(60)
)

// Engine orchestrates reconciliation runs, match confirmation and match
// explanation. It holds no mutable state of its own: every invocation is a
// fresh read-compute-write cycle against storage.
type Engine struct {
	storage   service.Storage
	explainer Explainer
	now       func() time.Time
}

// New creates a reconciliation engine. The explainer may be nil when AI
// enrichment is not configured.
func New(storage service.Storage, explainer Explainer) *Engine {
	return &Engine{
		storage:   storage,
		explainer: explainer,
		now:       time.Now,
	}
}

// ReconciliationResult reports one reconciliation run. Total counts every
// proposed match for the tenant; Returned counts only the candidates that
// met the score bar and fit in the page.
type ReconciliationResult struct {
	Candidates []model.Match
	Total      int
	Returned   int
}

// Reconcile scores every unmatched invoice against the tenant's bank
// transactions, persists scored pairs as proposed matches, and returns the
// ranked candidates.
//
// Re-running on an unchanged dataset is idempotent: duplicate pairs are
// absorbed by the uniqueness constraint, never escalated. The pairwise scan
// is O(invoices x transactions) on purpose; unmatched working sets per
// tenant are expected to stay small.
func (e *Engine) Reconcile(ctx context.Context, tenantID int64, top int, minScore decimal.Decimal) (*ReconciliationResult, error) {
	if top <= 0 {
		top = DefaultTop
	}
	if minScore.IsNegative() {
		return nil, common.NewValidationError("min score cannot be negative, got %s", minScore)
	}

	if _, err := e.storage.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	invoices, err := e.storage.ListInvoices(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoices: %w", err)
	}

	unmatched := make([]model.Invoice, 0, len(invoices))
	for i := range invoices {
		if invoices[i].Unmatched() {
			unmatched = append(unmatched, invoices[i])
		}
	}

	if len(unmatched) == 0 {
		slog.Info("No unmatched invoices, skipping reconciliation", "tenant_id", tenantID)
		return &ReconciliationResult{Candidates: []model.Match{}}, nil
	}

	// Transactions carry no matched state of their own: one may be scored
	// against several invoices before any match is confirmed.
	transactions, err := e.storage.ListTransactions(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	slog.Info("Starting reconciliation run",
		"tenant_id", tenantID,
		"unmatched_invoices", len(unmatched),
		"transactions", len(transactions))

	proposed := 0
	for i := range unmatched {
		invoice := &unmatched[i]

		// Guard against a confirmation racing this run. The check is
		// invoice-invariant, so it runs once per invoice rather than once
		// per pair.
		confirmed, err := e.storage.GetConfirmedMatchForInvoice(ctx, invoice.ID, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to check confirmed match: %w", err)
		}
		if confirmed != nil {
			continue
		}

		for j := range transactions {
			transaction := &transactions[j]
			result := scoring.Score(invoice, transaction, invoice.VendorName)
			if !result.Score.IsPositive() {
				// Score-zero pairs (amount mismatches) are not matches and
				// are never persisted.
				continue
			}

			_, err := e.storage.CreateMatch(ctx, &model.Match{
				TenantID:      tenantID,
				InvoiceID:     invoice.ID,
				TransactionID: transaction.ID,
				Score:         result.Score,
				Status:        model.MatchStatusProposed,
				Reason:        result.Reason,
			})
			if errors.Is(err, common.ErrDuplicateEntry) {
				// Pair already proposed in a previous run.
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to persist proposed match: %w", err)
			}
			proposed++
		}
	}

	candidates, total, err := e.storage.GetProposedCandidates(ctx, tenantID, top, minScore)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	if candidates == nil {
		candidates = []model.Match{}
	}

	slog.Info("Reconciliation run complete",
		"tenant_id", tenantID,
		"new_proposals", proposed,
		"total_proposed", total,
		"returned", len(candidates))

	return &ReconciliationResult{
		Candidates: candidates,
		Total:      total,
		Returned:   len(candidates),
	}, nil
}

// ConfirmMatch confirms a proposed match and applies its cascading side
// effects in one transactional unit: the invoice flips to matched with a
// back-reference to the transaction, and every competing proposed match for
// the invoice is rejected.
//
// Confirming a match that is already confirmed is a no-op returning the
// match unchanged, so retried confirmations stay safe. Confirming when a
// different match already won yields a conflict identifying the winning
// transaction.
func (e *Engine) ConfirmMatch(ctx context.Context, matchID, tenantID int64) (*model.Match, error) {
	match, err := e.storage.GetMatch(ctx, matchID, tenantID)
	if err != nil {
		return nil, err
	}

	if match.Status == model.MatchStatusConfirmed {
		return match, nil
	}

	invoice, err := e.storage.GetInvoice(ctx, match.InvoiceID, tenantID)
	if err != nil {
		return nil, err
	}

	existing, err := e.storage.GetConfirmedMatchForInvoice(ctx, match.InvoiceID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to check confirmed match: %w", err)
	}
	if existing != nil && existing.ID != matchID {
		return nil, common.NewConflictError(
			"invoice already matched to transaction %d", existing.TransactionID)
	}

	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := e.now().UTC()
	confirmed, err := tx.UpdateMatchStatus(ctx, matchID, tenantID, model.MatchStatusConfirmed, &now)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm match: %w", err)
	}

	invoice.MarkMatched(confirmed.TransactionID)
	if err := tx.UpdateInvoice(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}

	siblings, err := tx.GetMatchesByInvoice(ctx, invoice.ID, tenantID, model.MatchStatusProposed)
	if err != nil {
		return nil, fmt.Errorf("failed to load sibling matches: %w", err)
	}
	rejected := 0
	for i := range siblings {
		if siblings[i].ID == matchID {
			continue
		}
		if _, err := tx.UpdateMatchStatus(ctx, siblings[i].ID, tenantID, model.MatchStatusRejected, nil); err != nil {
			return nil, fmt.Errorf("failed to reject sibling match %d: %w", siblings[i].ID, err)
		}
		rejected++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	slog.Info("Match confirmed",
		"tenant_id", tenantID,
		"match_id", matchID,
		"invoice_id", invoice.ID,
		"transaction_id", confirmed.TransactionID,
		"rejected_siblings", rejected)

	return confirmed, nil
}
