package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/ai"
	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
)

// ExplanationSource identifies where a match explanation came from.
type ExplanationSource string

// Explanation sources. "ai" means the enricher answered; "heuristic" means
// enrichment is disabled or absent; "fallback" means the enricher was tried
// and failed.
const (
	SourceAI        ExplanationSource = "ai"
	SourceHeuristic ExplanationSource = "heuristic"
	SourceFallback  ExplanationSource = "fallback"
)

// MatchExplanation bundles the heuristic audit trail with the optional AI
// gloss. The heuristic fields are always populated from the match record;
// the AI fields are strictly additive.
type MatchExplanation struct {
	AIExplanation   *string
	AIConfidence    *int
	AIErrorMessage  *string
	HeuristicReason string
	Source          ExplanationSource
	HeuristicScore  decimal.Decimal
}

// ExplainMatch builds the explanation bundle for a match. Enrichment
// failures never surface as errors: they degrade to the heuristic reason
// with the failure recorded as metadata.
func (e *Engine) ExplainMatch(ctx context.Context, matchID, tenantID int64) (*MatchExplanation, error) {
	match, err := e.storage.GetMatch(ctx, matchID, tenantID)
	if err != nil {
		return nil, err
	}

	invoice, err := e.storage.GetInvoice(ctx, match.InvoiceID, tenantID)
	if err != nil {
		return nil, err
	}

	transaction, err := e.storage.GetTransaction(ctx, match.TransactionID, tenantID)
	if err != nil {
		return nil, err
	}

	heuristicReason := match.Reason
	if heuristicReason == "" {
		heuristicReason = "Amount and date match"
	}

	explanation := &MatchExplanation{
		HeuristicReason: heuristicReason,
		HeuristicScore:  match.Score,
		Source:          SourceHeuristic,
	}

	if e.explainer == nil {
		return explanation, nil
	}

	result, err := e.explainer.Generate(ctx, buildContext(match, invoice, transaction))
	switch {
	case errors.Is(err, common.ErrExplainerDisabled):
		// Disabled enrichment is not a failure.
	case err != nil:
		msg := err.Error()
		explanation.AIErrorMessage = &msg
		explanation.Source = SourceFallback
		slog.Warn("Explanation enrichment failed, falling back to heuristic",
			"tenant_id", tenantID,
			"match_id", matchID,
			"error", err)
	default:
		explanation.AIExplanation = &result.Explanation
		explanation.AIConfidence = &result.Confidence
		explanation.Source = SourceAI
	}

	return explanation, nil
}

func buildContext(match *model.Match, invoice *model.Invoice, transaction *model.BankTransaction) ai.Context {
	payload := ai.Context{
		Invoice: ai.InvoiceContext{
			ID:          invoice.ID,
			Amount:      invoice.Amount.String(),
			Currency:    invoice.Currency,
			Number:      invoice.InvoiceNumber,
			VendorName:  invoice.VendorName,
			Description: invoice.Description,
		},
		Transaction: ai.TransactionContext{
			ID:          transaction.ID,
			Amount:      transaction.Amount.String(),
			Currency:    transaction.Currency,
			PostedAt:    transaction.PostedAt.UTC().Format(time.RFC3339),
			ExternalID:  transaction.ExternalID,
			Description: transaction.Description,
		},
		Match: ai.MatchContext{
			Score:  match.Score.String(),
			Reason: match.Reason,
		},
	}

	if invoice.IssueDate != nil {
		payload.Invoice.IssueDate = invoice.IssueDate.UTC().Format("2006-01-02")
	}

	return payload
}
