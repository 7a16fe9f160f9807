// Package ai generates natural-language match explanations through an
// external LLM. Enrichment is strictly additive: callers degrade to the
// heuristic reason whenever this package fails.
package ai

import (
	"context"
)

// Client defines the interface for explanation providers.
type Client interface {
	Generate(ctx context.Context, payload Context) (Explanation, error)
}

// Context carries the structured match details sent to the model.
type Context struct {
	Invoice     InvoiceContext     `json:"invoice"`
	Transaction TransactionContext `json:"transaction"`
	Match       MatchContext       `json:"match"`
}

// InvoiceContext is the invoice slice of the explanation payload.
type InvoiceContext struct {
	ID          int64  `json:"id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	IssueDate   string `json:"issue_date,omitempty"`
	Number      string `json:"invoice_number,omitempty"`
	VendorName  string `json:"vendor_name,omitempty"`
	Description string `json:"description,omitempty"`
}

// TransactionContext is the bank-transaction slice of the explanation payload.
type TransactionContext struct {
	ID          int64  `json:"id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PostedAt    string `json:"posted_at"`
	ExternalID  string `json:"external_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// MatchContext is the heuristic-score slice of the explanation payload.
type MatchContext struct {
	Score  string `json:"score"`
	Reason string `json:"reason"`
}

// Explanation is a validated provider response.
type Explanation struct {
	Explanation string
	Confidence  int
}

// Config holds provider configuration.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}
