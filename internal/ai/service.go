package ai

import (
	"context"
	"log/slog"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/service"
)

// Service wraps a Client with the retry policy applied at the enrichment
// boundary: bounded attempts, exponential backoff, and an overall
// wall-clock budget spanning all attempts.
type Service struct {
	client Client
	opts   service.RetryOptions
}

// NewService creates a retry-wrapped explanation service.
func NewService(client Client, opts service.RetryOptions) *Service {
	return &Service{client: client, opts: opts}
}

// Generate produces an explanation, retrying transient failures until the
// attempt or deadline budget is exhausted. Exhaustion surfaces
// common.ErrMaxRetries; non-retryable failures abort immediately.
func (s *Service) Generate(ctx context.Context, payload Context) (Explanation, error) {
	if s == nil || s.client == nil {
		return Explanation{}, common.ErrExplainerDisabled
	}

	var explanation Explanation
	err := common.WithRetry(ctx, func(attemptCtx context.Context) error {
		result, genErr := s.client.Generate(attemptCtx, payload)
		if genErr != nil {
			return genErr
		}
		explanation = result
		return nil
	}, s.opts)
	if err != nil {
		slog.Debug("Explanation generation failed",
			"invoice_id", payload.Invoice.ID,
			"transaction_id", payload.Transaction.ID,
			"error", err)
		return Explanation{}, err
	}

	return explanation, nil
}
