package engine

import (
	"context"

	"github.com/recountlabs/recount/internal/ai"
)

// Explainer generates a natural-language gloss for a proposed match.
// Implementations surface common.ErrExplainerDisabled when enrichment is
// switched off and common.ErrMaxRetries when the retry budget runs out.
type Explainer interface {
	Generate(ctx context.Context, payload ai.Context) (ai.Explanation, error)
}
