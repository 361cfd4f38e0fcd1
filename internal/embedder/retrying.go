package embedder

import (
	"context"
	"errors"

	"github.com/54b3r/paperqa-go/internal/rag"
	"github.com/54b3r/paperqa-go/internal/retry"
)

// Retrying wraps a rag.Embedder with the shared retry policy. Failures that
// survive the retries surface as *rag.ProviderUnavailableError.
type Retrying struct {
	next   rag.Embedder
	policy retry.Config
}

// WithRetry wraps next with policy.
func WithRetry(next rag.Embedder, policy retry.Config) *Retrying {
	return &Retrying{next: next, policy: policy}
}

// Embed implements rag.Embedder.
func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := retry.Do(ctx, r.policy, "embed", func(ctx context.Context) ([][]float32, error) {
		return r.next.Embed(ctx, texts)
	})
	if err == nil {
		return vecs, nil
	}
	// The caller going away is not a provider outage.
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil, err
	}
	return nil, &rag.ProviderUnavailableError{Provider: "embedding", Err: err}
}
