// Package embedding provides interfaces.Embedder implementations.
package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
)

// checkDimension rejects vectors the vector indexes cannot hold.
func checkDimension(v []float32, provider string) ([]float32, error) {
	if !model.IsUsableEmbedding(v) {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "unexpected embedding dimension",
			goerr.V("provider", provider),
			goerr.V("expected", model.EmbeddingDimension),
			goerr.V("actual", len(v)))
	}
	return v, nil
}

// Disabled is used when no embedding provider is configured. Every call
// fails with model.ErrEmbeddingUnavailable, so events are stored without
// embeddings and search returns nothing.
type Disabled struct{}

var _ interfaces.Embedder = Disabled{}

func (Disabled) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "no embedding provider configured")
}
