package interfaces

import "context"

// Embedder maps text to a model.EmbeddingDimension vector. Output is
// assumed deterministic for identical input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
