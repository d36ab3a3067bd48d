package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
)

// EmbeddingClient is the part of gollem.LLMClient used here.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

// Gemini embeds text through a gollem LLM client.
type Gemini struct {
	client EmbeddingClient
}

var _ interfaces.Embedder = &Gemini{}

func NewGemini(client EmbeddingClient) (*Gemini, error) {
	if client == nil {
		return nil, goerr.Wrap(model.ErrConfiguration, "LLM client is required")
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := g.client.GenerateEmbedding(ctx, model.EmbeddingDimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "failed to generate embedding",
			goerr.V("cause", err.Error()))
	}
	if len(embeddings) == 0 {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "no embedding returned")
	}

	// Convert float64 to float32
	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}

	return checkDimension(result, "gemini")
}
