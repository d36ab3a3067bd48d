package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/utils/safe"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "all-minilm"
)

// Ollama embeds text with a local Ollama server.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ interfaces.Embedder = &Ollama{}

type OllamaOption func(*Ollama)

func WithOllamaModel(name string) OllamaOption {
	return func(o *Ollama) {
		o.model = name
	}
}

func WithHTTPClient(client *http.Client) OllamaOption {
	return func(o *Ollama) {
		o.httpClient = client
	}
}

func NewOllama(baseURL string, opts ...OllamaOption) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	o := &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      DefaultOllamaModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal ollama request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create ollama request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "ollama request failed",
			goerr.V("url", o.baseURL), goerr.V("cause", err.Error()))
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "ollama returned an error",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(msg)))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "failed to decode ollama response",
			goerr.V("cause", err.Error()))
	}

	result := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		result[i] = float32(v)
	}
	return checkDimension(result, "ollama")
}
