package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/service/embedding"
	"github.com/urfave/cli/v3"
)

// Embedding selects and configures the embedding provider
type Embedding struct {
	provider       string
	geminiProject  string
	geminiLocation string
	ollamaURL      string
	ollamaModel    string
}

// Flags returns CLI flags for embedding configuration
func (e *Embedding) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider [gemini|ollama|none]",
			Value:       "gemini",
			Category:    "Embedding",
			Sources:     cli.EnvVars("SYNAPSE_EMBEDDING_PROVIDER"),
			Destination: &e.provider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Category:    "Embedding",
			Sources:     cli.EnvVars("SYNAPSE_GEMINI_PROJECT"),
			Destination: &e.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Value:       "us-central1",
			Category:    "Embedding",
			Sources:     cli.EnvVars("SYNAPSE_GEMINI_LOCATION"),
			Destination: &e.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "ollama-url",
			Usage:       "Ollama server URL",
			Value:       embedding.DefaultOllamaURL,
			Category:    "Embedding",
			Sources:     cli.EnvVars("SYNAPSE_OLLAMA_URL"),
			Destination: &e.ollamaURL,
		},
		&cli.StringFlag{
			Name:        "ollama-model",
			Usage:       "Ollama embedding model, must produce 384 dimensions",
			Value:       embedding.DefaultOllamaModel,
			Category:    "Embedding",
			Sources:     cli.EnvVars("SYNAPSE_OLLAMA_MODEL"),
			Destination: &e.ollamaModel,
		},
	}
}

// LogAttrs returns log attributes for the embedding configuration
func (e *Embedding) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", e.provider),
		slog.String("gemini_project", e.geminiProject),
		slog.String("gemini_location", e.geminiLocation),
		slog.String("ollama_url", e.ollamaURL),
		slog.String("ollama_model", e.ollamaModel),
	}
}

// Configure builds the embedder. Provider "none" disables embeddings: events
// are stored with embedding_missing and search returns nothing.
func (e *Embedding) Configure(ctx context.Context) (interfaces.Embedder, error) {
	switch e.provider {
	case "gemini":
		if e.geminiProject == "" {
			return nil, goerr.Wrap(model.ErrConfiguration, "gemini-project is required for the gemini embedding provider")
		}
		client, err := gemini.New(ctx, e.geminiProject, e.geminiLocation)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		embedder, err := embedding.NewGemini(client)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini embedder")
		}
		return embedder, nil

	case "ollama":
		if e.ollamaURL == "" {
			return nil, goerr.Wrap(model.ErrConfiguration, "ollama-url is required for the ollama embedding provider")
		}
		return embedding.NewOllama(e.ollamaURL, embedding.WithOllamaModel(e.ollamaModel)), nil

	case "none", "":
		return embedding.Disabled{}, nil

	default:
		return nil, goerr.Wrap(model.ErrConfiguration, "invalid embedding provider", goerr.V("provider", e.provider))
	}
}
