package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/synapse/pkg/cli/config"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/repository/memory"
	"github.com/secmon-lab/synapse/pkg/repository/sqlite"
	"github.com/secmon-lab/synapse/pkg/service/embedding"
)

func TestRepository_Configure(t *testing.T) {
	t.Run("memory backend", func(t *testing.T) {
		store, err := config.NewRepositoryForTest("memory", "", "").Configure(t.Context())
		gt.NoError(t, err).Required()
		_, ok := store.(*memory.Memory)
		gt.Bool(t, ok).True()
		gt.NoError(t, store.Close())
	})

	t.Run("sqlite backend", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "graph.db")
		store, err := config.NewRepositoryForTest("sqlite", "", path).Configure(t.Context())
		gt.NoError(t, err).Required()
		_, ok := store.(*sqlite.SQLite)
		gt.Bool(t, ok).True()
		gt.NoError(t, store.Close())
	})

	t.Run("firestore without project", func(t *testing.T) {
		_, err := config.NewRepositoryForTest("firestore", "", "").Configure(t.Context())
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("sqlite without path", func(t *testing.T) {
		_, err := config.NewRepositoryForTest("sqlite", "", "").Configure(t.Context())
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := config.NewRepositoryForTest("neo4j", "", "").Configure(t.Context())
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("flags", func(t *testing.T) {
		var r config.Repository
		gt.Array(t, r.Flags()).Length(5)
	})
}

func TestEmbedding_Configure(t *testing.T) {
	t.Run("none disables embeddings", func(t *testing.T) {
		e, err := config.NewEmbeddingForTest("none", "", "", "").Configure(t.Context())
		gt.NoError(t, err).Required()
		_, ok := e.(embedding.Disabled)
		gt.Bool(t, ok).True()
	})

	t.Run("ollama", func(t *testing.T) {
		e, err := config.NewEmbeddingForTest("ollama", "", "http://localhost:11434", "all-minilm").Configure(t.Context())
		gt.NoError(t, err).Required()
		_, ok := e.(*embedding.Ollama)
		gt.Bool(t, ok).True()
	})

	t.Run("ollama without url", func(t *testing.T) {
		_, err := config.NewEmbeddingForTest("ollama", "", "", "").Configure(t.Context())
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("gemini without project", func(t *testing.T) {
		_, err := config.NewEmbeddingForTest("gemini", "", "", "").Configure(t.Context())
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := config.NewEmbeddingForTest("openai", "", "", "").Configure(t.Context())
		gt.Error(t, err).Is(model.ErrConfiguration)
	})
}

func TestSlack_Configure(t *testing.T) {
	t.Run("no bot token", func(t *testing.T) {
		svc, err := config.NewSlackForTest("", "", "").Configure()
		gt.NoError(t, err)
		gt.Value(t, svc).Nil()
	})

	t.Run("bot token", func(t *testing.T) {
		svc, err := config.NewSlackForTest("xoxb-test", "", "http://localhost:9999/api/").Configure()
		gt.NoError(t, err)
		gt.Value(t, svc).NotNil()
	})

	t.Run("webhook needs signing secret", func(t *testing.T) {
		gt.Bool(t, config.NewSlackForTest("xoxb-test", "", "").IsWebhookConfigured()).False()
		cfg := config.NewSlackForTest("", "secret", "")
		gt.Bool(t, cfg.IsWebhookConfigured()).True()
		gt.Value(t, cfg.SigningSecret()).Equal("secret")
	})
}

func TestGitHub_Configure(t *testing.T) {
	tests := []struct {
		name           string
		appID          int
		installationID int
		privateKey     string
		want           bool
	}{
		{"all set", 1, 2, "key", true},
		{"missing app id", 0, 2, "key", false},
		{"missing installation", 1, 0, "key", false},
		{"missing key", 1, 2, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewGitHubForTest(tt.appID, tt.installationID, tt.privateKey)
			gt.Value(t, cfg.IsConfigured()).Equal(tt.want)
		})
	}

	t.Run("not configured returns nil", func(t *testing.T) {
		svc, err := config.NewGitHubForTest(0, 0, "").Configure()
		gt.NoError(t, err)
		gt.Value(t, svc).Nil()
	})
}

func TestNotion_Configure(t *testing.T) {
	svc, err := config.NewNotionForTest("").Configure()
	gt.NoError(t, err)
	gt.Value(t, svc).Nil()

	svc, err = config.NewNotionForTest("secret_token").Configure()
	gt.NoError(t, err)
	gt.Value(t, svc).NotNil()
}

func TestSentry_ConfigureWithoutDSN(t *testing.T) {
	flush, err := config.NewSentryForTest("").Configure()
	gt.NoError(t, err).Required()
	flush()
}

func TestLogger_Build(t *testing.T) {
	t.Run("console to stderr", func(t *testing.T) {
		logger, closer, err := config.NewLoggerForTest("debug", "console", "stderr").BuildForTest()
		gt.NoError(t, err).Required()
		gt.Value(t, logger).NotNil()
		closer()
	})

	t.Run("json to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "synapse.log")
		logger, closer, err := config.NewLoggerForTest("info", "json", path).BuildForTest()
		gt.NoError(t, err).Required()
		logger.Info("configured", "backend", "memory")
		closer()

		raw, err := os.ReadFile(path)
		gt.NoError(t, err).Required()
		gt.String(t, string(raw)).Contains(`"backend":"memory"`)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, _, err := config.NewLoggerForTest("verbose", "console", "stderr").BuildForTest()
		gt.Value(t, err).NotNil()
	})

	t.Run("invalid format", func(t *testing.T) {
		_, _, err := config.NewLoggerForTest("info", "xml", "stderr").BuildForTest()
		gt.Value(t, err).NotNil()
	})
}

func TestParseGCSPath(t *testing.T) {
	bucket, object, ok, err := config.ParseGCSPath("gs://logs/2026/observations.json")
	gt.NoError(t, err)
	gt.Bool(t, ok).True()
	gt.Value(t, bucket).Equal("logs")
	gt.Value(t, object).Equal("2026/observations.json")

	_, _, ok, err = config.ParseGCSPath("./observations.json")
	gt.NoError(t, err)
	gt.Bool(t, ok).False()

	for _, p := range []string{"gs://", "gs://bucket", "gs://bucket/", "gs:///object"} {
		_, _, ok, err := config.ParseGCSPath(p)
		gt.Bool(t, ok).True()
		gt.Error(t, err).Is(model.ErrInvalidInput)
	}
}

func TestOpenSource_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	gt.NoError(t, os.WriteFile(path, []byte(`{"observations":[]}`), 0600)).Required()

	r, err := config.OpenSource(t.Context(), path)
	gt.NoError(t, err).Required()
	defer func() { _ = r.Close() }()

	buf := make([]byte, 64)
	n, _ := r.Read(buf)
	gt.String(t, string(buf[:n])).Contains("observations")

	_, err = config.OpenSource(t.Context(), filepath.Join(t.TempDir(), "missing.json"))
	gt.Value(t, err).NotNil()
}
