package config

import "log/slog"

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken, signingSecret, apiURL string) *Slack {
	return &Slack{
		botToken:      botToken,
		signingSecret: signingSecret,
		apiURL:        apiURL,
	}
}

func NewRepositoryForTest(backend, projectID, sqlitePath string) *Repository {
	return &Repository{
		backend:    backend,
		projectID:  projectID,
		sqlitePath: sqlitePath,
	}
}

func NewEmbeddingForTest(provider, geminiProject, ollamaURL, ollamaModel string) *Embedding {
	return &Embedding{
		provider:      provider,
		geminiProject: geminiProject,
		ollamaURL:     ollamaURL,
		ollamaModel:   ollamaModel,
	}
}

func NewGitHubForTest(appID, installationID int, privateKey string) *GitHub {
	return &GitHub{
		appID:          appID,
		installationID: installationID,
		privateKey:     privateKey,
	}
}

func NewNotionForTest(token string) *Notion {
	return &Notion{token: token}
}

func NewSentryForTest(dsn string) *Sentry {
	return &Sentry{dsn: dsn}
}

func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

func (x *Logger) BuildForTest() (*slog.Logger, func(), error) {
	return x.build()
}
