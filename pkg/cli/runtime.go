package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/cli/config"
	"github.com/secmon-lab/synapse/pkg/usecase"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// runtime wires the graph store, embedder and external services shared by
// every command.
type runtime struct {
	repoCfg   config.Repository
	embedCfg  config.Embedding
	slackCfg  config.Slack
	githubCfg config.GitHub
	notionCfg config.Notion

	integrations bool
}

func (x *runtime) Flags() []cli.Flag {
	flags := append(x.repoCfg.Flags(), x.embedCfg.Flags()...)
	if x.integrations {
		flags = append(flags, x.slackCfg.Flags()...)
		flags = append(flags, x.githubCfg.Flags()...)
		flags = append(flags, x.notionCfg.Flags()...)
	}
	return flags
}

func attrArgs(attrs []slog.Attr) []any {
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return args
}

// open builds the use cases. The returned closer releases the graph store.
func (x *runtime) open(ctx context.Context) (*usecase.UseCases, func(), error) {
	logger := logging.From(ctx)

	store, err := x.repoCfg.Configure(ctx)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize graph store")
	}
	closer := func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close graph store", "error", err.Error())
		}
	}

	embedder, err := x.embedCfg.Configure(ctx)
	if err != nil {
		closer()
		return nil, nil, goerr.Wrap(err, "failed to configure embedding provider")
	}
	logger.Info("Embedding configured", slog.Group("embedding", attrArgs(x.embedCfg.LogAttrs())...))

	opts := []usecase.Option{usecase.WithEmbedder(embedder)}

	if x.integrations {
		slackSvc, err := x.slackCfg.Configure()
		if err != nil {
			closer()
			return nil, nil, err
		}
		if slackSvc != nil {
			opts = append(opts, usecase.WithSlackService(slackSvc))
			logger.Info("Slack service enabled", "slack", x.slackCfg)
		}

		githubSvc, err := x.githubCfg.Configure()
		if err != nil {
			closer()
			return nil, nil, err
		}
		if githubSvc != nil {
			opts = append(opts, usecase.WithGitHubService(githubSvc))
			logger.Info("GitHub service enabled", slog.Group("github", attrArgs(x.githubCfg.LogAttrs())...))
		}

		notionSvc, err := x.notionCfg.Configure()
		if err != nil {
			closer()
			return nil, nil, err
		}
		if notionSvc != nil {
			opts = append(opts, usecase.WithNotionService(notionSvc))
			logger.Info("Notion service enabled", "notion", x.notionCfg)
		}
	}

	logger.Info("Graph store configured", "repository", x.repoCfg)
	return usecase.New(store, opts...), closer, nil
}
