package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/usecase"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdSync() *cli.Command {
	var lookback time.Duration
	rt := runtime{integrations: true}

	flags := []cli.Flag{
		&cli.DurationFlag{
			Name:        "since",
			Usage:       "Import items updated within this duration",
			Value:       24 * time.Hour,
			Sources:     cli.EnvVars("SYNAPSE_SYNC_SINCE"),
			Destination: &lookback,
		},
	}
	flags = append(flags, rt.Flags()...)

	// run opens the use cases, runs fn and prints its result
	run := func(ctx context.Context, c *cli.Command, source string, fn func(uc *usecase.UseCases, since time.Time) (*usecase.SyncResult, error)) error {
		if lookback <= 0 {
			return goerr.Wrap(model.ErrInvalidInput, "since must be positive", goerr.V("since", lookback))
		}
		since := time.Now().Add(-lookback)

		uc, closer, err := rt.open(ctx)
		if err != nil {
			return err
		}
		defer closer()

		result, err := fn(uc, since)
		if result != nil {
			logging.Default().Info("Sync finished",
				"source", source,
				"since", since,
				"imported", result.Imported,
				"failed", result.Failed)
		}
		if err != nil {
			return err
		}
		return printJSON(c, result)
	}

	return &cli.Command{
		Name:  "sync",
		Usage: "Import tickets, documents and messages from external services",
		Flags: flags,
		Commands: []*cli.Command{
			cmdSyncGitHub(run),
			cmdSyncNotion(run),
			cmdSyncSlack(run),
		},
	}
}

type syncRunner func(ctx context.Context, c *cli.Command, source string, fn func(uc *usecase.UseCases, since time.Time) (*usecase.SyncResult, error)) error

func cmdSyncGitHub(run syncRunner) *cli.Command {
	var owner, repo string

	return &cli.Command{
		Name:  "github",
		Usage: "Import issues and their comments as ticket chains",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "owner",
				Usage:       "Repository owner",
				Required:    true,
				Destination: &owner,
			},
			&cli.StringFlag{
				Name:        "repo",
				Usage:       "Repository name",
				Required:    true,
				Destination: &repo,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, c, "github", func(uc *usecase.UseCases, since time.Time) (*usecase.SyncResult, error) {
				return uc.Sync.SyncGitHub(ctx, owner, repo, since)
			})
		},
	}
}

func cmdSyncNotion(run syncRunner) *cli.Command {
	var databaseID string

	return &cli.Command{
		Name:  "notion",
		Usage: "Import database pages as documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "database-id",
				Usage:       "Notion database ID",
				Required:    true,
				Sources:     cli.EnvVars("SYNAPSE_NOTION_DATABASE_ID"),
				Destination: &databaseID,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, c, "notion", func(uc *usecase.UseCases, since time.Time) (*usecase.SyncResult, error) {
				return uc.Sync.SyncNotion(ctx, databaseID, since)
			})
		},
	}
}

func cmdSyncSlack(run syncRunner) *cli.Command {
	var channels []string

	return &cli.Command{
		Name:  "slack",
		Usage: "Import channel history, every thread as its own chain",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "channel",
				Usage:       "Channel ID, repeatable; all joined channels when omitted",
				Destination: &channels,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, c, "slack", func(uc *usecase.UseCases, since time.Time) (*usecase.SyncResult, error) {
				return uc.Sync.SyncSlack(ctx, channels, since)
			})
		},
	}
}
