package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/cli/config"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/usecase"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdIngest() *cli.Command {
	var format string
	var wipe bool
	var rt runtime

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "format",
			Usage:       "Observation log format [json|toml], guessed from the file extension when empty",
			Destination: &format,
		},
		&cli.BoolFlag{
			Name:        "wipe",
			Usage:       "Delete every node and relationship before ingesting",
			Destination: &wipe,
		},
	}
	flags = append(flags, rt.Flags()...)

	return &cli.Command{
		Name:      "ingest",
		Aliases:   []string{"i"},
		Usage:     "Ingest an observation log from a local file or gs://bucket/object",
		ArgsUsage: "<path>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return goerr.Wrap(model.ErrInvalidInput, "observation log path is required")
			}
			if format == "" {
				format = usecase.LogFormatFromPath(path)
			}

			src, err := config.OpenSource(ctx, path)
			if err != nil {
				return err
			}
			defer func() {
				if err := src.Close(); err != nil {
					logging.Default().Warn("failed to close observation log", "error", err)
				}
			}()

			log, err := usecase.DecodeObservationLog(src, format)
			if err != nil {
				return goerr.Wrap(err, "failed to decode observation log", goerr.V("path", path))
			}

			uc, closer, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			result, err := uc.Ingest.IngestLog(ctx, log, wipe)
			if err != nil {
				return err
			}

			logging.Default().Info("Observation log ingested",
				"path", path,
				"ingested", result.Ingested,
				"chains", len(result.Chains),
				"wiped", wipe)
			return printJSON(c, result)
		},
	}
}
