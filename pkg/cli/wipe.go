package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdWipe() *cli.Command {
	var confirm bool
	var rt runtime

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "yes",
			Usage:       "Confirm deletion of the whole graph",
			Destination: &confirm,
		},
	}
	flags = append(flags, rt.Flags()...)

	return &cli.Command{
		Name:  "wipe",
		Usage: "Delete every node and relationship",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if !confirm {
				return goerr.Wrap(model.ErrInvalidInput, "refusing to wipe without --yes")
			}

			uc, closer, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			return uc.Ingest.WipeAll(ctx)
		},
	}
}
