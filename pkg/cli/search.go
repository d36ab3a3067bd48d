package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdSearch() *cli.Command {
	var topK int
	var rt runtime

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "k",
			Usage:       "Number of results",
			Value:       model.DefaultSearchTopK,
			Destination: &topK,
		},
	}
	flags = append(flags, rt.Flags()...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Semantic search over tickets, messages, document pages and events",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return goerr.Wrap(model.ErrInvalidInput, "search query is required")
			}

			uc, closer, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			results, err := uc.Search.Search(ctx, query, topK)
			if err != nil {
				return err
			}
			return printJSON(c, results)
		},
	}
}

func cmdExperts() *cli.Command {
	var limit int
	var rt runtime

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of experts (0 for all)",
			Value:       10,
			Destination: &limit,
		},
	}
	flags = append(flags, rt.Flags()...)

	return &cli.Command{
		Name:      "experts",
		Usage:     "Rank users who discussed a keyword",
		ArgsUsage: "<term>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			term := strings.Join(c.Args().Slice(), " ")

			uc, closer, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			experts, err := uc.Experts.FindExperts(ctx, term, limit)
			if err != nil {
				return err
			}
			return printJSON(c, experts)
		},
	}
}
