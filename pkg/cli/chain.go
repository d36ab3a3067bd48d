package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

type chainView struct {
	ID             model.ChainID                `json:"id"`
	State          string                       `json:"state"`
	Length         int                          `json:"length"`
	Events         []eventView                  `json:"events"`
	Clarifications []*model.ClarificationPrompt `json:"pending_clarifications"`
}

func cmdChain() *cli.Command {
	var rt runtime

	return &cli.Command{
		Name:      "chain",
		Usage:     "Print the events of a chain in order with pending clarifications",
		ArgsUsage: "<case id>",
		Flags:     rt.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			chainID := model.ChainID(c.Args().First())
			if err := chainID.Validate(); err != nil {
				return err
			}

			uc, closer, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			chain, err := uc.Chains.Read(ctx, chainID)
			if err != nil {
				return err
			}
			prompts, err := uc.Clarification.Pending(ctx, chainID)
			if err != nil {
				return err
			}

			view := chainView{
				ID:             chain.ID,
				State:          string(chain.State()),
				Length:         chain.Length,
				Events:         make([]eventView, 0, len(chain.Events)),
				Clarifications: prompts,
			}
			for _, e := range chain.Events {
				view.Events = append(view.Events, toEventView(e))
			}
			return printJSON(c, view)
		},
	}
}

func cmdClarify() *cli.Command {
	var rt runtime

	return &cli.Command{
		Name:      "clarify",
		Usage:     "Answer the clarification question of a resolution event",
		ArgsUsage: "<event id> <solution category>",
		Flags:     rt.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 2 {
				return goerr.Wrap(model.ErrInvalidInput, "event id and value are required")
			}
			eventID := model.EventID(c.Args().Get(0))

			uc, closer, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			event, err := uc.Clarification.Set(ctx, eventID, c.Args().Get(1))
			if err != nil {
				return err
			}
			return printJSON(c, toEventView(event))
		},
	}
}
