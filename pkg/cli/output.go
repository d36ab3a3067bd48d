package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func writer(c *cli.Command) io.Writer {
	if w := c.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func printJSON(c *cli.Command, v any) error {
	enc := json.NewEncoder(writer(c))
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to write output")
	}
	return nil
}

// eventView is the printed form of an event; embeddings are left out.
type eventView struct {
	ID            model.EventID `json:"id"`
	Position      int           `json:"position"`
	Timestamp     int64         `json:"timestamp"`
	Source        string        `json:"source"`
	User          string        `json:"user,omitempty"`
	UserRole      string        `json:"user_role,omitempty"`
	DecisionType  string        `json:"decision_type"`
	Reasoning     string        `json:"reasoning,omitempty"`
	Text          string        `json:"text"`
	Clarification string        `json:"clarification,omitempty"`
}

func toEventView(e *model.Event) eventView {
	return eventView{
		ID:            e.ID,
		Position:      e.Position,
		Timestamp:     e.Timestamp,
		Source:        string(e.Source),
		User:          e.User,
		UserRole:      e.UserRole,
		DecisionType:  string(e.DecisionType),
		Reasoning:     e.Reasoning,
		Text:          e.Text,
		Clarification: e.Clarification,
	}
}
