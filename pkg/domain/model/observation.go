package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

// Observation is a raw textual event before classification.
type Observation struct {
	Source     types.Source `json:"source" toml:"source"`
	CaseID     ChainID      `json:"case_id" toml:"case_id"`
	User       string       `json:"user" toml:"user"` // email when known
	UserName   string       `json:"user_name,omitempty" toml:"user_name,omitempty"`
	UserRole   string       `json:"user_role,omitempty" toml:"user_role,omitempty"`
	Text       string       `json:"text" toml:"text"`
	ExternalID string       `json:"external_id,omitempty" toml:"external_id,omitempty"`
	OccurredAt time.Time    `json:"occurred_at,omitzero" toml:"occurred_at,omitempty"`

	// Ticket describes the case entity when the source system has one.
	Ticket *TicketInput `json:"ticket,omitempty" toml:"ticket,omitempty"`
}

// TicketInput carries ticket metadata from the source system.
type TicketInput struct {
	Summary string `json:"summary" toml:"summary"`
	Status  string `json:"status,omitempty" toml:"status,omitempty"`
	URL     string `json:"url,omitempty" toml:"url,omitempty"`
}

func (o *Observation) Validate() error {
	if !o.Source.IsValid() {
		return goerr.Wrap(ErrInvalidInput, "invalid observation source", goerr.V("source", o.Source))
	}
	if err := o.CaseID.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(o.Text) == "" {
		return goerr.Wrap(ErrInvalidInput, "observation text is empty", goerr.V("case_id", o.CaseID))
	}
	return nil
}

// HasEmail reports whether User looks like an email address; only then is a
// User node created.
func (o *Observation) HasEmail() bool {
	at := strings.IndexByte(o.User, '@')
	return at > 0 && at < len(o.User)-1
}

// ObservationLog is an ordered batch of observations, as read from a log file.
type ObservationLog struct {
	Observations []Observation `json:"observations" toml:"observations"`
}
