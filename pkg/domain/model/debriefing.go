package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Debriefing is one expert interview recorded as ordered steps of a workflow.
type Debriefing struct {
	WorkflowID ChainID  `json:"workflow_id"`
	Expert     string   `json:"expert"`
	Role       string   `json:"role,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	Steps      []string `json:"steps"`
}

func (d *Debriefing) Validate() error {
	if err := d.WorkflowID.Validate(); err != nil {
		return err
	}
	if len(d.Steps) == 0 {
		return goerr.Wrap(ErrInvalidInput, "debriefing has no steps", goerr.V("workflow_id", d.WorkflowID))
	}
	for i, s := range d.Steps {
		if strings.TrimSpace(s) == "" {
			return goerr.Wrap(ErrInvalidInput, "empty debriefing step",
				goerr.V("workflow_id", d.WorkflowID), goerr.V("step", i))
		}
	}
	return nil
}
