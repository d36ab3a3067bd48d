package usecase

import (
	"context"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

// DebriefingUseCase records expert interviews as chains of workflow steps
type DebriefingUseCase struct {
	ingest *IngestUseCase
}

func NewDebriefingUseCase(ingest *IngestUseCase) *DebriefingUseCase {
	return &DebriefingUseCase{ingest: ingest}
}

// RecordDebriefing appends each step, in order, to the chain of the
// workflow. With a session id the steps get stable ids, so recording the
// same session twice changes nothing.
func (uc *DebriefingUseCase) RecordDebriefing(ctx context.Context, d *model.Debriefing) ([]*model.Event, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	events := make([]*model.Event, 0, len(d.Steps))
	for i, step := range d.Steps {
		obs := &model.Observation{
			Source:   types.SourceDebriefingSession,
			CaseID:   d.WorkflowID,
			User:     d.Expert,
			UserRole: d.Role,
			Text:     step,
		}
		if d.SessionID != "" {
			obs.ExternalID = d.SessionID + "/step-" + strconv.Itoa(i+1)
		}

		r, err := uc.ingest.Ingest(ctx, obs)
		if err != nil {
			return events, goerr.Wrap(err, "failed to record debriefing step",
				goerr.V(ChainIDKey, d.WorkflowID), goerr.V("step", i+1))
		}
		events = append(events, r.Event)
	}
	return events, nil
}
