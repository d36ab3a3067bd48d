package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

// ClarificationUseCase asks humans why resolved events were resolved and
// records the answer once.
type ClarificationUseCase struct {
	store  interfaces.GraphStore
	linker *ChainLinker
}

func NewClarificationUseCase(store interfaces.GraphStore, linker *ChainLinker) *ClarificationUseCase {
	return &ClarificationUseCase{store: store, linker: linker}
}

// PromptFor returns the clarification prompt of a resolved event without
// clarification, or nil.
func PromptFor(e *model.Event) *model.ClarificationPrompt {
	if e == nil || e.DecisionType != types.DecisionResolution || e.Clarification != "" {
		return nil
	}
	return model.NewClarificationPrompt(e)
}

// Pending lists the open prompts of a chain in chain order
func (uc *ClarificationUseCase) Pending(ctx context.Context, chainID model.ChainID) ([]*model.ClarificationPrompt, error) {
	chain, err := uc.linker.Read(ctx, chainID)
	if err != nil {
		return nil, err
	}

	prompts := []*model.ClarificationPrompt{}
	for _, e := range chain.Events {
		if p := PromptFor(e); p != nil {
			prompts = append(prompts, p)
		}
	}
	return prompts, nil
}

// Set records the clarification of an event. It fails with
// model.ErrClarificationAlreadySet when one exists already.
func (uc *ClarificationUseCase) Set(ctx context.Context, eventID model.EventID, value string) (*model.Event, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "clarification is empty", goerr.V(EventIDKey, eventID))
	}

	ref := model.NodeRef{Label: types.LabelEvent, ID: string(eventID)}
	node, err := uc.store.GetNode(ctx, ref)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get event", goerr.V(EventIDKey, eventID))
	}
	if node == nil {
		return nil, goerr.Wrap(model.ErrNodeNotFound, "event not found", goerr.V(EventIDKey, eventID))
	}
	current, err := model.EventFromNode(node)
	if err != nil {
		return nil, err
	}

	// share the chain's scope so a concurrent re-append cannot drop the value
	scope := "event:" + string(eventID)
	if current.ChainID != "" {
		scope = chainScope(current.ChainID)
	}

	var updated *model.Event
	err = uc.store.RunTransaction(ctx, scope, func(ctx context.Context, tx interfaces.GraphTx) error {
		n, err := tx.GetNode(ref)
		if err != nil {
			return err
		}
		if n == nil {
			return goerr.Wrap(model.ErrNodeNotFound, "event not found", goerr.V(EventIDKey, eventID))
		}
		e, err := model.EventFromNode(n)
		if err != nil {
			return err
		}
		if e.Clarification != "" {
			return goerr.Wrap(model.ErrClarificationAlreadySet, "clarification already set",
				goerr.V(EventIDKey, eventID), goerr.V("clarification", e.Clarification))
		}

		e.Clarification = value
		if err := tx.UpsertNode(&model.Node{
			Label:      types.LabelEvent,
			Properties: model.Properties{model.KeyID: string(eventID), "clarification": value},
		}); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, linkError(err, "failed to set clarification", current.ChainID, eventID)
	}

	return updated, nil
}
