package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
)

// ChainLinker appends events to per-case chains. The anchor keeps head_id,
// tail_id and length so that an append reads exactly two nodes.
type ChainLinker struct {
	store interfaces.GraphStore
	clock func() time.Time
}

func NewChainLinker(store interfaces.GraphStore, clock func() time.Time) *ChainLinker {
	return &ChainLinker{store: store, clock: clock}
}

func chainScope(id model.ChainID) string {
	return "chain:" + string(id)
}

// Open creates the anchor of an empty chain. Opening an existing chain is a no-op.
func (l *ChainLinker) Open(ctx context.Context, chainID model.ChainID) (*model.Chain, error) {
	if err := chainID.Validate(); err != nil {
		return nil, err
	}

	var chain *model.Chain
	err := l.store.RunTransaction(ctx, chainScope(chainID), func(ctx context.Context, tx interfaces.GraphTx) error {
		current, err := readAnchor(tx, chainID)
		if err != nil {
			return err
		}
		if current != nil {
			chain = current
			return nil
		}

		now := l.clock().Unix()
		chain = &model.Chain{ID: chainID, CreatedAt: now, UpdatedAt: now}
		return tx.UpsertNode(chain.ToNode())
	})
	if err != nil {
		return nil, linkError(err, "failed to open chain", chainID, "")
	}
	return chain, nil
}

// AppendOption configures a single Append
type AppendOption func(*appendConfig)

type appendConfig struct {
	writes []*Writes
}

// WithWrites commits w in the same transaction as the link
func WithWrites(w *Writes) AppendOption {
	return func(c *appendConfig) {
		c.writes = append(c.writes, w)
	}
}

// Append links event at the tail of chainID, creating the anchor on first
// use. It returns the stored event with ChainID, Position and PrevID set.
//
// Appending an event that is already in this chain refreshes its properties
// but keeps position, timestamp and clarification, and creates no edge. An
// event of another chain is rejected with model.ErrChainConflict. Storage
// failures leave nothing behind, including writes added by WithWrites, and
// are reported as retryable model.ErrStorageWriteFailed.
func (l *ChainLinker) Append(ctx context.Context, chainID model.ChainID, event *model.Event, opts ...AppendOption) (*model.Event, error) {
	if err := chainID.Validate(); err != nil {
		return nil, err
	}
	if event == nil || event.ID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "event without id", goerr.V(ChainIDKey, chainID))
	}

	var cfg appendConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	stageWrites := func(tx interfaces.GraphTx) error {
		for _, w := range cfg.writes {
			if err := w.stage(tx); err != nil {
				return err
			}
		}
		return nil
	}

	var linked *model.Event
	err := l.store.RunTransaction(ctx, chainScope(chainID), func(ctx context.Context, tx interfaces.GraphTx) error {
		e := *event

		chain, err := readAnchor(tx, chainID)
		if err != nil {
			return err
		}

		existingNode, err := tx.GetNode(e.Ref())
		if err != nil {
			return err
		}
		if existingNode != nil {
			existing, err := model.EventFromNode(existingNode)
			if err != nil {
				return err
			}

			switch existing.ChainID {
			case chainID:
				refreshEvent(&e, existing)
				if err := tx.UpsertNode(e.ToNode()); err != nil {
					return err
				}
				if err := stageWrites(tx); err != nil {
					return err
				}
				linked = &e
				return nil

			case "":
				// stored but never linked, append below

			default:
				return goerr.Wrap(model.ErrChainConflict, "event is linked to another chain",
					goerr.V(EventIDKey, e.ID),
					goerr.V(ChainIDKey, chainID),
					goerr.V("linked_chain_id", existing.ChainID))
			}
		}

		now := l.clock().Unix()
		if chain == nil {
			chain = &model.Chain{ID: chainID, CreatedAt: now}
		}

		e.ChainID = chainID
		e.Position = chain.Length + 1
		e.PrevID = chain.TailID
		if err := tx.UpsertNode(e.ToNode()); err != nil {
			return err
		}

		rel := &model.Relationship{To: e.Ref()}
		if chain.TailID == "" {
			rel.From = chainID.Ref()
			rel.Type = types.RelHasEvent
			chain.HeadID = e.ID
		} else {
			rel.From = model.NodeRef{Label: types.LabelEvent, ID: string(chain.TailID)}
			rel.Type = types.RelNext
		}
		if err := tx.UpsertRelationship(rel); err != nil {
			return err
		}

		chain.TailID = e.ID
		chain.Length++
		chain.UpdatedAt = now
		if err := tx.UpsertNode(chain.ToNode()); err != nil {
			return err
		}
		if err := stageWrites(tx); err != nil {
			return err
		}

		linked = &e
		return nil
	})
	if err != nil {
		return nil, linkError(err, "failed to append event to chain", chainID, event.ID)
	}

	logging.From(ctx).Debug("event linked",
		"chain_id", chainID,
		"event_id", linked.ID,
		"position", linked.Position,
	)
	return linked, nil
}

// refreshEvent keeps the fields of an already linked event that must not
// change on re-append.
func refreshEvent(e, existing *model.Event) {
	e.ChainID = existing.ChainID
	e.Position = existing.Position
	e.PrevID = existing.PrevID
	e.Timestamp = existing.Timestamp
	if existing.Clarification != "" {
		e.Clarification = existing.Clarification
	}
	if e.EmbeddingMissing && len(existing.Embedding) > 0 {
		e.Embedding = existing.Embedding
		e.EmbeddingMissing = false
	}
}

func readAnchor(tx interfaces.GraphTx, chainID model.ChainID) (*model.Chain, error) {
	node, err := tx.GetNode(chainID.Ref())
	if err != nil || node == nil {
		return nil, err
	}
	return model.ChainFromNode(node)
}

// linkError passes through errors the caller must not retry and marks all
// others, including context cancellation, as retryable storage failures.
func linkError(err error, msg string, chainID model.ChainID, eventID model.EventID) error {
	if errors.Is(err, model.ErrChainConflict) ||
		errors.Is(err, model.ErrConfiguration) ||
		errors.Is(err, model.ErrInvalidInput) ||
		errors.Is(err, model.ErrNodeNotFound) ||
		errors.Is(err, model.ErrClarificationAlreadySet) {
		return err
	}
	return model.StorageWriteFailed(err, msg, goerr.V(ChainIDKey, chainID), goerr.V(EventIDKey, eventID))
}

// Read returns the chain with its events in link order. A missing chain
// fails with model.ErrNodeNotFound.
func (l *ChainLinker) Read(ctx context.Context, chainID model.ChainID) (*model.Chain, error) {
	if err := chainID.Validate(); err != nil {
		return nil, err
	}

	node, err := l.store.GetNode(ctx, chainID.Ref())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get chain anchor", goerr.V(ChainIDKey, chainID))
	}
	if node == nil {
		return nil, goerr.Wrap(model.ErrNodeNotFound, "chain not found", goerr.V(ChainIDKey, chainID))
	}
	chain, err := model.ChainFromNode(node)
	if err != nil {
		return nil, err
	}

	anchor := chainID.Ref()
	heads, err := l.store.ListRelationships(ctx, model.RelationshipFilter{From: &anchor, Type: types.RelHasEvent})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list chain head", goerr.V(ChainIDKey, chainID))
	}
	if len(heads) == 0 {
		chain.Events = []*model.Event{}
		return chain, nil
	}
	if len(heads) > 1 {
		return nil, goerr.New("chain has more than one head", goerr.V(ChainIDKey, chainID), goerr.V("heads", len(heads)))
	}

	events := make([]*model.Event, 0, chain.Length)
	visited := make(map[string]struct{}, chain.Length)
	next := &heads[0].To
	for next != nil {
		if _, ok := visited[next.ID]; ok {
			return nil, goerr.New("cycle in chain", goerr.V(ChainIDKey, chainID), goerr.V(EventIDKey, next.ID))
		}
		visited[next.ID] = struct{}{}

		n, err := l.store.GetNode(ctx, *next)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get chain event", goerr.V(EventIDKey, next.ID))
		}
		if n == nil {
			return nil, goerr.Wrap(model.ErrNodeNotFound, "chain event not found", goerr.V(EventIDKey, next.ID))
		}
		e, err := model.EventFromNode(n)
		if err != nil {
			return nil, err
		}
		events = append(events, e)

		from := *next
		outgoing, err := l.store.ListRelationships(ctx, model.RelationshipFilter{From: &from, Type: types.RelNext})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list next event", goerr.V(EventIDKey, from.ID))
		}
		switch len(outgoing) {
		case 0:
			next = nil
		case 1:
			next = &outgoing[0].To
		default:
			return nil, goerr.New("chain branches", goerr.V(ChainIDKey, chainID), goerr.V(EventIDKey, from.ID))
		}
	}

	chain.Events = events
	return chain, nil
}
