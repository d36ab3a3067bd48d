package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

// ChainID is the case id a chain is keyed by (e.g. a ticket id). It is
// always supplied by the caller.
type ChainID string

func (id ChainID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return goerr.Wrap(ErrConfiguration, "explicit case id required")
	}
	return nil
}

func (id ChainID) Ref() NodeRef {
	return NodeRef{Label: types.LabelChain, ID: string(id)}
}

// ChainState is the lifecycle state of a chain
type ChainState string

const (
	ChainAbsent             ChainState = "absent"
	ChainAnchoredEmpty      ChainState = "anchored-empty"
	ChainAnchoredWithEvents ChainState = "anchored-with-events"
)

// Chain is the anchor of one case. HeadID is the target of the single
// HAS_EVENT edge and TailID the event without an outgoing NEXT edge.
type Chain struct {
	ID        ChainID
	HeadID    EventID
	TailID    EventID
	Length    int
	CreatedAt int64
	UpdatedAt int64

	// Events is filled only by reads that walk the chain, in chain order.
	Events []*Event
}

// State returns the lifecycle state. A nil chain is absent.
func (c *Chain) State() ChainState {
	switch {
	case c == nil:
		return ChainAbsent
	case c.TailID == "":
		return ChainAnchoredEmpty
	default:
		return ChainAnchoredWithEvents
	}
}

const (
	propHeadID    = "head_id"
	propTailID    = "tail_id"
	propLength    = "length"
	propCreatedAt = "created_at"
	propUpdatedAt = "updated_at"
)

// ToNode converts the anchor into its graph node
func (c *Chain) ToNode() *Node {
	props := Properties{
		KeyID:         string(c.ID),
		propLength:    int64(c.Length),
		propCreatedAt: c.CreatedAt,
		propUpdatedAt: c.UpdatedAt,
	}
	if c.HeadID != "" {
		props[propHeadID] = string(c.HeadID)
	}
	if c.TailID != "" {
		props[propTailID] = string(c.TailID)
	}
	return &Node{Label: types.LabelChain, Properties: props}
}

// ChainFromNode restores a Chain anchor; Events is left empty.
func ChainFromNode(n *Node) (*Chain, error) {
	if n == nil || n.Label != types.LabelChain {
		return nil, goerr.Wrap(ErrInvalidInput, "node is not a chain")
	}
	p := n.Properties
	return &Chain{
		ID:        ChainID(p.String(KeyID)),
		HeadID:    EventID(p.String(propHeadID)),
		TailID:    EventID(p.String(propTailID)),
		Length:    int(p.Int64(propLength)),
		CreatedAt: p.Int64(propCreatedAt),
		UpdatedAt: p.Int64(propUpdatedAt),
	}, nil
}
