package model

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

// EventID is a UUID-based identifier for Event
type EventID string

// eventNamespace seeds UUIDv5 ids of events derived from an external id.
var eventNamespace = uuid.MustParse("5b0f3c8e-4a6f-4c61-9d07-2f4a1c1e7a52")

// NewEventID generates a new UUID v4 EventID
func NewEventID() EventID {
	return EventID(uuid.New().String())
}

// DeriveEventID returns a stable id for an observation that carries its own
// external id, so that re-ingesting it yields the same Event.
func DeriveEventID(source types.Source, chainID ChainID, externalID string) EventID {
	name := string(source) + "\x00" + string(chainID) + "\x00" + externalID
	return EventID(uuid.NewSHA1(eventNamespace, []byte(name)).String())
}

// Event is one classified observation placed in a chain.
type Event struct {
	ID           EventID
	Timestamp    int64 // unix seconds
	Source       types.Source
	User         string
	UserRole     string
	Text         string
	DecisionType types.DecisionType
	Reasoning    string
	Embedding    []float32

	// EmbeddingMissing is set when the embedder failed; such events are
	// never returned by vector queries.
	EmbeddingMissing bool

	// Clarification is written at most once after linking.
	Clarification string

	// Set by the chain linker. Position 1 is the head of the chain.
	ChainID  ChainID
	Position int
	PrevID   EventID
}

// Event property names
const (
	propTimestamp        = "timestamp"
	propSource           = "source"
	propUser             = "user"
	propUserRole         = "user_role"
	propText             = "text"
	propDecisionType     = "decision_type"
	propReasoning        = "reasoning"
	propEmbeddingMissing = "embedding_missing"
	propClarification    = "clarification"
	propChainID          = "chain_id"
	propPosition         = "position"
	propPrevID           = "prev_id"
)

// Ref returns the graph reference of the event
func (e *Event) Ref() NodeRef {
	return NodeRef{Label: types.LabelEvent, ID: string(e.ID)}
}

// ToNode converts the event into its graph node. Empty optional fields are omitted.
func (e *Event) ToNode() *Node {
	props := Properties{
		KeyID:            string(e.ID),
		propTimestamp:    e.Timestamp,
		propSource:       string(e.Source),
		propUser:         e.User,
		propUserRole:     e.UserRole,
		propText:         e.Text,
		propDecisionType: string(e.DecisionType),
		propReasoning:    e.Reasoning,

		// always written so a refreshed embedding clears the flag on merge
		propEmbeddingMissing: e.EmbeddingMissing,
	}
	if e.Clarification != "" {
		props[propClarification] = e.Clarification
	}
	if e.ChainID != "" {
		props[propChainID] = string(e.ChainID)
		props[propPosition] = int64(e.Position)
	}
	if e.PrevID != "" {
		props[propPrevID] = string(e.PrevID)
	}

	n := &Node{Label: types.LabelEvent, Properties: props}
	if len(e.Embedding) > 0 {
		n.Embedding = make([]float32, len(e.Embedding))
		copy(n.Embedding, e.Embedding)
	}
	return n
}

// EventFromNode restores an Event from its graph node
func EventFromNode(n *Node) (*Event, error) {
	if n == nil || n.Label != types.LabelEvent {
		return nil, goerr.Wrap(ErrInvalidInput, "node is not an event")
	}
	p := n.Properties
	e := &Event{
		ID:               EventID(p.String(KeyID)),
		Timestamp:        p.Int64(propTimestamp),
		Source:           types.Source(p.String(propSource)),
		User:             p.String(propUser),
		UserRole:         p.String(propUserRole),
		Text:             p.String(propText),
		DecisionType:     types.DecisionType(p.String(propDecisionType)),
		Reasoning:        p.String(propReasoning),
		EmbeddingMissing: p.Bool(propEmbeddingMissing),
		Clarification:    p.String(propClarification),
		ChainID:          ChainID(p.String(propChainID)),
		Position:         int(p.Int64(propPosition)),
		PrevID:           EventID(p.String(propPrevID)),
	}
	if e.ID == "" {
		return nil, goerr.Wrap(ErrInvalidInput, "event node without id")
	}
	if len(n.Embedding) > 0 {
		e.Embedding = make([]float32, len(n.Embedding))
		copy(e.Embedding, n.Embedding)
	}
	return e, nil
}
