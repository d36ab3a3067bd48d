package interfaces

import (
	"context"

	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

// GraphReader holds the parameterized read operations of the graph.
type GraphReader interface {
	// GetNode returns nil, nil when the node does not exist.
	GetNode(ctx context.Context, ref model.NodeRef) (*model.Node, error)
	ListNodes(ctx context.Context, label types.NodeLabel) ([]*model.Node, error)
	ListRelationships(ctx context.Context, filter model.RelationshipFilter) ([]*model.Relationship, error)
}

// GraphStore is the persistent labeled property graph with vector indexes.
type GraphStore interface {
	GraphReader

	// UpsertNode merges node by its unique key (id, email or term). A node
	// without any of them fails with model.ErrConfiguration.
	UpsertNode(ctx context.Context, node *model.Node) error

	// UpsertRelationship merges rel by its (from, type, to) triple.
	// Endpoints are not checked for existence.
	UpsertRelationship(ctx context.Context, rel *model.Relationship) error

	// DeleteNode removes the node and every relationship from or to it.
	// Deleting a missing node is not an error.
	DeleteNode(ctx context.Context, ref model.NodeRef) error

	// QueryVector returns up to k nodes of the index's label nearest to
	// embedding by cosine similarity, best first. Nodes without an embedding
	// never match. A missing or empty index yields an empty slice.
	QueryVector(ctx context.Context, index types.VectorIndex, k int, embedding []float32) ([]*model.ScoredNode, error)

	// RunTransaction runs fn atomically. Transactions sharing the same scope
	// are serialized; fn may be invoked more than once by optimistic
	// backends and must not have side effects outside tx. Nothing written
	// through tx is visible when fn or the commit fails.
	RunTransaction(ctx context.Context, scope string, fn func(ctx context.Context, tx GraphTx) error) error

	// WipeAll deletes every node and relationship.
	WipeAll(ctx context.Context) error

	Close() error
}

// GraphTx is the view of the graph inside RunTransaction. All reads must
// happen before the first write.
type GraphTx interface {
	GetNode(ref model.NodeRef) (*model.Node, error)
	UpsertNode(node *model.Node) error
	UpsertRelationship(rel *model.Relationship) error
}
