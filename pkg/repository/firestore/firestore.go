package firestore

import (
	"context"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

const relationshipsCollection = "relationships"

// Firestore is a GraphStore keeping one collection per node label and one
// collection for all relationships.
type Firestore struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.GraphStore = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	f := &Firestore{client: client}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// NodeCollection returns the unprefixed collection name of a label.
func NodeCollection(label types.NodeLabel) string {
	return "nodes_" + strings.ToLower(string(label))
}

// EmbeddingField returns the document field holding node embeddings, the
// path vector indexes are built on.
func EmbeddingField() string {
	return fieldEmbedding
}

// RelationshipCollection returns the unprefixed collection name of relationships.
func RelationshipCollection() string {
	return relationshipsCollection
}

func (f *Firestore) nodes(label types.NodeLabel) *firestore.CollectionRef {
	return f.client.Collection(f.collectionPrefix + NodeCollection(label))
}

func (f *Firestore) relationships() *firestore.CollectionRef {
	return f.client.Collection(f.collectionPrefix + relationshipsCollection)
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
