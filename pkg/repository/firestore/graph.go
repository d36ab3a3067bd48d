package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Document field names
const (
	fieldKey        = "Key"
	fieldProperties = "Properties"
	fieldEmbedding  = "Embedding"
	fieldFromLabel  = "FromLabel"
	fieldFromID     = "FromID"
	fieldType       = "Type"
	fieldToLabel    = "ToLabel"
	fieldToID       = "ToID"
	fieldDistance   = "vector_distance"
)

// nodeDoc is the Firestore document of a node. Embedding is stored as
// firestore.Vector32 so that FindNearest vector search works.
type nodeDoc struct {
	Key        string             `firestore:"Key"`
	Properties map[string]any     `firestore:"Properties"`
	Embedding  firestore.Vector32 `firestore:"Embedding,omitempty"`
}

type relationshipDoc struct {
	FromLabel  string         `firestore:"FromLabel"`
	FromID     string         `firestore:"FromID"`
	Type       string         `firestore:"Type"`
	ToLabel    string         `firestore:"ToLabel"`
	ToID       string         `firestore:"ToID"`
	Properties map[string]any `firestore:"Properties"`
}

// nodeDocID escapes a unique key into a valid document id ("/" and "."
// are not allowed verbatim).
func nodeDocID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func relationshipDocID(rel *model.Relationship) string {
	sum := sha256.Sum256([]byte(rel.Key()))
	return hex.EncodeToString(sum[:])
}

// nodeData is written with MergeAll; an absent embedding keeps the stored one.
func nodeData(ref model.NodeRef, node *model.Node) map[string]any {
	props := map[string]any(node.Properties.Clone())
	data := map[string]any{
		fieldKey:        ref.ID,
		fieldProperties: props,
	}
	if len(node.Embedding) > 0 {
		data[fieldEmbedding] = firestore.Vector32(node.Embedding)
	}
	return data
}

// relationshipData omits empty properties so a re-upsert never clears stored ones.
func relationshipData(rel *model.Relationship) map[string]any {
	data := map[string]any{
		fieldFromLabel: string(rel.From.Label),
		fieldFromID:    rel.From.ID,
		fieldType:      string(rel.Type),
		fieldToLabel:   string(rel.To.Label),
		fieldToID:      rel.To.ID,
	}
	if len(rel.Properties) > 0 {
		data[fieldProperties] = map[string]any(rel.Properties.Clone())
	}
	return data
}

func docToNode(label types.NodeLabel, doc *firestore.DocumentSnapshot) (*model.Node, error) {
	var d nodeDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal node", goerr.V("label", label), goerr.V("doc", doc.Ref.ID))
	}
	n := &model.Node{Label: label, Properties: model.Properties(d.Properties)}
	if n.Properties == nil {
		n.Properties = model.Properties{}
	}
	if len(d.Embedding) > 0 {
		n.Embedding = []float32(d.Embedding)
	}
	return n, nil
}

func docToRelationship(doc *firestore.DocumentSnapshot) (*model.Relationship, error) {
	var d relationshipDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal relationship", goerr.V("doc", doc.Ref.ID))
	}
	props := model.Properties(d.Properties)
	if props == nil {
		props = model.Properties{}
	}
	return &model.Relationship{
		From:       model.NodeRef{Label: types.NodeLabel(d.FromLabel), ID: d.FromID},
		To:         model.NodeRef{Label: types.NodeLabel(d.ToLabel), ID: d.ToID},
		Type:       types.RelType(d.Type),
		Properties: props,
	}, nil
}

func (f *Firestore) nodeRef(ref model.NodeRef) *firestore.DocumentRef {
	return f.nodes(ref.Label).Doc(nodeDocID(ref.ID))
}

func (f *Firestore) relationshipRef(rel *model.Relationship) *firestore.DocumentRef {
	return f.relationships().Doc(relationshipDocID(rel))
}

func (f *Firestore) GetNode(ctx context.Context, ref model.NodeRef) (*model.Node, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	doc, err := f.nodeRef(ref).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get node", goerr.V("ref", ref.String()))
	}
	return docToNode(ref.Label, doc)
}

func (f *Firestore) UpsertNode(ctx context.Context, node *model.Node) error {
	ref, err := node.Ref()
	if err != nil {
		return err
	}
	if _, err := f.nodeRef(ref).Set(ctx, nodeData(ref, node), firestore.MergeAll); err != nil {
		return goerr.Wrap(err, "failed to upsert node", goerr.V("ref", ref.String()))
	}
	return nil
}

func (f *Firestore) UpsertRelationship(ctx context.Context, rel *model.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	if _, err := f.relationshipRef(rel).Set(ctx, relationshipData(rel), firestore.MergeAll); err != nil {
		return goerr.Wrap(err, "failed to upsert relationship", goerr.V("key", rel.Key()))
	}
	return nil
}

// DeleteNode deletes the node document and the relationship documents
// matching it on either end.
func (f *Firestore) DeleteNode(ctx context.Context, ref model.NodeRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	bulkWriter := f.client.BulkWriter(ctx)
	defer bulkWriter.End()

	job, err := bulkWriter.Delete(f.nodeRef(ref))
	if err != nil {
		return goerr.Wrap(err, "failed to add Delete operation to bulk writer", goerr.V("ref", ref.String()))
	}
	jobs := []*firestore.BulkWriterJob{job}

	// a self loop matches both queries but may be deleted only once
	seen := make(map[string]struct{})
	queries := []firestore.Query{
		f.relationships().Where(fieldFromLabel, "==", string(ref.Label)).Where(fieldFromID, "==", ref.ID),
		f.relationships().Where(fieldToLabel, "==", string(ref.Label)).Where(fieldToID, "==", ref.ID),
	}
	for _, q := range queries {
		iter := q.Documents(ctx)
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				return goerr.Wrap(err, "failed to iterate relationships for deletion", goerr.V("ref", ref.String()))
			}
			if _, ok := seen[doc.Ref.ID]; ok {
				continue
			}
			seen[doc.Ref.ID] = struct{}{}

			job, err := bulkWriter.Delete(doc.Ref)
			if err != nil {
				iter.Stop()
				return goerr.Wrap(err, "failed to add Delete operation to bulk writer", goerr.V("ref", ref.String()))
			}
			jobs = append(jobs, job)
		}
		iter.Stop()
	}

	bulkWriter.Flush()
	return bulkErrors(jobs, "failed to delete node")
}

func (f *Firestore) ListNodes(ctx context.Context, label types.NodeLabel) ([]*model.Node, error) {
	if !label.IsValid() {
		return nil, goerr.Wrap(model.ErrConfiguration, "invalid node label", goerr.V("label", label))
	}

	iter := f.nodes(label).OrderBy(fieldKey, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	nodes := make([]*model.Node, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate nodes", goerr.V("label", label))
		}

		n, err := docToNode(label, doc)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	return nodes, nil
}

func (f *Firestore) ListRelationships(ctx context.Context, filter model.RelationshipFilter) ([]*model.Relationship, error) {
	q := f.relationships().Query
	if filter.Type != "" {
		q = q.Where(fieldType, "==", string(filter.Type))
	}
	if filter.From != nil {
		q = q.Where(fieldFromLabel, "==", string(filter.From.Label)).Where(fieldFromID, "==", filter.From.ID)
	}
	if filter.To != nil {
		q = q.Where(fieldToLabel, "==", string(filter.To.Label)).Where(fieldToID, "==", filter.To.ID)
	}
	if filter.FromLabel != "" {
		q = q.Where(fieldFromLabel, "==", string(filter.FromLabel))
	}
	if filter.ToLabel != "" {
		q = q.Where(fieldToLabel, "==", string(filter.ToLabel))
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	rels := make([]*model.Relationship, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate relationships")
		}

		rel, err := docToRelationship(doc)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}

	sort.Slice(rels, func(i, j int) bool { return rels[i].Key() < rels[j].Key() })
	return rels, nil
}

// QueryVector runs FindNearest with cosine distance; the score is 1 - distance.
func (f *Firestore) QueryVector(ctx context.Context, index types.VectorIndex, k int, embedding []float32) ([]*model.ScoredNode, error) {
	label := index.Label()
	if label == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "unknown vector index", goerr.V("index", index))
	}
	if k <= 0 || len(embedding) == 0 {
		return []*model.ScoredNode{}, nil
	}

	vq := f.nodes(label).FindNearest(fieldEmbedding, firestore.Vector32(embedding), k,
		firestore.DistanceMeasureCosine, &firestore.FindNearestOptions{DistanceResultField: fieldDistance})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*model.ScoredNode, 0, k)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return []*model.ScoredNode{}, nil
			}
			return nil, goerr.Wrap(err, "failed to iterate vector search results", goerr.V("index", index))
		}

		n, err := docToNode(label, doc)
		if err != nil {
			return nil, err
		}
		if n.Properties.Bool("embedding_missing") {
			continue
		}

		var distance float64
		if v, ok := doc.Data()[fieldDistance].(float64); ok {
			distance = v
		}
		results = append(results, &model.ScoredNode{
			Node:  n,
			Score: max(-1, min(1, 1-distance)),
		})
	}

	return results, nil
}

// WipeAll deletes all documents of every node collection and of the
// relationships collection. A delete rejected by the bulk writer fails the wipe.
func (f *Firestore) WipeAll(ctx context.Context) error {
	collections := []*firestore.CollectionRef{f.relationships()}
	for _, label := range types.AllNodeLabels() {
		collections = append(collections, f.nodes(label))
	}

	bulkWriter := f.client.BulkWriter(ctx)
	defer bulkWriter.End()

	var jobs []*firestore.BulkWriterJob
	for _, col := range collections {
		iter := col.DocumentRefs(ctx)
		for {
			ref, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return goerr.Wrap(err, "failed to iterate documents for deletion", goerr.V("collection", col.ID))
			}
			job, err := bulkWriter.Delete(ref)
			if err != nil {
				return goerr.Wrap(err, "failed to add Delete operation to bulk writer")
			}
			jobs = append(jobs, job)
		}
	}

	bulkWriter.Flush()
	return bulkErrors(jobs, "failed to delete documents")
}

// bulkErrors waits for every job and joins their errors
func bulkErrors(jobs []*firestore.BulkWriterJob, msg string) error {
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return goerr.Wrap(errors.Join(errs...), msg, goerr.V("failed", len(errs)), goerr.V("total", len(jobs)))
	}
	return nil
}

type transaction struct {
	store *Firestore
	tx    *firestore.Transaction
}

var _ interfaces.GraphTx = &transaction{}

func (t *transaction) GetNode(ref model.NodeRef) (*model.Node, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	doc, err := t.tx.Get(t.store.nodeRef(ref))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get node in transaction", goerr.V("ref", ref.String()))
	}
	return docToNode(ref.Label, doc)
}

func (t *transaction) UpsertNode(node *model.Node) error {
	ref, err := node.Ref()
	if err != nil {
		return err
	}
	return t.tx.Set(t.store.nodeRef(ref), nodeData(ref, node), firestore.MergeAll)
}

func (t *transaction) UpsertRelationship(rel *model.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	return t.tx.Set(t.store.relationshipRef(rel), relationshipData(rel), firestore.MergeAll)
}

// RunTransaction uses Firestore's optimistic transactions: conflicting
// transactions on the same documents are retried by the client, so scope is
// only used for error context.
func (f *Firestore) RunTransaction(ctx context.Context, scope string, fn func(ctx context.Context, tx interfaces.GraphTx) error) error {
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &transaction{store: f, tx: tx})
	})
	if err != nil {
		return goerr.Wrap(err, "firestore transaction failed", goerr.V("scope", scope))
	}
	return nil
}
