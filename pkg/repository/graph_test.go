package repository_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"github.com/secmon-lab/synapse/pkg/repository/firestore"
	"github.com/secmon-lab/synapse/pkg/repository/memory"
	"github.com/secmon-lab/synapse/pkg/repository/sqlite"
)

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), rand.IntN(1_000_000))
}

func randomVector(rng *rand.Rand) []float32 {
	v := make([]float32, model.EmbeddingDimension)
	var norm float64
	for i := range v {
		v[i] = float32(rng.NormFloat64())
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// blend returns w*a + (1-w)*b
func blend(a, b []float32, w float32) []float32 {
	v := make([]float32, len(a))
	for i := range a {
		v[i] = w*a[i] + (1-w)*b[i]
	}
	return v
}

func ticketNode(id string, embedding []float32) *model.Node {
	return &model.Node{
		Label:      types.LabelTicket,
		Properties: model.Properties{"id": id, "summary": "summary of " + id},
		Embedding:  embedding,
	}
}

func nodeIDs(nodes []*model.ScoredNode) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		_, id, _ := n.Node.Key()
		ids = append(ids, id)
	}
	return ids
}

func only(ids []string, want map[string]bool) []string {
	var out []string
	for _, id := range ids {
		if want[id] {
			out = append(out, id)
		}
	}
	return out
}

func runGraphStoreTest(t *testing.T, newStore func(t *testing.T) interfaces.GraphStore) {
	t.Helper()

	t.Run("UpsertNode merges properties by unique key", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		id := uniqueID("T")

		gt.NoError(t, store.UpsertNode(ctx, &model.Node{
			Label:      types.LabelTicket,
			Properties: model.Properties{"id": id, "summary": "first", "status": "open"},
		})).Required()
		gt.NoError(t, store.UpsertNode(ctx, &model.Node{
			Label:      types.LabelTicket,
			Properties: model.Properties{"id": id, "summary": "second"},
		})).Required()

		n, err := store.GetNode(ctx, model.NodeRef{Label: types.LabelTicket, ID: id})
		gt.NoError(t, err).Required()
		gt.Value(t, n).NotNil()
		gt.Value(t, n.Properties.String("summary")).Equal("second")
		gt.Value(t, n.Properties.String("status")).Equal("open")
	})

	t.Run("UpsertNode keeps numeric and bool properties", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		id := uniqueID("E")

		gt.NoError(t, store.UpsertNode(ctx, &model.Node{
			Label:      types.LabelEvent,
			Properties: model.Properties{"id": id, "timestamp": int64(1700000000), "embedding_missing": true},
		})).Required()

		n, err := store.GetNode(ctx, model.NodeRef{Label: types.LabelEvent, ID: id})
		gt.NoError(t, err).Required()
		gt.Value(t, n.Properties.Int64("timestamp")).Equal(int64(1700000000))
		gt.Bool(t, n.Properties.Bool("embedding_missing")).True()
	})

	t.Run("UpsertNode without unique key is a configuration error", func(t *testing.T) {
		store := newStore(t)
		err := store.UpsertNode(context.Background(), &model.Node{
			Label:      types.LabelUser,
			Properties: model.Properties{"name": "Bob"},
		})
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("UpsertNode with unknown label is a configuration error", func(t *testing.T) {
		store := newStore(t)
		err := store.UpsertNode(context.Background(), &model.Node{
			Label:      "Person",
			Properties: model.Properties{"id": "p1"},
		})
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("GetNode returns nil for missing node", func(t *testing.T) {
		store := newStore(t)
		n, err := store.GetNode(context.Background(), model.NodeRef{Label: types.LabelChain, ID: uniqueID("missing")})
		gt.NoError(t, err).Required()
		gt.Value(t, n).Nil()
	})

	t.Run("node ids with separators are preserved", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		term := "ci/cd " + uniqueID("k") + " ../.."

		gt.NoError(t, store.UpsertNode(ctx, model.KeywordNode(term))).Required()
		n, err := store.GetNode(ctx, model.KeywordRef(term))
		gt.NoError(t, err).Required()
		gt.Value(t, n).NotNil()
		gt.Value(t, n.Properties.String("term")).Equal(term)
	})

	t.Run("UpsertRelationship is unique per triple", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		from := model.NodeRef{Label: types.LabelEvent, ID: uniqueID("e")}
		to := model.NodeRef{Label: types.LabelEvent, ID: uniqueID("e")}

		for range 3 {
			gt.NoError(t, store.UpsertRelationship(ctx, &model.Relationship{From: from, To: to, Type: types.RelNext})).Required()
		}
		gt.NoError(t, store.UpsertRelationship(ctx, &model.Relationship{
			From: from, To: to, Type: types.RelMentions,
		})).Required()

		rels, err := store.ListRelationships(ctx, model.RelationshipFilter{From: &from})
		gt.NoError(t, err).Required()
		gt.Array(t, rels).Length(2)

		next, err := store.ListRelationships(ctx, model.RelationshipFilter{From: &from, Type: types.RelNext})
		gt.NoError(t, err).Required()
		gt.Array(t, next).Length(1)
		gt.Value(t, next[0].To).Equal(to)

		incoming, err := store.ListRelationships(ctx, model.RelationshipFilter{To: &to, Type: types.RelNext})
		gt.NoError(t, err).Required()
		gt.Array(t, incoming).Length(1)
		gt.Value(t, incoming[0].From).Equal(from)
	})

	t.Run("UpsertRelationship with unknown type is a configuration error", func(t *testing.T) {
		store := newStore(t)
		err := store.UpsertRelationship(context.Background(), &model.Relationship{
			From: model.NodeRef{Label: types.LabelEvent, ID: "a"},
			To:   model.NodeRef{Label: types.LabelEvent, ID: "b"},
			Type: "FOLLOWS",
		})
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("ListNodes returns nodes of one label", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		email := uniqueID("user") + "@example.com"

		gt.NoError(t, store.UpsertNode(ctx, (&model.User{Email: email, Name: "Bob"}).ToNode())).Required()
		gt.NoError(t, store.UpsertNode(ctx, ticketNode(uniqueID("T"), nil))).Required()

		users, err := store.ListNodes(ctx, types.LabelUser)
		gt.NoError(t, err).Required()
		found := false
		for _, u := range users {
			gt.Value(t, u.Label).Equal(types.LabelUser)
			if u.Properties.String("email") == email {
				found = true
				gt.Value(t, u.Properties.String("name")).Equal("Bob")
			}
		}
		gt.Bool(t, found).True()
	})

	t.Run("QueryVector ranks by cosine similarity within one label", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 7))
		base := randomVector(rng)
		other := randomVector(rng)

		best, close, far, none := uniqueID("best"), uniqueID("close"), uniqueID("far"), uniqueID("none")
		gt.NoError(t, store.UpsertNode(ctx, ticketNode(far, other))).Required()
		gt.NoError(t, store.UpsertNode(ctx, ticketNode(best, base))).Required()
		gt.NoError(t, store.UpsertNode(ctx, ticketNode(close, blend(base, other, 0.7)))).Required()
		gt.NoError(t, store.UpsertNode(ctx, ticketNode(none, nil))).Required()

		// same vector under another label must not leak into the ticket index
		msgID := uniqueID("msg")
		gt.NoError(t, store.UpsertNode(ctx, &model.Node{
			Label:      types.LabelMessage,
			Properties: model.Properties{"id": msgID, "text": "hello"},
			Embedding:  base,
		})).Required()

		top2, err := store.QueryVector(ctx, types.IndexTicketSemantic, 2, base)
		gt.NoError(t, err).Required()
		gt.Array(t, top2).Length(2)
		gt.Value(t, nodeIDs(top2)).Equal([]string{best, close})
		gt.Number(t, top2[0].Score).GreaterOrEqual(top2[1].Score)

		all, err := store.QueryVector(ctx, types.IndexTicketSemantic, 10, base)
		gt.NoError(t, err).Required()
		ours := map[string]bool{best: true, close: true, far: true, none: true, msgID: true}
		gt.Value(t, only(nodeIDs(all), ours)).Equal([]string{best, close, far})
		for _, r := range all {
			gt.Number(t, r.Score).GreaterOrEqual(-1)
			gt.Bool(t, r.Score <= 1).True()
		}

		msgs, err := store.QueryVector(ctx, types.IndexMessageSemantic, 1, base)
		gt.NoError(t, err).Required()
		gt.Value(t, nodeIDs(msgs)).Equal([]string{msgID})
	})

	t.Run("QueryVector skips nodes flagged without embedding", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 11))
		base := randomVector(rng)
		id := uniqueID("flagged")

		gt.NoError(t, store.UpsertNode(ctx, &model.Node{
			Label:      types.LabelEvent,
			Properties: model.Properties{"id": id, "embedding_missing": true},
			Embedding:  base,
		})).Required()

		hits, err := store.QueryVector(ctx, types.IndexEventSemantic, 5, base)
		gt.NoError(t, err).Required()
		gt.Array(t, only(nodeIDs(hits), map[string]bool{id: true})).Length(0)
	})

	t.Run("QueryVector on unknown index is a configuration error", func(t *testing.T) {
		store := newStore(t)
		_, err := store.QueryVector(context.Background(), "user_index", 5, []float32{1})
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("RunTransaction commits all writes", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		chain := model.ChainID(uniqueID("C"))
		eventID := uniqueID("e")

		err := store.RunTransaction(ctx, "chain:"+string(chain), func(ctx context.Context, tx interfaces.GraphTx) error {
			anchor, err := tx.GetNode(chain.Ref())
			if err != nil {
				return err
			}
			if anchor != nil {
				return errors.New("anchor should not exist yet")
			}
			if err := tx.UpsertNode((&model.Chain{ID: chain, HeadID: model.EventID(eventID), TailID: model.EventID(eventID), Length: 1}).ToNode()); err != nil {
				return err
			}
			if err := tx.UpsertNode(&model.Node{Label: types.LabelEvent, Properties: model.Properties{"id": eventID}}); err != nil {
				return err
			}
			return tx.UpsertRelationship(&model.Relationship{
				From: chain.Ref(),
				To:   model.NodeRef{Label: types.LabelEvent, ID: eventID},
				Type: types.RelHasEvent,
			})
		})
		gt.NoError(t, err).Required()

		anchor, err := store.GetNode(ctx, chain.Ref())
		gt.NoError(t, err).Required()
		c, err := model.ChainFromNode(anchor)
		gt.NoError(t, err).Required()
		gt.Value(t, c.TailID).Equal(model.EventID(eventID))

		ref := chain.Ref()
		rels, err := store.ListRelationships(ctx, model.RelationshipFilter{From: &ref, Type: types.RelHasEvent})
		gt.NoError(t, err).Required()
		gt.Array(t, rels).Length(1)
	})

	t.Run("RunTransaction leaves no partial state on error", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		chain := model.ChainID(uniqueID("C"))
		eventID := uniqueID("e")
		boom := errors.New("boom")

		err := store.RunTransaction(ctx, "chain:"+string(chain), func(ctx context.Context, tx interfaces.GraphTx) error {
			if _, err := tx.GetNode(chain.Ref()); err != nil {
				return err
			}
			if err := tx.UpsertNode((&model.Chain{ID: chain}).ToNode()); err != nil {
				return err
			}
			if err := tx.UpsertRelationship(&model.Relationship{
				From: chain.Ref(),
				To:   model.NodeRef{Label: types.LabelEvent, ID: eventID},
				Type: types.RelHasEvent,
			}); err != nil {
				return err
			}
			return boom
		})
		gt.Error(t, err).Is(boom)

		anchor, err := store.GetNode(ctx, chain.Ref())
		gt.NoError(t, err).Required()
		gt.Value(t, anchor).Nil()

		ref := chain.Ref()
		rels, err := store.ListRelationships(ctx, model.RelationshipFilter{From: &ref})
		gt.NoError(t, err).Required()
		gt.Array(t, rels).Length(0)
	})

	t.Run("RunTransaction rejects reads after writes", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		chain := model.ChainID(uniqueID("C"))

		err := store.RunTransaction(ctx, "chain:"+string(chain), func(ctx context.Context, tx interfaces.GraphTx) error {
			if err := tx.UpsertNode((&model.Chain{ID: chain}).ToNode()); err != nil {
				return err
			}
			_, err := tx.GetNode(chain.Ref())
			return err
		})
		gt.Value(t, err).NotNil()

		anchor, err := store.GetNode(ctx, chain.Ref())
		gt.NoError(t, err).Required()
		gt.Value(t, anchor).Nil()
	})

	t.Run("RunTransaction serializes one scope", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		chain := model.ChainID(uniqueID("C"))
		const n = 8

		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = store.RunTransaction(ctx, "chain:"+string(chain), func(ctx context.Context, tx interfaces.GraphTx) error {
					node, err := tx.GetNode(chain.Ref())
					if err != nil {
						return err
					}
					c := &model.Chain{ID: chain}
					if node != nil {
						if c, err = model.ChainFromNode(node); err != nil {
							return err
						}
					}
					c.Length++
					return tx.UpsertNode(c.ToNode())
				})
			}()
		}
		wg.Wait()
		for _, err := range errs {
			gt.NoError(t, err)
		}

		anchor, err := store.GetNode(ctx, chain.Ref())
		gt.NoError(t, err).Required()
		c, err := model.ChainFromNode(anchor)
		gt.NoError(t, err).Required()
		gt.Number(t, c.Length).Equal(n)
	})

	t.Run("DeleteNode removes the node and its relationships", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		e1 := model.NodeRef{Label: types.LabelEvent, ID: uniqueID("e")}
		e2 := model.NodeRef{Label: types.LabelEvent, ID: uniqueID("e")}
		e3 := model.NodeRef{Label: types.LabelEvent, ID: uniqueID("e")}
		for _, ref := range []model.NodeRef{e1, e2, e3} {
			gt.NoError(t, store.UpsertNode(ctx, &model.Node{Label: ref.Label, Properties: model.Properties{"id": ref.ID}})).Required()
		}
		for _, rel := range []*model.Relationship{
			{From: e1, To: e2, Type: types.RelNext},
			{From: e2, To: e3, Type: types.RelNext},
			{From: e2, To: e2, Type: types.RelMentions},
			{From: e1, To: e3, Type: types.RelMentions},
		} {
			gt.NoError(t, store.UpsertRelationship(ctx, rel)).Required()
		}

		gt.NoError(t, store.DeleteNode(ctx, e2)).Required()

		n, err := store.GetNode(ctx, e2)
		gt.NoError(t, err).Required()
		gt.Value(t, n).Nil()

		from, err := store.ListRelationships(ctx, model.RelationshipFilter{From: &e2})
		gt.NoError(t, err).Required()
		gt.Array(t, from).Length(0)
		to, err := store.ListRelationships(ctx, model.RelationshipFilter{To: &e2})
		gt.NoError(t, err).Required()
		gt.Array(t, to).Length(0)

		kept, err := store.ListRelationships(ctx, model.RelationshipFilter{From: &e1})
		gt.NoError(t, err).Required()
		gt.Array(t, kept).Length(1)
		gt.Value(t, kept[0].To).Equal(e3)

		survivor, err := store.GetNode(ctx, e3)
		gt.NoError(t, err).Required()
		gt.Value(t, survivor).NotNil()

		gt.NoError(t, store.DeleteNode(ctx, e2))
	})

	t.Run("WipeAll removes nodes and relationships", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		id := uniqueID("T")
		term := uniqueID("kw")

		gt.NoError(t, store.UpsertNode(ctx, ticketNode(id, nil))).Required()
		gt.NoError(t, store.UpsertNode(ctx, model.KeywordNode(term))).Required()
		gt.NoError(t, store.UpsertRelationship(ctx, &model.Relationship{
			From: model.NodeRef{Label: types.LabelTicket, ID: id},
			To:   model.KeywordRef(term),
			Type: types.RelMentions,
		})).Required()

		gt.NoError(t, store.WipeAll(ctx)).Required()

		n, err := store.GetNode(ctx, model.NodeRef{Label: types.LabelTicket, ID: id})
		gt.NoError(t, err).Required()
		gt.Value(t, n).Nil()

		rels, err := store.ListRelationships(ctx, model.RelationshipFilter{Type: types.RelMentions})
		gt.NoError(t, err).Required()
		gt.Array(t, rels).Length(0)
	})
}

// runFreshGraphStoreTest covers behavior that needs a store nobody else writes to.
func runFreshGraphStoreTest(t *testing.T, newStore func(t *testing.T) interfaces.GraphStore) {
	t.Helper()

	t.Run("QueryVector on an empty index returns no results", func(t *testing.T) {
		store := newStore(t)
		hits, err := store.QueryVector(context.Background(), types.IndexDocumentPage, 5, make([]float32, model.EmbeddingDimension))
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(0)
	})

	t.Run("ListNodes is sorted by key", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, term := range []string{"phoenix", "database lock", "project"} {
			gt.NoError(t, store.UpsertNode(ctx, model.KeywordNode(term))).Required()
		}
		nodes, err := store.ListNodes(ctx, types.LabelKeyword)
		gt.NoError(t, err).Required()
		gt.Array(t, nodes).Length(3)
		gt.Value(t, nodes[0].Properties.String("term")).Equal("database lock")
		gt.Value(t, nodes[2].Properties.String("term")).Equal("project")
	})
}

func newMemoryGraphStore(t *testing.T) interfaces.GraphStore {
	return memory.New()
}

func newSQLiteGraphStore(t *testing.T) interfaces.GraphStore {
	t.Helper()

	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "graph.db"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close sqlite store: %v", err)
		}
	})
	return store
}

func newFirestoreGraphStore(t *testing.T) interfaces.GraphStore {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	// Vector indexes for the "test_" collections are created by
	// `synapse migrate --collection-prefix test_`. Isolation between tests
	// relies on random ids.
	store, err := firestore.New(context.Background(), projectID, databaseID, firestore.WithCollectionPrefix("test_"))
	if err != nil {
		t.Fatalf("failed to create firestore store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close firestore store: %v", err)
		}
	})
	return store
}

func TestMemoryGraphStore(t *testing.T) {
	runGraphStoreTest(t, newMemoryGraphStore)
	runFreshGraphStoreTest(t, newMemoryGraphStore)
}

// A transaction whose read went stale before commit runs again and sees
// the newer state, even when the writer used another scope.
func TestMemoryGraphStore_StaleReadRetried(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	ref := model.NodeRef{Label: types.LabelEvent, ID: "shared"}

	attempts := 0
	var seen []string
	err := store.RunTransaction(ctx, "chain:A", func(ctx context.Context, tx interfaces.GraphTx) error {
		attempts++
		node, err := tx.GetNode(ref)
		if err != nil {
			return err
		}
		if node != nil {
			seen = append(seen, node.Properties.String("chain_id"))
			return nil
		}
		seen = append(seen, "")

		if attempts == 1 {
			// another scope links the event between our read and commit
			if err := store.RunTransaction(ctx, "chain:B", func(ctx context.Context, tx interfaces.GraphTx) error {
				return tx.UpsertNode(&model.Node{Label: types.LabelEvent, Properties: model.Properties{"id": "shared", "chain_id": "B"}})
			}); err != nil {
				return err
			}
		}
		return tx.UpsertNode(&model.Node{Label: types.LabelEvent, Properties: model.Properties{"id": "shared", "chain_id": "A"}})
	})
	gt.NoError(t, err).Required()
	gt.Number(t, attempts).Equal(2)
	gt.Value(t, seen).Equal([]string{"", "B"})

	node, err := store.GetNode(ctx, ref)
	gt.NoError(t, err).Required()
	gt.Value(t, node.Properties.String("chain_id")).Equal("B")
}

func TestMemoryGraphStore_StaleReadGivesUp(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	ref := model.NodeRef{Label: types.LabelKeyword, ID: "hot"}

	attempts := 0
	err := store.RunTransaction(ctx, "scope:reader", func(ctx context.Context, tx interfaces.GraphTx) error {
		attempts++
		if _, err := tx.GetNode(ref); err != nil {
			return err
		}
		if err := store.UpsertNode(ctx, model.KeywordNode("hot")); err != nil {
			return err
		}
		return tx.UpsertNode(&model.Node{Label: types.LabelTicket, Properties: model.Properties{"id": "T-1"}})
	})
	gt.Value(t, err).NotNil()
	gt.Number(t, attempts).Equal(5)

	n, err := store.GetNode(ctx, model.NodeRef{Label: types.LabelTicket, ID: "T-1"})
	gt.NoError(t, err).Required()
	gt.Value(t, n).Nil()
}

func TestSQLiteGraphStore(t *testing.T) {
	runGraphStoreTest(t, newSQLiteGraphStore)
	runFreshGraphStoreTest(t, newSQLiteGraphStore)
}

func TestFirestoreGraphStore(t *testing.T) {
	runGraphStoreTest(t, newFirestoreGraphStore)
}
