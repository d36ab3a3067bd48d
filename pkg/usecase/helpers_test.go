package usecase_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"github.com/secmon-lab/synapse/pkg/repository/memory"
	"github.com/secmon-lab/synapse/pkg/repository/sqlite"
	"github.com/secmon-lab/synapse/pkg/usecase"
)

// wordEmbedder hashes every word into one of the dimensions, so texts
// sharing words are close.
type wordEmbedder struct{}

func (wordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, model.EmbeddingDimension)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,!?'")))
		v[h.Sum32()%model.EmbeddingDimension]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v, nil
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	return m.embedFn(ctx, text)
}

var errEmbedderDown = errors.New("embedder down")

func failingEmbedder() *mockEmbedder {
	return &mockEmbedder{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errEmbedderDown
		},
	}
}

// mockStore wraps a real store and lets a test override single operations.
type mockStore struct {
	interfaces.GraphStore

	queryVectorFn      func(ctx context.Context, index types.VectorIndex, k int, embedding []float32) ([]*model.ScoredNode, error)
	runTransactionFn   func(ctx context.Context, scope string, fn func(ctx context.Context, tx interfaces.GraphTx) error) error
	upsertRelationship func(ctx context.Context, rel *model.Relationship) error
}

func (m *mockStore) UpsertRelationship(ctx context.Context, rel *model.Relationship) error {
	if m.upsertRelationship != nil {
		return m.upsertRelationship(ctx, rel)
	}
	return m.GraphStore.UpsertRelationship(ctx, rel)
}

func (m *mockStore) QueryVector(ctx context.Context, index types.VectorIndex, k int, embedding []float32) ([]*model.ScoredNode, error) {
	if m.queryVectorFn != nil {
		return m.queryVectorFn(ctx, index, k, embedding)
	}
	return m.GraphStore.QueryVector(ctx, index, k, embedding)
}

func (m *mockStore) RunTransaction(ctx context.Context, scope string, fn func(ctx context.Context, tx interfaces.GraphTx) error) error {
	if m.runTransactionFn != nil {
		return m.runTransactionFn(ctx, scope, fn)
	}
	return m.GraphStore.RunTransaction(ctx, scope, fn)
}

// mockTx wraps a transaction and lets a test override its writes.
type mockTx struct {
	interfaces.GraphTx

	upsertNodeFn         func(node *model.Node) error
	upsertRelationshipFn func(rel *model.Relationship) error
}

func (m *mockTx) UpsertNode(node *model.Node) error {
	if m.upsertNodeFn != nil {
		return m.upsertNodeFn(node)
	}
	return m.GraphTx.UpsertNode(node)
}

func (m *mockTx) UpsertRelationship(rel *model.Relationship) error {
	if m.upsertRelationshipFn != nil {
		return m.upsertRelationshipFn(rel)
	}
	return m.GraphTx.UpsertRelationship(rel)
}

// holdBeforeWrite makes the first parties transactions wait at their first
// write until all of them got there, so all their reads happen before any
// of them commits. Later transactions, retries included, pass through.
func holdBeforeWrite(inner interfaces.GraphStore, parties int32) func(ctx context.Context, scope string, fn func(ctx context.Context, tx interfaces.GraphTx) error) error {
	var arrived atomic.Int32
	release := make(chan struct{})
	arrive := func() {
		n := arrived.Add(1)
		if n == parties {
			close(release)
		}
		if n <= parties {
			<-release
		}
	}

	return func(ctx context.Context, scope string, fn func(ctx context.Context, tx interfaces.GraphTx) error) error {
		return inner.RunTransaction(ctx, scope, func(ctx context.Context, tx interfaces.GraphTx) error {
			var once sync.Once
			return fn(ctx, &mockTx{
				GraphTx: tx,
				upsertNodeFn: func(node *model.Node) error {
					once.Do(arrive)
					return tx.UpsertNode(node)
				},
			})
		})
	}
}

var errCommitFailed = errors.New("commit failed")

// failCommits runs fn with the real store and then aborts, as if the commit
// was rejected.
func failCommits(inner interfaces.GraphStore) func(ctx context.Context, scope string, fn func(ctx context.Context, tx interfaces.GraphTx) error) error {
	return func(ctx context.Context, scope string, fn func(ctx context.Context, tx interfaces.GraphTx) error) error {
		return inner.RunTransaction(ctx, scope, func(ctx context.Context, tx interfaces.GraphTx) error {
			if err := fn(ctx, tx); err != nil {
				return err
			}
			return errCommitFailed
		})
	}
}

// fixedClock returns a clock starting at base that advances one second per call
func fixedClock(base time.Time) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)-1) * time.Second)
	}
}

var testBase = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type graphBackend struct {
	name     string
	newStore func(t *testing.T) interfaces.GraphStore
}

// graphBackends lists the stores chain behavior is checked against
func graphBackends() []graphBackend {
	return []graphBackend{
		{
			name: "memory",
			newStore: func(t *testing.T) interfaces.GraphStore {
				return memory.New()
			},
		},
		{
			name: "sqlite",
			newStore: func(t *testing.T) interfaces.GraphStore {
				store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "graph.db"))
				if err != nil {
					t.Fatalf("failed to open sqlite store: %v", err)
				}
				t.Cleanup(func() {
					if err := store.Close(); err != nil {
						t.Errorf("failed to close sqlite store: %v", err)
					}
				})
				return store
			},
		},
	}
}

func newTestUseCases(opts ...usecase.Option) (*usecase.UseCases, *memory.Memory) {
	store := memory.New()
	opts = append([]usecase.Option{
		usecase.WithEmbedder(wordEmbedder{}),
		usecase.WithClock(fixedClock(testBase)),
	}, opts...)
	return usecase.New(store, opts...), store
}

func countRels(ctx context.Context, store interfaces.GraphReader, filter model.RelationshipFilter) int {
	rels, err := store.ListRelationships(ctx, filter)
	if err != nil {
		panic(err)
	}
	return len(rels)
}

func countNodes(ctx context.Context, store interfaces.GraphReader, label types.NodeLabel) int {
	nodes, err := store.ListNodes(ctx, label)
	if err != nil {
		panic(err)
	}
	return len(nodes)
}

func jiraObservation(caseID, user, text, externalID string) *model.Observation {
	return &model.Observation{
		Source:     types.SourceJiraComment,
		CaseID:     model.ChainID(caseID),
		User:       user,
		Text:       text,
		ExternalID: externalID,
	}
}
