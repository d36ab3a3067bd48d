package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

// Memory is an in-process GraphStore for development and tests.
type Memory struct {
	mu    sync.RWMutex
	nodes map[types.NodeLabel]map[string]*model.Node
	rels  map[string]*model.Relationship

	// versions holds the write sequence of every node, seq is never reused
	versions map[model.NodeRef]uint64
	seq      uint64

	scopes *scopeLocks
}

var _ interfaces.GraphStore = &Memory{}

func New() *Memory {
	return &Memory{
		nodes:    make(map[types.NodeLabel]map[string]*model.Node),
		rels:     make(map[string]*model.Relationship),
		versions: make(map[model.NodeRef]uint64),
		scopes:   newScopeLocks(),
	}
}

func (m *Memory) GetNode(ctx context.Context, ref model.NodeRef) (*model.Node, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.nodes[ref.Label][ref.ID].Clone(), nil
}

func (m *Memory) ListNodes(ctx context.Context, label types.NodeLabel) ([]*model.Node, error) {
	if !label.IsValid() {
		return nil, goerr.Wrap(model.ErrConfiguration, "invalid node label", goerr.V("label", label))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.nodes[label]))
	for id := range m.nodes[label] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*model.Node, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.nodes[label][id].Clone())
	}
	return result, nil
}

func (m *Memory) ListRelationships(ctx context.Context, filter model.RelationshipFilter) ([]*model.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for key, rel := range m.rels {
		if filter.Match(rel) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	result := make([]*model.Relationship, 0, len(keys))
	for _, key := range keys {
		result = append(result, m.rels[key].Clone())
	}
	return result, nil
}

func (m *Memory) UpsertNode(ctx context.Context, node *model.Node) error {
	ref, err := node.Ref()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.putNode(ref, node)
	return nil
}

func (m *Memory) UpsertRelationship(ctx context.Context, rel *model.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.putRelationship(rel)
	return nil
}

func (m *Memory) DeleteNode(ctx context.Context, ref model.NodeRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.nodes[ref.Label], ref.ID)
	// a delete is a write for transactions that read the node
	m.seq++
	m.versions[ref] = m.seq

	for key, rel := range m.rels {
		if rel.From == ref || rel.To == ref {
			delete(m.rels, key)
		}
	}
	return nil
}

// putNode merges node into the committed state. Caller holds m.mu.
func (m *Memory) putNode(ref model.NodeRef, node *model.Node) {
	m.seq++
	m.versions[ref] = m.seq

	byID, ok := m.nodes[ref.Label]
	if !ok {
		byID = make(map[string]*model.Node)
		m.nodes[ref.Label] = byID
	}
	if existing, ok := byID[ref.ID]; ok {
		byID[ref.ID] = existing.Merge(node)
		return
	}
	byID[ref.ID] = node.Clone()
}

// putRelationship merges rel into the committed state. Caller holds m.mu.
func (m *Memory) putRelationship(rel *model.Relationship) {
	key := rel.Key()
	if existing, ok := m.rels[key]; ok {
		merged := existing.Clone()
		for k, v := range rel.Properties {
			merged.Properties[k] = v
		}
		m.rels[key] = merged
		return
	}
	m.rels[key] = rel.Clone()
}

func (m *Memory) QueryVector(ctx context.Context, index types.VectorIndex, k int, embedding []float32) ([]*model.ScoredNode, error) {
	label := index.Label()
	if label == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "unknown vector index", goerr.V("index", index))
	}
	if k <= 0 || len(embedding) == 0 {
		return []*model.ScoredNode{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*model.ScoredNode, 0, len(m.nodes[label]))
	for _, n := range m.nodes[label] {
		if len(n.Embedding) != len(embedding) || n.Properties.Bool("embedding_missing") {
			continue
		}
		candidates = append(candidates, &model.ScoredNode{
			Node:  n.Clone(),
			Score: model.CosineSimilarity(embedding, n.Embedding),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		_, a, _ := candidates[i].Node.Key()
		_, b, _ := candidates[j].Node.Key()
		return a < b
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k], nil
}

func (m *Memory) WipeAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes = make(map[types.NodeLabel]map[string]*model.Node)
	m.rels = make(map[string]*model.Relationship)
	m.versions = make(map[model.NodeRef]uint64)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
