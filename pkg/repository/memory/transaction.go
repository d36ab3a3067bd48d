package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
)

// scopeLocks hands out one mutex per transaction scope and forgets it when
// no transaction holds or waits for it.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*scopeLock
}

type scopeLock struct {
	mu   sync.Mutex
	refs int
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[string]*scopeLock)}
}

func (s *scopeLocks) lock(scope string) func() {
	s.mu.Lock()
	l, ok := s.locks[scope]
	if !ok {
		l = &scopeLock{}
		s.locks[scope] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, scope)
		}
		s.mu.Unlock()
	}
}

type stagedNode struct {
	ref  model.NodeRef
	node *model.Node
}

// maxAttempts bounds retries of a transaction whose reads went stale
const maxAttempts = 5

// errStaleRead aborts a commit when a node read by the transaction changed
var errStaleRead = goerr.New("node changed since it was read")

// transaction stages writes and applies them in one critical section on
// commit, after checking that no node it read was written meanwhile.
type transaction struct {
	store  *Memory
	reads  map[model.NodeRef]uint64
	nodes  []stagedNode
	rels   []*model.Relationship
	writes bool
}

var _ interfaces.GraphTx = &transaction{}

func (tx *transaction) GetNode(ref model.NodeRef) (*model.Node, error) {
	if tx.writes {
		return nil, goerr.New("read after write in transaction", goerr.V("ref", ref.String()))
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	tx.reads[ref] = tx.store.versions[ref]
	return tx.store.nodes[ref.Label][ref.ID].Clone(), nil
}

func (tx *transaction) UpsertNode(node *model.Node) error {
	ref, err := node.Ref()
	if err != nil {
		return err
	}
	tx.writes = true
	tx.nodes = append(tx.nodes, stagedNode{ref: ref, node: node.Clone()})
	return nil
}

func (tx *transaction) UpsertRelationship(rel *model.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	tx.writes = true
	tx.rels = append(tx.rels, rel.Clone())
	return nil
}

func (tx *transaction) commit() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for ref, version := range tx.reads {
		if tx.store.versions[ref] != version {
			return goerr.Wrap(errStaleRead, "transaction read a stale node", goerr.V("ref", ref.String()))
		}
	}

	for _, s := range tx.nodes {
		tx.store.putNode(s.ref, s.node)
	}
	for _, rel := range tx.rels {
		tx.store.putRelationship(rel)
	}
	return nil
}

// RunTransaction serializes transactions of the same scope. Transactions of
// different scopes run concurrently and are retried when a node they read
// was written before they commit. Staged writes are dropped when fn fails or
// ctx is done before commit.
func (m *Memory) RunTransaction(ctx context.Context, scope string, fn func(ctx context.Context, tx interfaces.GraphTx) error) error {
	unlock := m.scopes.lock(scope)
	defer unlock()

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return goerr.Wrap(ctxErr, "transaction aborted", goerr.V("scope", scope))
		}

		tx := &transaction{store: m, reads: make(map[model.NodeRef]uint64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return goerr.Wrap(ctxErr, "transaction aborted before commit", goerr.V("scope", scope))
		}

		if err = tx.commit(); err == nil {
			return nil
		}
	}

	return goerr.Wrap(err, "transaction kept conflicting", goerr.V("scope", scope), goerr.V("attempts", maxAttempts))
}
