package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const upsertNodeSQL = `
INSERT INTO nodes (label, id, properties, embedding) VALUES (?, ?, ?, ?)
ON CONFLICT(label, id) DO UPDATE SET
	properties = json_patch(nodes.properties, excluded.properties),
	embedding  = COALESCE(excluded.embedding, nodes.embedding)`

const upsertRelationshipSQL = `
INSERT INTO relationships (from_label, from_id, rel_type, to_label, to_id, properties) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(from_label, from_id, rel_type, to_label, to_id) DO UPDATE SET
	properties = json_patch(relationships.properties, excluded.properties)`

func marshalProperties(p model.Properties) (string, error) {
	if p == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal properties")
	}
	return string(raw), nil
}

func unmarshalProperties(raw string) (model.Properties, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	props := model.Properties{}
	if err := dec.Decode(&props); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal properties")
	}
	return props, nil
}

func upsertNode(ctx context.Context, db execer, node *model.Node) error {
	ref, err := node.Ref()
	if err != nil {
		return err
	}
	props, err := marshalProperties(node.Properties)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, upsertNodeSQL, string(ref.Label), ref.ID, props, encodeFloat32s(node.Embedding)); err != nil {
		return goerr.Wrap(err, "failed to upsert node", goerr.V("ref", ref.String()))
	}
	return nil
}

func upsertRelationship(ctx context.Context, db execer, rel *model.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	props, err := marshalProperties(rel.Properties)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, upsertRelationshipSQL,
		string(rel.From.Label), rel.From.ID, string(rel.Type), string(rel.To.Label), rel.To.ID, props)
	if err != nil {
		return goerr.Wrap(err, "failed to upsert relationship", goerr.V("key", rel.Key()))
	}
	return nil
}

func getNode(ctx context.Context, db execer, ref model.NodeRef) (*model.Node, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	var raw string
	var blob []byte
	err := db.QueryRowContext(ctx, `SELECT properties, embedding FROM nodes WHERE label = ? AND id = ?`,
		string(ref.Label), ref.ID).Scan(&raw, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get node", goerr.V("ref", ref.String()))
	}

	props, err := unmarshalProperties(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "broken node", goerr.V("ref", ref.String()))
	}
	return &model.Node{Label: ref.Label, Properties: props, Embedding: decodeFloat32s(blob)}, nil
}

func (s *SQLite) GetNode(ctx context.Context, ref model.NodeRef) (*model.Node, error) {
	return getNode(ctx, s.db, ref)
}

func (s *SQLite) UpsertNode(ctx context.Context, node *model.Node) error {
	return upsertNode(ctx, s.db, node)
}

func (s *SQLite) UpsertRelationship(ctx context.Context, rel *model.Relationship) error {
	return upsertRelationship(ctx, s.db, rel)
}

func (s *SQLite) DeleteNode(ctx context.Context, ref model.NodeRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin node deletion", goerr.V("ref", ref.String()))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM relationships WHERE (from_label = ? AND from_id = ?) OR (to_label = ? AND to_id = ?)`,
		string(ref.Label), ref.ID, string(ref.Label), ref.ID); err != nil {
		return goerr.Wrap(err, "failed to delete relationships of node", goerr.V("ref", ref.String()))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE label = ? AND id = ?`, string(ref.Label), ref.ID); err != nil {
		return goerr.Wrap(err, "failed to delete node", goerr.V("ref", ref.String()))
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit node deletion", goerr.V("ref", ref.String()))
	}
	return nil
}

func (s *SQLite) ListNodes(ctx context.Context, label types.NodeLabel) ([]*model.Node, error) {
	if !label.IsValid() {
		return nil, goerr.Wrap(model.ErrConfiguration, "invalid node label", goerr.V("label", label))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT properties, embedding FROM nodes WHERE label = ? ORDER BY id`, string(label))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list nodes", goerr.V("label", label))
	}
	defer func() { _ = rows.Close() }()

	nodes := make([]*model.Node, 0)
	for rows.Next() {
		var raw string
		var blob []byte
		if err := rows.Scan(&raw, &blob); err != nil {
			return nil, goerr.Wrap(err, "failed to scan node")
		}
		props, err := unmarshalProperties(raw)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &model.Node{Label: label, Properties: props, Embedding: decodeFloat32s(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate nodes")
	}
	return nodes, nil
}

func (s *SQLite) ListRelationships(ctx context.Context, filter model.RelationshipFilter) ([]*model.Relationship, error) {
	var conds []string
	var args []any
	if filter.Type != "" {
		conds = append(conds, "rel_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.From != nil {
		conds = append(conds, "from_label = ? AND from_id = ?")
		args = append(args, string(filter.From.Label), filter.From.ID)
	}
	if filter.To != nil {
		conds = append(conds, "to_label = ? AND to_id = ?")
		args = append(args, string(filter.To.Label), filter.To.ID)
	}
	if filter.FromLabel != "" {
		conds = append(conds, "from_label = ?")
		args = append(args, string(filter.FromLabel))
	}
	if filter.ToLabel != "" {
		conds = append(conds, "to_label = ?")
		args = append(args, string(filter.ToLabel))
	}

	query := `SELECT from_label, from_id, rel_type, to_label, to_id, properties FROM relationships`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list relationships")
	}
	defer func() { _ = rows.Close() }()

	rels := make([]*model.Relationship, 0)
	for rows.Next() {
		var fromLabel, fromID, relType, toLabel, toID, raw string
		if err := rows.Scan(&fromLabel, &fromID, &relType, &toLabel, &toID, &raw); err != nil {
			return nil, goerr.Wrap(err, "failed to scan relationship")
		}
		props, err := unmarshalProperties(raw)
		if err != nil {
			return nil, err
		}
		rels = append(rels, &model.Relationship{
			From:       model.NodeRef{Label: types.NodeLabel(fromLabel), ID: fromID},
			To:         model.NodeRef{Label: types.NodeLabel(toLabel), ID: toID},
			Type:       types.RelType(relType),
			Properties: props,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate relationships")
	}

	sort.Slice(rels, func(i, j int) bool { return rels[i].Key() < rels[j].Key() })
	return rels, nil
}

// QueryVector scans the label's embeddings and ranks them in Go.
func (s *SQLite) QueryVector(ctx context.Context, index types.VectorIndex, k int, embedding []float32) ([]*model.ScoredNode, error) {
	label := index.Label()
	if label == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "unknown vector index", goerr.V("index", index))
	}
	if k <= 0 || len(embedding) == 0 {
		return []*model.ScoredNode{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, properties, embedding FROM nodes WHERE label = ? AND embedding IS NOT NULL`, string(label))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query vectors", goerr.V("index", index))
	}
	defer func() { _ = rows.Close() }()

	type candidate struct {
		id  string
		raw string
		vec []float32
		sim float64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		var blob []byte
		if err := rows.Scan(&c.id, &c.raw, &blob); err != nil {
			return nil, goerr.Wrap(err, "failed to scan vector row")
		}
		c.vec = decodeFloat32s(blob)
		if len(c.vec) != len(embedding) {
			continue
		}
		c.sim = model.CosineSimilarity(embedding, c.vec)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate vector rows")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].id < candidates[j].id
	})

	result := make([]*model.ScoredNode, 0, k)
	for _, c := range candidates {
		if len(result) == k {
			break
		}
		props, err := unmarshalProperties(c.raw)
		if err != nil {
			return nil, err
		}
		if props.Bool("embedding_missing") {
			continue
		}
		result = append(result, &model.ScoredNode{
			Node:  &model.Node{Label: label, Properties: props, Embedding: c.vec},
			Score: c.sim,
		})
	}
	return result, nil
}

type transaction struct {
	ctx    context.Context
	tx     *sql.Tx
	writes bool
}

var _ interfaces.GraphTx = &transaction{}

func (t *transaction) GetNode(ref model.NodeRef) (*model.Node, error) {
	if t.writes {
		return nil, goerr.New("read after write in transaction", goerr.V("ref", ref.String()))
	}
	return getNode(t.ctx, t.tx, ref)
}

func (t *transaction) UpsertNode(node *model.Node) error {
	t.writes = true
	return upsertNode(t.ctx, t.tx, node)
}

func (t *transaction) UpsertRelationship(rel *model.Relationship) error {
	t.writes = true
	return upsertRelationship(t.ctx, t.tx, rel)
}

// RunTransaction runs fn in a SQL transaction. The single connection makes
// every transaction exclusive, so scope only appears in errors.
func (s *SQLite) RunTransaction(ctx context.Context, scope string, fn func(ctx context.Context, tx interfaces.GraphTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction", goerr.V("scope", scope))
	}

	if err := fn(ctx, &transaction{ctx: ctx, tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return goerr.Wrap(errors.Join(err, rbErr), "failed to roll back transaction", goerr.V("scope", scope))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit transaction", goerr.V("scope", scope))
	}
	return nil
}
