package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	label      TEXT NOT NULL,
	id         TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	embedding  BLOB,
	PRIMARY KEY (label, id)
);

CREATE TABLE IF NOT EXISTS relationships (
	from_label TEXT NOT NULL,
	from_id    TEXT NOT NULL,
	rel_type   TEXT NOT NULL,
	to_label   TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (from_label, from_id, rel_type, to_label, to_id)
);

CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_label, to_id, rel_type);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(rel_type);
`

// SQLite is a GraphStore in a single SQLite file.
type SQLite struct {
	db *sql.DB
}

var _ interfaces.GraphStore = &SQLite{}

// New opens (or creates) the database at path and applies the schema.
func New(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("path", path))
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}
	// One connection serializes every write transaction.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to apply schema", goerr.V("path", path))
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) WipeAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin wipe")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM relationships`); err != nil {
		return goerr.Wrap(err, "failed to delete relationships")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return goerr.Wrap(err, "failed to delete nodes")
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit wipe")
	}
	return nil
}

// encodeFloat32s converts a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s converts little-endian bytes back to a float32 slice.
func decodeFloat32s(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
