package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

// Unique key properties, in priority order.
const (
	KeyID    = "id"
	KeyEmail = "email"
	KeyTerm  = "term"
)

var uniqueKeys = []string{KeyID, KeyEmail, KeyTerm}

// NodeRef identifies a node by label and unique key value.
type NodeRef struct {
	Label types.NodeLabel `json:"label"`
	ID    string          `json:"id"`
}

func (r NodeRef) Validate() error {
	if !r.Label.IsValid() {
		return goerr.Wrap(ErrConfiguration, "invalid node label", goerr.V("label", r.Label))
	}
	if r.ID == "" {
		return goerr.Wrap(ErrConfiguration, "node reference without id", goerr.V("label", r.Label))
	}
	return nil
}

func (r NodeRef) String() string {
	return string(r.Label) + ":" + r.ID
}

// Properties is the property bag of a node or relationship. Values are
// scalars (string, bool, integer, float) after a round trip through any store.
type Properties map[string]any

// String returns the string value of key, or "" when absent or not a string.
func (p Properties) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Int64 returns key as an integer, accepting any numeric representation a
// backend may decode into.
func (p Properties) Int64(key string) int64 {
	switch v := p[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// Bool returns key as a bool, false when absent.
func (p Properties) Bool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	return maps.Clone(p)
}

// Node is a labeled graph node. Embedding is kept outside Properties so
// vector-capable backends can store it in a dedicated field.
type Node struct {
	Label      types.NodeLabel
	Properties Properties
	Embedding  []float32
}

// Key returns the unique key field and its value, using the first non-empty
// of id, email and term.
func (n *Node) Key() (string, string, error) {
	for _, k := range uniqueKeys {
		if v := n.Properties.String(k); v != "" {
			return k, v, nil
		}
	}
	return "", "", goerr.Wrap(ErrConfiguration, "node has no unique key (id, email or term)",
		goerr.V("label", n.Label))
}

// Validate checks the label against the closed label set and the presence of a unique key.
func (n *Node) Validate() error {
	if !n.Label.IsValid() {
		return goerr.Wrap(ErrConfiguration, "invalid node label", goerr.V("label", n.Label))
	}
	if _, _, err := n.Key(); err != nil {
		return err
	}
	return nil
}

// Ref returns the reference of a valid node.
func (n *Node) Ref() (NodeRef, error) {
	if err := n.Validate(); err != nil {
		return NodeRef{}, err
	}
	_, v, _ := n.Key()
	return NodeRef{Label: n.Label, ID: v}, nil
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Label:      n.Label,
		Properties: n.Properties.Clone(),
	}
	if n.Embedding != nil {
		c.Embedding = make([]float32, len(n.Embedding))
		copy(c.Embedding, n.Embedding)
	}
	return c
}

// Merge overlays other's properties onto n (MERGE ... SET n += props).
// A nil embedding in other keeps the existing one.
func (n *Node) Merge(other *Node) *Node {
	merged := n.Clone()
	if merged.Properties == nil {
		merged.Properties = Properties{}
	}
	for k, v := range other.Properties {
		merged.Properties[k] = v
	}
	if other.Embedding != nil {
		merged.Embedding = make([]float32, len(other.Embedding))
		copy(merged.Embedding, other.Embedding)
	}
	return merged
}

// Relationship is a typed edge, unique per (From, Type, To).
type Relationship struct {
	From       NodeRef
	To         NodeRef
	Type       types.RelType
	Properties Properties
}

func (r *Relationship) Validate() error {
	if !r.Type.IsValid() {
		return goerr.Wrap(ErrConfiguration, "invalid relationship type", goerr.V("type", r.Type))
	}
	if err := r.From.Validate(); err != nil {
		return goerr.Wrap(err, "invalid relationship source")
	}
	if err := r.To.Validate(); err != nil {
		return goerr.Wrap(err, "invalid relationship target")
	}
	return nil
}

// Key is the identity of the relationship.
func (r *Relationship) Key() string {
	return fmt.Sprintf("%s|%s|%s", r.From, r.Type, r.To)
}

func (r *Relationship) Clone() *Relationship {
	c := *r
	c.Properties = r.Properties.Clone()
	return &c
}

// RelationshipFilter selects relationships. Zero fields match anything.
type RelationshipFilter struct {
	Type      types.RelType
	From      *NodeRef
	To        *NodeRef
	FromLabel types.NodeLabel
	ToLabel   types.NodeLabel
}

// Match reports whether r satisfies the filter
func (f RelationshipFilter) Match(r *Relationship) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.From != nil && r.From != *f.From {
		return false
	}
	if f.To != nil && r.To != *f.To {
		return false
	}
	if f.FromLabel != "" && r.From.Label != f.FromLabel {
		return false
	}
	if f.ToLabel != "" && r.To.Label != f.ToLabel {
		return false
	}
	return true
}

// ScoredNode is a vector query hit. Score is cosine similarity in [-1, 1].
type ScoredNode struct {
	Node  *Node
	Score float64
}
