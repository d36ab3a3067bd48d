package model

import "github.com/secmon-lab/synapse/pkg/domain/types"

// SearchResult is one ranked hit across all vector indexes.
type SearchResult struct {
	Text        string            `json:"text"`
	Score       float64           `json:"score"`
	SourceLabel types.NodeLabel   `json:"source_label"`
	Index       types.VectorIndex `json:"index"`
	NodeID      string            `json:"node_id"`
}

// DefaultSearchTopK is used when a caller passes a non-positive topK.
const DefaultSearchTopK = 5
