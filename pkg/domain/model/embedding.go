package model

import "math"

// EmbeddingDimension is the dimension of every stored embedding vector
// (all-MiniLM-L6-v2 compatible).
const EmbeddingDimension = 384

// IsUsableEmbedding reports whether v can be stored in a vector index.
func IsUsableEmbedding(v []float32) bool {
	return len(v) == EmbeddingDimension
}

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1], or 0
// when the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	// clamp rounding drift
	return max(-1, min(1, dot/denom))
}
