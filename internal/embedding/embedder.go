// Package embedding turns text into fixed-length vectors for semantic matching.
package embedding

import (
	"context"
	"math"
)

// Embedder encodes texts into vectors of a fixed dimension.
// Vectors are returned in input order. Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the embedding space; vectors from different models are not comparable.
	Model() string
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty,
// all zeros, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsZero reports whether v carries no signal.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
