package domain

import "context"

// VectorDim is the fixed dimensionality of every embedding vector.
// The index schema, the ingestion path, and query embedding all assume it.
const VectorDim = 1024

// Embedder is the raw text vectorization contract. Implementations talk
// to one embedding endpoint and make no retry or normalization promises;
// those belong to the resilient client layered on top.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// ZeroVector returns the all-zero VectorDim vector used as the degraded
// substitute when embedding fails.
func ZeroVector() []float32 {
	return make([]float32, VectorDim)
}

// NormalizeDim forces a vector to exactly VectorDim components:
// shorter vectors are zero-padded, longer ones truncated.
func NormalizeDim(v []float32) []float32 {
	switch {
	case len(v) == VectorDim:
		return v
	case len(v) > VectorDim:
		return v[:VectorDim]
	default:
		out := make([]float32, VectorDim)
		copy(out, v)
		return out
	}
}

// IsZeroVector reports whether every component is zero. A zero query
// vector still searches, it just ranks everything equally badly.
func IsZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
