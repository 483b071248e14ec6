package domain

// ScoredResult pairs a retrieved document with its raw distance from the
// query vector. Lower distance means a closer match. The raw score is
// backend-scaled; convert it through a SimilarityPolicy before comparing
// against a threshold.
type ScoredResult struct {
	doc      Document
	distance float64
}

// NewScoredResult creates a scored search hit.
func NewScoredResult(doc Document, distance float64) ScoredResult {
	return ScoredResult{doc: doc, distance: distance}
}

// Document returns the retrieved document.
func (r ScoredResult) Document() Document { return r.doc }

// Distance returns the raw distance reported by the index backend.
func (r ScoredResult) Distance() float64 { return r.distance }

// SimilarityPolicy maps a backend-specific raw distance to a similarity
// in [0,1]. Different index backends return differently-scaled distances,
// so the conversion is pluggable rather than hard-coded.
type SimilarityPolicy interface {
	Similarity(distance float64) float64
}

// InverseDistance is the 1/(1+d) normalization used with distance metrics
// that grow without bound from zero.
type InverseDistance struct{}

// Similarity converts a non-negative distance into (0,1], 1 at distance 0.
func (InverseDistance) Similarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}
