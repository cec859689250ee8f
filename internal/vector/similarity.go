// Package vector scores stored chunk embeddings against a query embedding.
package vector

import (
	"errors"
	"fmt"

	"github.com/hyperjump/yomu/pkg/utils"
)

// ErrDimensionMismatch is returned when two vectors have different lengths.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// A zero-magnitude input yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	dot, normA, normB := utils.DotAndNorms(a, b)
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	sim := dot / (normA * normB)
	// rounding can push parallel vectors just past 1
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, nil
}
