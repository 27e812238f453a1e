package vectorstore

import (
	"fmt"
	"math"
)

// Cosine returns the cosine similarity of a and b: their dot product divided
// by the product of their Euclidean norms. The result is in [-1, 1], where 1
// means identical direction.
//
// Accumulation happens in float64 regardless of the float32 inputs. A NaN or
// infinite component yields ErrInvalidVector.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	dot, normA, normB := dotAndNorms(a, b)
	if !isFinite(dot) || !isFinite(normA) || !isFinite(normB) {
		return 0, fmt.Errorf("%w: non-finite component", ErrInvalidVector)
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroMagnitude
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Rounding can push parallel vectors slightly past the bounds.
	return math.Max(-1, math.Min(1, sim)), nil
}

// CosineDistance returns 1 - Cosine(a, b). Zero for identical directions,
// two for opposite ones.
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := Cosine(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// dotAndNorms returns a·b and the squared norms of a and b. a and b must
// have the same length.
func dotAndNorms(a, b []float32) (dot, normA, normB float64) {
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	return dot, normA, normB
}

// magnitude returns the Euclidean norm of v.
func magnitude(v []float32) float64 {
	_, sq, _ := dotAndNorms(v, v)
	return math.Sqrt(sq)
}

// validateVector rejects vectors that cosine similarity cannot rank.
func validateVector(v []float32) error {
	m := magnitude(v)
	if !isFinite(m) {
		return fmt.Errorf("%w: non-finite component", ErrInvalidVector)
	}
	if m == 0 {
		return ErrZeroMagnitude
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
