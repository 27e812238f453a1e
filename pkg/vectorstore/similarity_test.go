package vectorstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"close", []float32{1, 0}, []float32{0.9, 0.1}, 0.9 / math.Sqrt(0.82)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestCosine_Symmetric(t *testing.T) {
	a := []float32{0.3, -1.2, 4.5, 0.01}
	b := []float32{-2, 0.5, 1, 3}

	ab, err := Cosine(a, b)
	require.NoError(t, err)
	ba, err := Cosine(b, a)
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
}

func TestCosine_Clamped(t *testing.T) {
	v := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	got, err := Cosine(v, v)
	require.NoError(t, err)
	assert.LessOrEqual(t, got, 1.0)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestCosine_Errors(t *testing.T) {
	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("zero vector", func(t *testing.T) {
		_, err := Cosine([]float32{0, 0}, []float32{1, 2})
		assert.ErrorIs(t, err, ErrZeroMagnitude)
	})

	t.Run("empty vectors", func(t *testing.T) {
		_, err := Cosine(nil, []float32{})
		assert.ErrorIs(t, err, ErrZeroMagnitude)
	})

	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	for name, pair := range map[string][2][]float32{
		"nan in a":      {{nan, 1}, {1, 0}},
		"nan in b":      {{1, 0}, {0, nan}},
		"inf in a":      {{inf, 1}, {1, 0}},
		"negative inf":  {{1, 0}, {float32(math.Inf(-1)), 0}},
		"nan with zero": {{nan, 0}, {0, 0}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Cosine(pair[0], pair[1])
			assert.ErrorIs(t, err, ErrInvalidVector)
		})
	}
}

func TestMagnitude(t *testing.T) {
	assert.InDelta(t, 5.0, magnitude([]float32{3, 4}), 1e-12)
	assert.Zero(t, magnitude(nil))
}

func TestCosineDistance(t *testing.T) {
	d, err := CosineDistance([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-9)

	d, err = CosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2, d, 1e-9)

	_, err = CosineDistance([]float32{1}, []float32{1, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
