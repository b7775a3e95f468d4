package search

import (
	"testing"

	"github.com/poiesic/groundwork/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemanticScore(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, expected: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, expected: 0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, expected: 0.5},
		{name: "scale invariant", a: []float32{1, 1}, b: []float32{5, 5}, expected: 1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, expected: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := SemanticScore(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, score, 1e-6)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		})
	}
}

func TestSemanticScore_InvalidVectors(t *testing.T) {
	_, err := SemanticScore(nil, []float32{1})
	assert.ErrorIs(t, err, core.ErrInvalidVector)

	_, err = SemanticScore([]float32{1}, []float32{})
	assert.ErrorIs(t, err, core.ErrInvalidVector)

	_, err = SemanticScore([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrInvalidVector)
}
