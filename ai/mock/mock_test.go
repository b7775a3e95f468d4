package mock

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/poiesic/groundwork/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicVector(t *testing.T) {
	a := DeterministicVector("refund policy", 16)
	b := DeterministicVector("refund policy", 16)
	c := DeterministicVector("shipping times", 16)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockEmbedder(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder()

	vec, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	assert.Len(t, vec, DefaultDimension)

	vecs, err := m.EmbedTexts(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 2, m.CallCount())

	boom := errors.New("boom")
	m.EmbedTextFunc = func(context.Context, string) ([]float32, error) { return nil, boom }
	_, err = m.EmbedTexts(ctx, []string{"a"})
	assert.ErrorIs(t, err, boom)

	m.Reset()
	assert.Zero(t, m.CallCount())
}

func TestMockGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("default answer", func(t *testing.T) {
		g := NewMockGenerator()
		answer, err := g.Generate(ctx, "prompt one")
		require.NoError(t, err)
		assert.Equal(t, DefaultAnswer, answer)
		assert.Equal(t, "prompt one", g.LastPrompt())
	})

	t.Run("stream splits the answer", func(t *testing.T) {
		g := NewMockGenerator()
		var fragments []string
		for fragment, err := range g.Stream(ctx, "p") {
			require.NoError(t, err)
			fragments = append(fragments, fragment)
		}
		assert.Equal(t, []string{"This ", "is ", "a ", "mock ", "answer."}, fragments)
	})

	t.Run("stream is lazy and single use", func(t *testing.T) {
		g := &MockGenerator{Chunks: []string{"x", "y"}}
		seq := g.Stream(ctx, "p")
		assert.Zero(t, g.CallCount())

		text, err := ai.Collect(seq)
		require.NoError(t, err)
		assert.Equal(t, "xy", text)

		_, err = ai.Collect(seq)
		assert.ErrorIs(t, err, ai.ErrStreamConsumed)
		assert.Equal(t, 1, g.CallCount())
	})
}

func TestMockProvider(t *testing.T) {
	provider := NewMockProvider()
	mp := provider.(*MockProvider)

	assert.Same(t, mp.GetMockEmbedder(), provider.Embedder())
	assert.Same(t, mp.GetMockGenerator(), provider.Generator())
	require.NoError(t, provider.Close())
	assert.True(t, mp.Closed())
}
