package search

import (
	"context"
	"testing"

	"github.com/poiesic/groundwork/ai/mock"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetriever_BadgerBackend(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	embedder := mock.NewMockEmbedder()

	texts := map[string]string{
		"refunds.md":  "Refunds are processed within 14 days of purchase.",
		"shipping.md": "Orders ship within two business days.",
		"warranty.md": "The warranty covers manufacturing defects for one year.",
	}
	for source, text := range texts {
		vector, err := embedder.EmbedText(ctx, text)
		require.NoError(t, err)
		_, err = repos.Passages.AddPassages(ctx, &core.Passage{Source: source, Text: text, Vector: vector})
		require.NoError(t, err)
	}
	// Not yet embedded: never returned.
	_, err = repos.Passages.AddPassages(ctx, &core.Passage{Source: "draft.md", Text: "Refunds draft"})
	require.NoError(t, err)

	r, err := NewRetriever(repos.Passages, embedder)
	require.NoError(t, err)

	// The mock embedder maps identical text to identical vectors.
	query := core.Query{Text: texts["warranty.md"]}
	result, err := r.Retrieve(ctx, query, 2, true, DefaultFusion())
	require.NoError(t, err)
	require.Equal(t, 2, result.Len())
	assert.Equal(t, "warranty.md", result.Passages[0].Passage.Source)
	assert.InDelta(t, 1.0, result.Passages[0].SemanticScore, 1e-5)
	assert.InDelta(t, 1.0, result.Passages[0].LexicalScore, 1e-9)
	assert.NotContains(t, result.Sources(), "draft.md")
}
