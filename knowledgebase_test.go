package groundwork

import (
	"context"
	"testing"

	"github.com/poiesic/groundwork/ai/mock"
	"github.com/poiesic/groundwork/chat"
	"github.com/poiesic/groundwork/config"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/ingestion"
	"github.com/poiesic/groundwork/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) (*KnowledgeBase, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProvider().(*mock.MockProvider)
	kb, err := Open("", InMemory(), WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })
	return kb, provider
}

func TestOpen(t *testing.T) {
	t.Run("on disk", func(t *testing.T) {
		kb, err := Open(t.TempDir(), WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		require.NoError(t, kb.Close())
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Retrieval.TopK = 0
		_, err := Open("", InMemory(), WithConfig(cfg))
		assert.ErrorIs(t, err, core.ErrConfig)
	})

	t.Run("close releases the provider", func(t *testing.T) {
		provider := mock.NewMockProvider().(*mock.MockProvider)
		kb, err := Open("", InMemory(), WithProvider(provider))
		require.NoError(t, err)
		require.NoError(t, kb.Close())
		assert.True(t, provider.Closed())
	})
}

func TestKnowledgeBase_EndToEnd(t *testing.T) {
	kb, provider := openTest(t)
	ctx := context.Background()

	pipeline, err := kb.NewIngestionPipeline(ingestion.WithPoolSize(2))
	require.NoError(t, err)
	defer pipeline.Release()

	_, err = pipeline.Ingest(ctx,
		ingestion.Document{Source: "refunds.md", Text: "Refunds are processed within 14 days of purchase."},
		ingestion.Document{Source: "shipping.md", Text: "Orders ship within two business days."},
	)
	require.NoError(t, err)
	require.NoError(t, pipeline.Wait())

	stats, err := kb.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Passages)
	assert.Equal(t, 2, stats.EmbeddedPassages)
	assert.Equal(t, []string{"refunds.md", "shipping.md"}, stats.Sources)

	lexicalOnly := &core.Weights{Semantic: 0, Lexical: 1}
	pc, err := kb.AnswerContext(ctx, rag.Request{Query: "How long do refunds take?", TopK: 1, UseHybrid: true, Weights: lexicalOnly})
	require.NoError(t, err)
	require.Len(t, pc.Passages, 1)
	assert.Equal(t, "refunds.md", pc.Passages[0].Passage.Source)

	bot, err := kb.NewChatbot()
	require.NoError(t, err)
	resp, err := bot.Chat(ctx, "How long do refunds take?", chat.DefaultOptions("s1"))
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultAnswer, resp.Answer)
	assert.Equal(t, 1, provider.GetMockGenerator().CallCount())

	stats, err = kb.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sessions)

	// Removing a source invalidates the shared retriever's cache.
	_, err = pipeline.RemoveSource(ctx, "refunds.md")
	require.NoError(t, err)
	pc, err = kb.AnswerContext(ctx, rag.Request{Query: "How long do refunds take?", TopK: 5, UseHybrid: true})
	require.NoError(t, err)
	for _, sp := range pc.Passages {
		assert.NotEqual(t, "refunds.md", sp.Passage.Source)
	}
}

func TestKnowledgeBase_Reembed(t *testing.T) {
	kb, _ := openTest(t)
	ctx := context.Background()

	_, err := kb.Passages().AddPassages(ctx, &core.Passage{Source: "a.md", Text: "alpha"})
	require.NoError(t, err)

	reembedder, err := kb.NewReembedder()
	require.NoError(t, err)
	require.NoError(t, reembedder.Run(ctx))

	stats, err := kb.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EmbeddedPassages)
}
