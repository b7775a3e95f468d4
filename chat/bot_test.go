package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/groundwork/ai"
	"github.com/poiesic/groundwork/ai/mock"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/rag"
	"github.com/poiesic/groundwork/search"
	"github.com/poiesic/groundwork/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repos     *badger.Repositories
	generator *mock.MockGenerator
	bot       *Bot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	embedder := mock.NewMockEmbedder()
	for source, text := range map[string]string{
		"refunds.md":  "Refunds are processed within 14 days of purchase.",
		"shipping.md": "Orders ship within two business days.",
	} {
		vector, err := embedder.EmbedText(ctx, text)
		require.NoError(t, err)
		_, err = repos.Passages.AddPassages(ctx, &core.Passage{Source: source, Text: text, Vector: vector})
		require.NoError(t, err)
	}

	retriever, err := search.NewRetriever(repos.Passages, embedder)
	require.NoError(t, err)
	engine, err := rag.NewEngine(retriever, repos.Conversations)
	require.NoError(t, err)

	generator := mock.NewMockGenerator()
	bot, err := NewBot(engine, generator, repos.Conversations, WithAnalytics(repos.Analytics))
	require.NoError(t, err)

	return &fixture{repos: repos, generator: generator, bot: bot}
}

func TestNewBot(t *testing.T) {
	_, err := NewBot(nil, mock.NewMockGenerator(), nil)
	assert.ErrorIs(t, err, ErrEngineRequired)
}

func TestBot_Chat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generator.GenerateFunc = func(context.Context, string) (string, error) {
		return "Refunds take 14 days.", nil
	}

	resp, err := f.bot.Chat(ctx, "How long do refunds take?", DefaultOptions("s1"))
	require.NoError(t, err)

	assert.Equal(t, "Refunds take 14 days.", resp.Answer)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Len(t, resp.Sources, 2)

	rendered := f.generator.LastPrompt()
	assert.Contains(t, rendered, "No previous conversation.")
	assert.Contains(t, rendered, "(source: refunds.md)")
	assert.Contains(t, rendered, "Question: How long do refunds take?")
	assert.True(t, strings.HasSuffix(rendered, "Answer:"))

	turns, err := f.repos.Conversations.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "How long do refunds take?", turns[0].Question)
	assert.Equal(t, "Refunds take 14 days.", turns[0].Answer)
	assert.ElementsMatch(t, []string{"refunds.md", "shipping.md"}, turns[0].Sources)

	// The second question sees the first turn.
	_, err = f.bot.Chat(ctx, "And shipping?", DefaultOptions("s1"))
	require.NoError(t, err)
	rendered = f.generator.LastPrompt()
	assert.Contains(t, rendered, "Q: How long do refunds take?")
	assert.Contains(t, rendered, "Question: And shipping?")
	assert.NotContains(t, rendered, "No previous conversation.")

	summary, err := f.repos.Analytics.Stats(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalQueries)
}

func TestBot_ChatWithoutHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	opts := DefaultOptions("s2")
	opts.IncludeHistory = false
	_, err := f.bot.Chat(ctx, "refunds?", opts)
	require.NoError(t, err)

	turns, err := f.repos.Conversations.Turns(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestBot_ChatErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bot.Chat(ctx, "   ", DefaultOptions("s1"))
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	opts := DefaultOptions("s1")
	opts.Weights = &core.Weights{Semantic: 0.9, Lexical: 0.9}
	_, err = f.bot.Chat(ctx, "refunds?", opts)
	assert.ErrorIs(t, err, core.ErrConfig)
	assert.Zero(t, f.generator.CallCount())

	boom := errors.New("model crashed")
	f.generator.GenerateFunc = func(context.Context, string) (string, error) { return "", boom }
	_, err = f.bot.Chat(ctx, "refunds?", DefaultOptions("s1"))
	assert.ErrorIs(t, err, boom)

	turns, err := f.repos.Conversations.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns, "failed questions are not recorded")

	summary, err := f.repos.Analytics.Stats(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalErrors)
}

func TestBot_Stream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generator.Chunks = []string{"Refunds ", "take ", "14 days."}

	stream, err := f.bot.Stream(ctx, "How long do refunds take?", DefaultOptions("s1"))
	require.NoError(t, err)
	assert.NotEmpty(t, stream.Sources)
	assert.Zero(t, f.generator.CallCount(), "generation starts on first range")

	var fragments []string
	for fragment, err := range stream.Fragments {
		require.NoError(t, err)
		fragments = append(fragments, fragment)
	}
	assert.Equal(t, []string{"Refunds ", "take ", "14 days."}, fragments)

	_, err = ai.Collect(stream.Fragments)
	assert.ErrorIs(t, err, ai.ErrStreamConsumed)

	turns, err := f.repos.Conversations.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "Refunds take 14 days.", turns[0].Answer)
}

func TestBot_StreamAbandoned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generator.Chunks = []string{"a", "b", "c"}

	stream, err := f.bot.Stream(ctx, "refunds?", DefaultOptions("s1"))
	require.NoError(t, err)
	for range stream.Fragments {
		break
	}

	turns, err := f.repos.Conversations.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestBot_SessionsAndFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.bot.StartSession(ctx)
	b := f.bot.StartSession(ctx)
	assert.NotEqual(t, a, b)

	require.NoError(t, f.bot.Feedback(ctx, true))
	require.NoError(t, f.bot.Feedback(ctx, false))
	require.NoError(t, f.bot.Feedback(ctx, true))

	summary, err := f.repos.Analytics.Stats(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalSessions)
	assert.Equal(t, 2, summary.PositiveFeedback)
	assert.Equal(t, 1, summary.NegativeFeedback)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 10))
	assert.Equal(t, "ab...", excerpt("abcdef", 2))
}
