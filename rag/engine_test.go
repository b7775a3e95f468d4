package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/groundwork/ai/mock"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/prompt"
	"github.com/poiesic/groundwork/search"
	"github.com/poiesic/groundwork/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	mu      sync.Mutex
	result  *core.RetrievalResult
	err     error
	calls   int
	queries []core.Query
	fusions []search.Fusion
}

func (f *fakeRetriever) Retrieve(_ context.Context, query core.Query, topK int, _ bool, fusion search.Fusion) (*core.RetrievalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, query)
	f.fusions = append(f.fusions, fusion)
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil || topK == 0 {
		return &core.RetrievalResult{}, nil
	}
	passages := f.result.Passages
	if len(passages) > topK {
		passages = passages[:topK]
	}
	return &core.RetrievalResult{Passages: passages}, nil
}

type fakeHistory struct {
	mu    sync.Mutex
	turns map[string][]*core.ConversationTurn
	err   error
	calls int
	lastN int
}

func (f *fakeHistory) LastTurns(_ context.Context, sessionID string, n int) ([]*core.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastN = n
	if f.err != nil {
		return nil, f.err
	}
	turns := f.turns[sessionID]
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns, nil
}

func refundResult() *core.RetrievalResult {
	return &core.RetrievalResult{Passages: []*core.ScoredPassage{
		{Passage: &core.Passage{Id: 1, Source: "refunds.md", Text: "Refunds are processed within 14 days."}, FinalScore: 0.9},
		{Passage: &core.Passage{Id: 2, Source: "policy.md", Text: "Opened items are not refundable."}, FinalScore: 0.7},
	}}
}

func sessionHistory() *fakeHistory {
	return &fakeHistory{turns: map[string][]*core.ConversationTurn{
		"s1": {{SessionID: "s1", Question: "What is the refund policy?", Answer: "Refunds take 14 days."}},
	}}
}

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(nil, &fakeHistory{})
	assert.ErrorIs(t, err, ErrRetrieverRequired)

	_, err = NewEngine(&fakeRetriever{}, nil)
	assert.ErrorIs(t, err, ErrHistoryRequired)

	_, err = NewEngine(&fakeRetriever{}, &fakeHistory{}, WithDefaultBudget(0))
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestAnswerContext_Validation(t *testing.T) {
	retriever := &fakeRetriever{result: refundResult()}
	history := sessionHistory()
	engine, err := NewEngine(retriever, history)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  Request
	}{
		{name: "empty query", req: Request{Query: "  ", TopK: 3}},
		{name: "negative topK", req: Request{Query: "q", TopK: -1}},
		{name: "negative budget", req: Request{Query: "q", TopK: 3, Budget: -5}},
		{name: "weights do not sum to one", req: Request{Query: "q", TopK: 3, Weights: &core.Weights{Semantic: 0.6, Lexical: 0.6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.SessionID = "s1"
			tt.req.IncludeHistory = true
			_, err := engine.AnswerContext(context.Background(), tt.req)
			assert.ErrorIs(t, err, core.ErrConfig)
		})
	}
	assert.Zero(t, retriever.calls, "rejected before any external call")
	assert.Zero(t, history.calls, "rejected before any external call")
}

func TestAnswerContext_RewritesWithHistory(t *testing.T) {
	retriever := &fakeRetriever{result: refundResult()}
	engine, err := NewEngine(retriever, sessionHistory())
	require.NoError(t, err)

	pc, err := engine.AnswerContext(context.Background(), Request{
		Query: "and opened items?", SessionID: "s1", TopK: 2, UseHybrid: true, IncludeHistory: true,
	})
	require.NoError(t, err)

	require.Len(t, retriever.queries, 1)
	q := retriever.queries[0]
	assert.Equal(t, "and opened items?", q.Text)
	assert.Contains(t, q.Rewritten, "What is the refund policy?")
	assert.Contains(t, q.Rewritten, "and opened items?")

	assert.Contains(t, pc.Text, "Q: What is the refund policy?")
	assert.Contains(t, pc.Text, "1. Refunds are processed within 14 days. (source: refunds.md)")
	assert.NotContains(t, pc.Text, "and opened items?", "the rewritten query never reaches the context")
	assert.Len(t, pc.Turns, 1)
}

func TestAnswerContext_Passthrough(t *testing.T) {
	retriever := &fakeRetriever{result: refundResult()}
	history := sessionHistory()
	engine, err := NewEngine(retriever, history, WithRewriter(prompt.PassthroughRewriter{}))
	require.NoError(t, err)

	pc, err := engine.AnswerContext(context.Background(), Request{
		Query: "and opened items?", SessionID: "s1", TopK: 2, IncludeHistory: true,
	})
	require.NoError(t, err)
	assert.Empty(t, retriever.queries[0].Rewritten)
	assert.Equal(t, 1, history.calls)
	assert.Equal(t, prompt.DefaultHistoryLimit, history.lastN)
	assert.Len(t, pc.Turns, 1)
	assert.Len(t, pc.Passages, 2)
}

func TestAnswerContext_WithoutHistory(t *testing.T) {
	retriever := &fakeRetriever{result: refundResult()}
	history := sessionHistory()
	engine, err := NewEngine(retriever, history)
	require.NoError(t, err)

	pc, err := engine.AnswerContext(context.Background(), Request{Query: "refunds?", SessionID: "s1", TopK: 1})
	require.NoError(t, err)
	assert.Zero(t, history.calls)
	assert.Empty(t, retriever.queries[0].Rewritten)
	assert.True(t, strings.HasPrefix(pc.Text, "Context information:"))
	assert.Len(t, pc.Passages, 1)
}

func TestAnswerContext_Weights(t *testing.T) {
	retriever := &fakeRetriever{result: refundResult()}
	engine, err := NewEngine(retriever, &fakeHistory{})
	require.NoError(t, err)

	_, err = engine.AnswerContext(context.Background(), Request{Query: "q", TopK: 1, UseHybrid: true})
	require.NoError(t, err)
	_, err = engine.AnswerContext(context.Background(), Request{
		Query: "q", TopK: 1, UseHybrid: true, Weights: &core.Weights{Semantic: 0.4, Lexical: 0.6},
	})
	require.NoError(t, err)

	assert.Equal(t, core.DefaultWeights(), retriever.fusions[0].Weights())
	assert.Equal(t, core.Weights{Semantic: 0.4, Lexical: 0.6}, retriever.fusions[1].Weights())
}

func TestAnswerContext_TopKZeroUsesHistoryAlone(t *testing.T) {
	engine, err := NewEngine(&fakeRetriever{result: refundResult()}, sessionHistory())
	require.NoError(t, err)

	pc, err := engine.AnswerContext(context.Background(), Request{
		Query: "q", SessionID: "s1", TopK: 0, IncludeHistory: true, Budget: 200,
	})
	require.NoError(t, err)
	assert.Empty(t, pc.Passages)
	assert.Len(t, pc.Turns, 1)
	assert.LessOrEqual(t, len([]rune(pc.Text)), 200)

	pc, err = engine.AnswerContext(context.Background(), Request{
		Query: "q", SessionID: "s1", TopK: 0, IncludeHistory: true, Budget: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, pc.Text)
	assert.Equal(t, 1, pc.DroppedTurns)
}

func TestAnswerContext_Errors(t *testing.T) {
	t.Run("retrieval failure", func(t *testing.T) {
		retriever := &fakeRetriever{err: core.ErrRetrievalUnavailable}
		engine, err := NewEngine(retriever, sessionHistory(), WithRewriter(prompt.PassthroughRewriter{}))
		require.NoError(t, err)

		_, err = engine.AnswerContext(context.Background(), Request{Query: "q", SessionID: "s1", TopK: 3, IncludeHistory: true})
		assert.ErrorIs(t, err, core.ErrRetrievalUnavailable)
	})

	t.Run("history failure", func(t *testing.T) {
		history := &fakeHistory{err: errors.New("closed")}
		retriever := &fakeRetriever{}
		engine, err := NewEngine(retriever, history)
		require.NoError(t, err)

		_, err = engine.AnswerContext(context.Background(), Request{Query: "q", SessionID: "s1", TopK: 3, IncludeHistory: true})
		assert.ErrorIs(t, err, ErrHistoryUnavailable)
		assert.Zero(t, retriever.calls, "rewriting needs history before retrieval")
	})
}

func TestAnswerContext_EndToEnd(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	embedder := mock.NewMockEmbedder()
	retriever, err := search.NewRetriever(repos.Passages, embedder)
	require.NoError(t, err)
	engine, err := NewEngine(retriever, repos.Conversations)
	require.NoError(t, err)

	t.Run("empty corpus and no history", func(t *testing.T) {
		pc, err := engine.AnswerContext(ctx, Request{Query: "refund policy", SessionID: "new", TopK: 5, IncludeHistory: true})
		require.NoError(t, err)
		assert.Empty(t, pc.Text)
		assert.Empty(t, pc.Passages)
	})

	text := "Refunds are processed within 14 days of purchase."
	vector, err := embedder.EmbedText(ctx, text)
	require.NoError(t, err)
	_, err = repos.Passages.AddPassages(ctx, &core.Passage{Source: "refunds.md", Text: text, Vector: vector})
	require.NoError(t, err)
	retriever.Invalidate()

	_, err = repos.Conversations.AppendTurn(ctx, &core.ConversationTurn{
		SessionID: "s1", Question: "Hello", Answer: "Hi, how can I help?",
	})
	require.NoError(t, err)

	pc, err := engine.AnswerContext(ctx, Request{
		Query: text, SessionID: "s1", TopK: 3, UseHybrid: true, IncludeHistory: true,
		Weights: &core.Weights{Semantic: 0.5, Lexical: 0.5},
	})
	require.NoError(t, err)
	require.Len(t, pc.Passages, 1)
	assert.Contains(t, pc.Text, "Q: Hello")
	assert.Contains(t, pc.Text, "1. "+text+" (source: refunds.md)")
}
