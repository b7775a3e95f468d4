package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"what", "s", "the", "sku_42", "refund", "día"},
		tokenize("What's the SKU_42 refund-día?"))
	assert.Empty(t, tokenize(" ... !!"))
}

func TestLexicalScorer_Score(t *testing.T) {
	scorer, err := NewLexicalScorer()
	require.NoError(t, err)

	tests := []struct {
		name     string
		query    string
		passage  string
		expected float64
	}{
		{name: "identical", query: "refund policy", passage: "Refund policy", expected: 1},
		{name: "disjoint", query: "refund policy", passage: "Shipping takes five days", expected: 0},
		{name: "partial overlap", query: "refund policy details", passage: "The refund policy", expected: 2.0 / 3.0},
		{name: "stop words ignored", query: "what is the policy", passage: "policy", expected: 1},
		{name: "short tokens ignored", query: "is it ok", passage: "ok", expected: 0},
		{name: "empty query", query: "", passage: "anything at all", expected: 0},
		{name: "empty passage", query: "refund", passage: "", expected: 0},
		{name: "both empty", query: "", passage: "", expected: 0},
		{name: "only stop words", query: "the and of", passage: "the and of", expected: 0},
		{name: "case insensitive", query: "REFUND", passage: "refund", expected: 1},
		{name: "punctuation separates", query: "order-number", passage: "number of the order", expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, scorer.Score(tt.query, tt.passage), 1e-9)
		})
	}
}

func TestLexicalScorer_RefundExample(t *testing.T) {
	scorer, err := NewLexicalScorer()
	require.NoError(t, err)

	// {refund, policy} against {refunds, processed, within, days, purchase}
	score := scorer.Score("What is the refund policy?", "Refunds are processed within 14 days of purchase.")
	assert.Zero(t, score)
	assert.InDelta(t, 0.63, Fuse(0.9, score, DefaultFusion().Weights()), 1e-9)
}

func TestLexicalScorer_Options(t *testing.T) {
	t.Run("stop words kept", func(t *testing.T) {
		scorer, err := NewLexicalScorer(WithStopWords(false))
		require.NoError(t, err)
		assert.InDelta(t, 0.5, scorer.Score("the policy", "policy"), 1e-9)
	})

	t.Run("min token length", func(t *testing.T) {
		scorer, err := NewLexicalScorer(WithMinTokenLength(1))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, scorer.Score("14 days", "days 14"), 1e-9)
	})

	t.Run("invalid min token length", func(t *testing.T) {
		_, err := NewLexicalScorer(WithMinTokenLength(0))
		assert.ErrorIs(t, err, ErrInvalidOption)
	})
}

func TestLexicalScorer_Bounds(t *testing.T) {
	scorer, err := NewLexicalScorer()
	require.NoError(t, err)

	texts := []string{
		"", "refund", "refund policy", "Refunds are processed within 14 days",
		"shipping and handling", "policy policy policy", "RETURNS, refunds & exchanges!",
	}
	for _, q := range texts {
		for _, p := range texts {
			score := scorer.Score(q, p)
			assert.GreaterOrEqual(t, score, 0.0, "q=%q p=%q", q, p)
			assert.LessOrEqual(t, score, 1.0, "q=%q p=%q", q, p)
		}
	}
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("The"))
	assert.True(t, IsStopWord("what"))
	assert.False(t, IsStopWord("refund"))
}
