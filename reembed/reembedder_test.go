package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/groundwork/ai/mock"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T, n int) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	passages := make([]*core.Passage, n)
	for i := range n {
		passages[i] = &core.Passage{
			Source: "doc.md",
			Text:   fmt.Sprintf("passage number %d", i),
			Vector: []float32{1, 0, 0},
		}
	}
	_, err = repos.Passages.AddPassages(context.Background(), passages...)
	require.NoError(t, err)
	return repos
}

// scaledEmbedder returns unnormalized vectors so normalization is observable.
func scaledEmbedder() *mock.MockEmbedder {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		return []float32{3, 4, float32(len(text))}, nil
	}
	return embedder
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func fastConfig() *Config {
	return &Config{BatchSize: 3, ReportInterval: 3, MaxRetries: 3, RetryDelay: time.Millisecond}
}

func TestNewReembedder(t *testing.T) {
	repos := setupTestDB(t, 0)

	_, err := NewReembedder(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrPassageRepositoryRequired)

	_, err = NewReembedder(repos.Passages, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewReembedder(repos.Passages, mock.NewMockEmbedder(), WithConfig(&Config{Resume: true}))
	assert.ErrorIs(t, err, ErrCheckpointRepositoryRequired)

	_, err = NewReembedder(repos.Passages, mock.NewMockEmbedder(), WithConfig(&Config{BatchSize: -1}))
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestReembedder_Run(t *testing.T) {
	repos := setupTestDB(t, 10)
	ctx := context.Background()

	var buf bytes.Buffer
	var updates atomic.Int64
	embedder := scaledEmbedder()
	reembedder, err := NewReembedder(repos.Passages, embedder,
		WithConfig(fastConfig()),
		WithCheckpoints(repos.Checkpoints),
		WithProgress(&buf),
		WithOnCorpusUpdate(func() { updates.Add(1) }),
	)
	require.NoError(t, err)
	require.NoError(t, reembedder.Run(ctx))

	all, err := repos.Passages.AllPassages(ctx)
	require.NoError(t, err)
	require.Len(t, all, 10)
	for _, passage := range all {
		require.Len(t, passage.Vector, 3)
		assert.InDelta(t, 1.0, magnitude(passage.Vector), 1e-5, "vector should be normalized")
		assert.NotEqual(t, float32(1), passage.Vector[0], "vector should be replaced")
	}

	assert.Equal(t, 4, embedder.CallCount(), "batches of 3, 3, 3, 1")
	assert.Equal(t, int64(4), updates.Load())
	assert.Contains(t, buf.String(), "10/10")
	assert.Contains(t, buf.String(), "Re-embedding complete")

	checkpoint, err := repos.Checkpoints.LoadCheckpoint(ctx, CheckpointName)
	require.NoError(t, err)
	assert.Nil(t, checkpoint, "completed runs clear their checkpoint")
}

func TestReembedder_EmptyDatabase(t *testing.T) {
	repos := setupTestDB(t, 0)

	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder()
	reembedder, err := NewReembedder(repos.Passages, embedder, WithProgress(&buf))
	require.NoError(t, err)

	require.NoError(t, reembedder.Run(context.Background()))
	assert.Contains(t, buf.String(), "0 passages")
	assert.Zero(t, embedder.CallCount())
}

func TestReembedder_ResumeAfterFailure(t *testing.T) {
	repos := setupTestDB(t, 10)
	ctx := context.Background()

	calls := 0
	failing := mock.NewMockEmbedder()
	failing.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls > 2 {
			return nil, errors.New("embedding service down")
		}
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{0, 2, 0}
		}
		return vectors, nil
	}

	config := fastConfig()
	config.MaxRetries = 1
	first, err := NewReembedder(repos.Passages, failing, WithConfig(config), WithCheckpoints(repos.Checkpoints))
	require.NoError(t, err)
	require.Error(t, first.Run(ctx))

	all, err := repos.Passages.AllPassages(ctx)
	require.NoError(t, err)
	checkpoint, err := repos.Checkpoints.LoadCheckpoint(ctx, CheckpointName)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Equal(t, all[5].Id, checkpoint.LastID, "two batches of three were stored")

	resumeConfig := fastConfig()
	resumeConfig.Resume = true
	second := scaledEmbedder()
	resumed, err := NewReembedder(repos.Passages, second, WithConfig(resumeConfig), WithCheckpoints(repos.Checkpoints))
	require.NoError(t, err)
	require.NoError(t, resumed.Run(ctx))
	assert.Equal(t, 2, second.CallCount(), "only the remaining four passages are re-embedded")

	all, err = repos.Passages.AllPassages(ctx)
	require.NoError(t, err)
	for i, passage := range all {
		if i < 6 {
			assert.Equal(t, []float32{0, 1, 0}, passage.Vector)
		} else {
			assert.InDelta(t, 1.0, magnitude(passage.Vector), 1e-5)
			assert.NotEqual(t, float32(0), passage.Vector[0])
		}
	}
}

func TestReembedder_ContextCancelled(t *testing.T) {
	repos := setupTestDB(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reembedder, err := NewReembedder(repos.Passages, mock.NewMockEmbedder(), WithConfig(fastConfig()))
	require.NoError(t, err)
	assert.ErrorIs(t, reembedder.Run(ctx), context.Canceled)
}
