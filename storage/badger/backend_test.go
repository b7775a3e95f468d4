package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := OpenBackend(file, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	_, err = backend.Nearest(context.Background(), []float32{1, 0}, 5)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func addPassages(t *testing.T, repo *PassageRepository, passages ...*core.Passage) []*core.Passage {
	t.Helper()
	added, err := repo.AddPassages(context.Background(), passages...)
	require.NoError(t, err)
	return added
}

func TestNearest_NoPassages(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	neighbors, err := repos.Backend.Nearest(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestNearest_OrdersByDistance(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	added := addPassages(t, repos.Passages,
		&core.Passage{Source: "a.md", Text: "close", Vector: []float32{0.9, 0.1, 0}},
		&core.Passage{Source: "a.md", Text: "exact", Vector: []float32{1, 0, 0}},
		&core.Passage{Source: "b.md", Text: "far", Vector: []float32{0, 0, 1}},
		&core.Passage{Source: "b.md", Text: "not embedded"},
	)

	neighbors, err := repos.Passages.Nearest(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, neighbors, 3, "unembedded passages are not indexed")

	assert.Equal(t, added[1].Id, neighbors[0].PassageId)
	assert.Equal(t, added[0].Id, neighbors[1].PassageId)
	assert.Equal(t, added[2].Id, neighbors[2].PassageId)
	assert.InDelta(t, 0, neighbors[0].Distance, 1e-6)
	assert.InDelta(t, 1, neighbors[2].Distance, 1e-6)
}

func TestNearest_Limit(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	for i := range 10 {
		addPassages(t, repos.Passages, &core.Passage{
			Source: "doc.md",
			Text:   string(rune('a' + i)),
			Vector: []float32{1, float32(i)},
		})
	}

	neighbors, err := repos.Passages.Nearest(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, neighbors, 3)

	neighbors, err = repos.Passages.Nearest(context.Background(), []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestNearest_DimensionMismatch(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	addPassages(t, repos.Passages, &core.Passage{Source: "a.md", Text: "three dims", Vector: []float32{1, 0, 0}})

	_, err = repos.Passages.Nearest(context.Background(), []float32{1, 0}, 5)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestNearest_EmptyQuery(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	_, err = repos.Passages.Nearest(context.Background(), nil, 5)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestNearest_CanceledContext(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	addPassages(t, repos.Passages, &core.Passage{Source: "a.md", Text: "x", Vector: []float32{1, 0}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repos.Passages.Nearest(ctx, []float32{1, 0}, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTransaction(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()

	t.Run("successful transaction", func(t *testing.T) {
		err := backend.WithTransaction(ctx, func(ctx context.Context) error {
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("failed transaction", func(t *testing.T) {
		err := backend.WithTransaction(ctx, func(ctx context.Context) error {
			return assert.AnError
		})
		assert.Equal(t, assert.AnError, err)
	})
}

func TestGetSequence(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	seq, err := backend.GetSequence("test_sequence")
	require.NoError(t, err)
	require.NotNil(t, seq)
	defer seq.Release()

	id1, err := seq.Next()
	require.NoError(t, err)

	id2, err := seq.Next()
	require.NoError(t, err)

	assert.Greater(t, id2, id1)
}
