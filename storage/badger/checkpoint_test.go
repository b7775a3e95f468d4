package badger

import (
	"context"
	"testing"

	"github.com/poiesic/groundwork/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRepository(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	checkpoints := repos.Checkpoints

	loaded, err := checkpoints.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{ProcessorType: "reembed", LastID: 42}))

	loaded, err = checkpoints.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, core.ID(42), loaded.LastID)
	assert.False(t, loaded.UpdatedAt.IsZero())

	require.NoError(t, checkpoints.DeleteCheckpoint(ctx, "reembed"))
	loaded, err = checkpoints.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
