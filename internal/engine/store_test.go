package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"leverager/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() *core.EngineState {
	return &core.EngineState{
		Principal:      "100.5",
		TargetLtvBps:   7500,
		SafetyBufBps:   100,
		Active:         true,
		LastSharePrice: "1.02",
		UpdatedAt:      time.Now().UnixNano(),
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	loaded, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded, "empty store loads nil, not an error")

	state := sampleState()
	require.NoError(t, store.SaveState(ctx, state))

	// Mutating the saved pointer must not leak into the store.
	state.TargetLtvBps = 9999

	loaded, err = store.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(7500), loaded.TargetLtvBps)
	assert.Equal(t, "100.5", loaded.Principal)
	assert.True(t, loaded.Active)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	loaded, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	state := sampleState()
	require.NoError(t, store.SaveState(ctx, state))

	loaded, err = store.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.Principal, loaded.Principal)
	assert.Equal(t, state.TargetLtvBps, loaded.TargetLtvBps)
	assert.Equal(t, state.LastSharePrice, loaded.LastSharePrice)
}

func TestSQLiteStoreOverwritesSingleRow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	first := sampleState()
	require.NoError(t, store.SaveState(ctx, first))

	second := sampleState()
	second.TargetLtvBps = 8000
	second.Active = false
	require.NoError(t, store.SaveState(ctx, second))

	loaded, err := store.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(8000), loaded.TargetLtvBps)
	assert.False(t, loaded.Active)
}

func TestSQLiteStoreDetectsCorruption(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveState(ctx, sampleState()))

	// Flip the stored payload underneath the checksum.
	_, err = store.db.ExecContext(ctx, `UPDATE engine_state SET data = ? WHERE id = 1`, `{"principal":"tampered"}`)
	require.NoError(t, err)

	_, err = store.LoadState(ctx)
	assert.ErrorContains(t, err, "checksum")
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveState(ctx, sampleState()))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "100.5", loaded.Principal)
}
