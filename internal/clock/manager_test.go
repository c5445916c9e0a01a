package clock

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := Open(filepath.Join(t.TempDir(), "clocks.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func TestManager_GetMissingReturnsNil(t *testing.T) {
	m := newTestManager(t)

	vc, err := m.Get(context.Background(), Key{SyncID: "DEMO", Path: "a.txt"})
	require.NoError(t, err)
	assert.Nil(t, vc)
}

func TestManager_SaveThenGet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	key := Key{SyncID: "DEMO", Path: "a.txt"}

	require.NoError(t, m.Save(ctx, key, VectorClock{"p1": 3}))

	got, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, VectorClock{"p1": 3}, got)
}

func TestManager_UpdateForLocalChange(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	key := Key{SyncID: "DEMO", Path: "a.txt"}

	vc1, err := m.UpdateForLocalChange(ctx, key, "p1")
	require.NoError(t, err)
	assert.Equal(t, VectorClock{"p1": 1}, vc1)

	vc2, err := m.UpdateForLocalChange(ctx, key, "p1")
	require.NoError(t, err)
	assert.Equal(t, VectorClock{"p1": 2}, vc2)
}

func TestManager_Migrate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, Key{SyncID: "DEMO", Path: "old.bin"}, VectorClock{"p1": 5}))

	require.NoError(t, m.Migrate(ctx, "DEMO", "old.bin", "new.bin"))

	old, err := m.Get(ctx, Key{SyncID: "DEMO", Path: "old.bin"})
	require.NoError(t, err)
	assert.Nil(t, old)

	migrated, err := m.Get(ctx, Key{SyncID: "DEMO", Path: "new.bin"})
	require.NoError(t, err)
	assert.Equal(t, VectorClock{"p1": 5}, migrated)
}

func TestManager_Migrate_NoEntryIsNoop(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Migrate(context.Background(), "DEMO", "missing.bin", "dest.bin"))
}

func TestManager_SaveMany(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.SaveMany(ctx, "DEMO", map[string]VectorClock{
		"a.txt": {"p1": 1},
		"b.txt": {"p2": 2},
	})
	require.NoError(t, err)

	a, err := m.Get(ctx, Key{SyncID: "DEMO", Path: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, VectorClock{"p1": 1}, a)

	b, err := m.Get(ctx, Key{SyncID: "DEMO", Path: "b.txt"})
	require.NoError(t, err)
	assert.Equal(t, VectorClock{"p2": 2}, b)
}
