package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/foldersync/foldersync/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "snapshot.json"), filepath.Join(dir, "tombstones.json"))
	require.NoError(t, err)

	return s
}

func TestOpen_MissingFilesIsEmptyStore(t *testing.T) {
	s := newTestStore(t)

	assert.Empty(t, s.All())
	assert.Empty(t, s.AllTombstones())
}

func TestSetLive_ThenGet(t *testing.T) {
	s := newTestStore(t)

	md := FileMetadata{Hash: "abc", Size: 3, Mtime: time.Now(), VectorClock: clock.VectorClock{"p1": 1}}
	s.SetLive("a.txt", md)

	got, ok := s.Get("a.txt")
	require.True(t, ok)
	require.True(t, got.Exists())
	assert.Equal(t, "abc", got.Metadata.Hash)
}

func TestSetDeleted_ClearsLiveEntry(t *testing.T) {
	s := newTestStore(t)

	s.SetLive("a.txt", FileMetadata{Hash: "abc"})
	s.SetDeleted("a.txt", DeletionRecord{DeletedBy: "p1", VectorClock: clock.VectorClock{"p1": 2}})

	got, ok := s.Get("a.txt")
	require.True(t, ok)
	assert.True(t, got.Deleted())
	assert.Empty(t, s.All())
}

func TestSetLive_ResurrectsClearsTombstone(t *testing.T) {
	s := newTestStore(t)

	s.SetDeleted("a.txt", DeletionRecord{DeletedBy: "p1"})
	s.SetLive("a.txt", FileMetadata{Hash: "abc"})

	got, ok := s.Get("a.txt")
	require.True(t, ok)
	assert.True(t, got.Exists())
	assert.Empty(t, s.AllTombstones())
}

func TestFlush_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "snapshot.json")
	tombstonesPath := filepath.Join(dir, "tombstones.json")

	s, err := Open(snapshotPath, tombstonesPath)
	require.NoError(t, err)

	s.SetLive("a.txt", FileMetadata{Hash: "abc", Size: 3, VectorClock: clock.VectorClock{"p1": 1}})
	s.SetDeleted("b.txt", DeletionRecord{DeletedBy: "p1", VectorClock: clock.VectorClock{"p1": 2}})

	require.NoError(t, s.Flush())

	reopened, err := Open(snapshotPath, tombstonesPath)
	require.NoError(t, err)

	assert.Len(t, reopened.All(), 1)
	assert.Len(t, reopened.AllTombstones(), 1)

	got, ok := reopened.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, "abc", got.Metadata.Hash)
}

func TestRemove_ClearsBothSides(t *testing.T) {
	s := newTestStore(t)

	s.SetLive("a.txt", FileMetadata{Hash: "abc"})
	s.Remove("a.txt")

	_, ok := s.Get("a.txt")
	assert.False(t, ok)
}

func TestExpireTombstones_RemovesOnlyUnkept(t *testing.T) {
	s := newTestStore(t)

	s.SetDeleted("old.txt", DeletionRecord{DeletedBy: "p1"})
	s.SetDeleted("new.txt", DeletionRecord{DeletedBy: "p1"})

	removed := s.ExpireTombstones(func(path string, dr DeletionRecord) bool {
		return path == "new.txt"
	})

	assert.Equal(t, 1, removed)

	_, ok := s.Get("old.txt")
	assert.False(t, ok)

	_, ok = s.Get("new.txt")
	assert.True(t, ok)
}

func TestAcknowledgedByAllOnline(t *testing.T) {
	dr := DeletionRecord{VectorClock: clock.VectorClock{"p1": 3}}

	assert.False(t, AcknowledgedByAllOnline(dr, nil))

	assert.True(t, AcknowledgedByAllOnline(dr, map[string]clock.VectorClock{
		"p2": {"p1": 3, "p2": 1},
	}))

	assert.False(t, AcknowledgedByAllOnline(dr, map[string]clock.VectorClock{
		"p2": {"p1": 2},
	}))

	assert.False(t, AcknowledgedByAllOnline(dr, map[string]clock.VectorClock{
		"p2": {"p1": 3},
		"p3": {"p1": 1},
	}))
}
