package detector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/merkle"
	"github.com/foldersync/foldersync/internal/state"
)

func newTestDetector(t *testing.T) (*Detector, string) {
	t.Helper()

	root := t.TempDir()
	dataDir := t.TempDir()

	st, err := state.Open(filepath.Join(dataDir, "snapshot.json"), filepath.Join(dataDir, "tombstones.json"))
	require.NoError(t, err)

	clocks, err := clock.Open(filepath.Join(dataDir, "clocks.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clocks.Close() })

	tunables := Tunables{
		StabilityWindow:       3 * time.Second,
		SyncWriteCooldown:     2 * time.Second,
		RenameDetectionWindow: 5 * time.Second,
		DedupWindow:           1 * time.Second,
		MaxScanConcurrency:    4,
	}

	d := New(root, "folder1", "DEMO", "peer1", tunables, st, clocks, merkle.New(), nil, nil)

	return d, root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestHandleRawEvent_CreatedFile(t *testing.T) {
	d, root := newTestDetector(t)
	ctx := context.Background()

	p := filepath.Join(root, "a.txt")
	writeFile(t, p, "hello")

	change, err := d.HandleRawEvent(ctx, p, OpWrite)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, Created, change.Kind)
	assert.Equal(t, "a.txt", change.Path)
	assert.Equal(t, clock.VectorClock{"peer1": 1}, change.VectorClock)

	got, ok := d.state.Get("a.txt")
	require.True(t, ok)
	assert.True(t, got.Exists())
}

func TestHandleRawEvent_ModifiedOnlyWhenHashChanges(t *testing.T) {
	d, root := newTestDetector(t)
	ctx := context.Background()

	p := filepath.Join(root, "a.txt")
	writeFile(t, p, "hello")
	_, err := d.HandleRawEvent(ctx, p, OpWrite)
	require.NoError(t, err)

	// Rewrite with different mtime but identical content: fast path plus
	// hash-equality must both suppress a spurious modified event.
	writeFile(t, p, "hello")
	time.Sleep(1100 * time.Millisecond)

	change, err := d.HandleRawEvent(ctx, p, OpWrite)
	require.NoError(t, err)
	assert.Nil(t, change)

	writeFile(t, p, "goodbye")
	time.Sleep(1100 * time.Millisecond)

	change, err = d.HandleRawEvent(ctx, p, OpWrite)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, Modified, change.Kind)
}

func TestHandleRawEvent_DeletedOnExplicitRemove(t *testing.T) {
	d, root := newTestDetector(t)
	ctx := context.Background()

	p := filepath.Join(root, "a.txt")
	writeFile(t, p, "hello")
	_, err := d.HandleRawEvent(ctx, p, OpWrite)
	require.NoError(t, err)

	require.NoError(t, os.Remove(p))

	change, err := d.HandleRawEvent(ctx, p, OpRemove)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, Deleted, change.Kind)

	got, ok := d.state.Get("a.txt")
	require.True(t, ok)
	assert.True(t, got.Deleted())
}

func TestHandleRawEvent_RenameDetection(t *testing.T) {
	d, root := newTestDetector(t)
	ctx := context.Background()

	oldPath := filepath.Join(root, "old.txt")
	newPath := filepath.Join(root, "new.txt")

	writeFile(t, oldPath, "payload")
	_, err := d.HandleRawEvent(ctx, oldPath, OpWrite)
	require.NoError(t, err)

	require.NoError(t, os.Rename(oldPath, newPath))

	change, err := d.HandleRawEvent(ctx, oldPath, OpRename)
	require.NoError(t, err)
	assert.Nil(t, change, "disappearance is buffered, not emitted yet")

	change, err = d.HandleRawEvent(ctx, newPath, OpWrite)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, Renamed, change.Kind)
	assert.Equal(t, "old.txt", change.OldPath)
	assert.Equal(t, "new.txt", change.Path)

	_, ok := d.state.Get("old.txt")
	assert.False(t, ok)
}

func TestSweep_PromotesTimedOutPendingRenameToDelete(t *testing.T) {
	d, root := newTestDetector(t)
	d.tunables.RenameDetectionWindow = 10 * time.Millisecond
	ctx := context.Background()

	p := filepath.Join(root, "a.txt")
	writeFile(t, p, "hello")
	_, err := d.HandleRawEvent(ctx, p, OpWrite)
	require.NoError(t, err)

	require.NoError(t, os.Remove(p))
	_, err = d.HandleRawEvent(ctx, p, OpRename)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	changes, err := d.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, Deleted, changes[0].Kind)
	assert.Equal(t, "a.txt", changes[0].Path)
}

func TestHandleRawEvent_SyncWriteCooldownSuppresses(t *testing.T) {
	d, root := newTestDetector(t)
	ctx := context.Background()

	p := filepath.Join(root, "a.txt")
	d.SuppressRemoteWrite("a.txt")
	writeFile(t, p, "hello")

	change, err := d.HandleRawEvent(ctx, p, OpWrite)
	require.NoError(t, err)
	assert.Nil(t, change)
}

func TestHandleRawEvent_IgnoredPattern(t *testing.T) {
	d, root := newTestDetector(t)
	d.ignore = NewRules([]string{"*.tmp"})
	ctx := context.Background()

	p := filepath.Join(root, "scratch.tmp")
	writeFile(t, p, "hello")

	change, err := d.HandleRawEvent(ctx, p, OpWrite)
	require.NoError(t, err)
	assert.Nil(t, change)
}

func TestHandleRawEvent_DirectoryAppearanceProducesNoChange(t *testing.T) {
	d, root := newTestDetector(t)
	ctx := context.Background()

	p := filepath.Join(root, "subdir")
	require.NoError(t, os.Mkdir(p, 0o755))

	change, err := d.HandleRawEvent(ctx, p, OpWrite)
	require.NoError(t, err)
	assert.Nil(t, change)

	got, ok := d.state.Get("subdir")
	require.True(t, ok)
	assert.Equal(t, state.DirectoryHash, got.Metadata.Hash)
}
