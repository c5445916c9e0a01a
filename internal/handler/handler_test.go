package handler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/blockstore"
	"github.com/foldersync/foldersync/internal/chunk"
	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/detector"
	"github.com/foldersync/foldersync/internal/state"
)

func hashOf(_ *testing.T, s string) string {
	return chunk.HashBytes([]byte(s))
}

func newTestHandler(t *testing.T, mode config.SyncMode) (*Handler, string, config.AppPaths) {
	t.Helper()

	dataDir := t.TempDir()
	localPath := t.TempDir()
	paths := config.NewAppPaths(dataDir)

	require.NoError(t, os.MkdirAll(paths.StateDir("sync1"), 0o755))

	store, err := state.Open(paths.SnapshotPath("sync1"), paths.TombstonesPath("sync1"))
	require.NoError(t, err)

	clocks, err := clock.Open(paths.ClockDBPath("folder1"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { clocks.Close() })

	blocks := blockstore.New(paths, nil)
	rules := detector.NewRules(nil)

	h := New("folder1", "sync1", localPath, mode, rules, store, blocks, clocks, config.DefaultTunables(), "peerA", nil)

	return h, localPath, paths
}

func TestHandler_PutFileData_Then_GetFileData_RoundTrips(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ModeTwoWay)
	ctx := context.Background()

	remoteVC, err := h.PutFileData(ctx, "hello.txt", []byte("hi there"), clock.VectorClock{"peerB": 1})
	require.NoError(t, err)
	require.Equal(t, uint64(1), remoteVC["peerB"])

	data, vc, err := h.GetFileData(ctx, "hello.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hi there"), data)
	require.Equal(t, uint64(1), vc["peerB"])
}

func TestHandler_PutFileData_ForbiddenOnUploadOnly(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ModeUploadOnly)

	_, err := h.PutFileData(context.Background(), "hello.txt", []byte("hi"), nil)
	require.ErrorIs(t, err, errModeForbidden)
}

func TestHandler_GetFileData_ForbiddenOnDownloadOnly(t *testing.T) {
	h, localPath, _ := newTestHandler(t, config.ModeDownloadOnly)
	require.NoError(t, os.WriteFile(filepath.Join(localPath, "hello.txt"), []byte("hi"), 0o644))

	_, _, err := h.GetFileData(context.Background(), "hello.txt")
	require.ErrorIs(t, err, errModeForbidden)
}

func TestHandler_PutFileChunks_MissingReportsHashes(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ModeTwoWay)

	ack, missing, _, err := h.PutFileChunks(context.Background(), "big.bin", []string{"deadbeef"}, nil)
	require.NoError(t, err)
	require.False(t, ack)
	require.Equal(t, []string{"deadbeef"}, missing)
}

func TestHandler_PutFileChunks_AckWhenAllPresent(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ModeTwoWay)
	ctx := context.Background()

	require.NoError(t, h.PutChunkData(ctx, hashOf(t, "part-one"), []byte("part-one")))
	require.NoError(t, h.PutChunkData(ctx, hashOf(t, "part-two"), []byte("part-two")))

	hashes := []string{hashOf(t, "part-one"), hashOf(t, "part-two")}

	ack, missing, _, err := h.PutFileChunks(ctx, "big.bin", hashes, clock.VectorClock{"peerB": 2})
	require.NoError(t, err)
	require.True(t, ack)
	require.Empty(t, missing)

	data, _, err := h.GetFileData(ctx, "big.bin")
	require.NoError(t, err)
	require.Equal(t, []byte("part-onepart-two"), data)
}

func TestHandler_GetChunkData_RecoversFromLocalFile(t *testing.T) {
	h, localPath, paths := newTestHandler(t, config.ModeTwoWay)

	content := []byte("some file content that becomes a chunk")
	require.NoError(t, os.WriteFile(filepath.Join(localPath, "existing.txt"), content, 0o644))

	hashes, _, err := h.GetFileChunks(context.Background(), "existing.txt")
	require.NoError(t, err)
	require.NotEmpty(t, hashes)

	targetHash := hashes[0]

	// Simulate the block having been evicted from the store (e.g. after a
	// cache purge) while the source file is still present locally: remove
	// the block straight off disk, bypassing the Store API, then confirm
	// GetChunkData's on-demand recovery rebuilds it by re-scanning the
	// folder.
	require.NoError(t, os.Remove(paths.BlockPath(targetHash)))
	require.False(t, h.blocks.Has(targetHash))

	data, err := h.GetChunkData(context.Background(), targetHash)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	require.True(t, h.blocks.Has(targetHash))
}

func TestHandler_DeleteFiles_RemovesAndRecordsTombstone(t *testing.T) {
	h, localPath, _ := newTestHandler(t, config.ModeTwoWay)
	ctx := context.Background()

	_, err := h.PutFileData(ctx, "gone.txt", []byte("bye"), nil)
	require.NoError(t, err)

	err = h.DeleteFiles(ctx, map[string]clock.VectorClock{"gone.txt": {"peerB": 1}})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(localPath, "gone.txt"))
	require.True(t, os.IsNotExist(statErr))

	tombstones := h.store.AllTombstones()
	require.Contains(t, tombstones, "gone.txt")
}

func TestHandler_GetMST_ReflectsStoreContents(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ModeTwoWay)
	ctx := context.Background()

	rootBefore, err := h.GetMST(ctx)
	require.NoError(t, err)

	_, err = h.PutFileData(ctx, "a.txt", []byte("content"), nil)
	require.NoError(t, err)

	rootAfter, err := h.GetMST(ctx)
	require.NoError(t, err)
	require.NotEqual(t, rootBefore, rootAfter)
}

func TestHandler_GetFiles_ListsLiveAndDeleted(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ModeTwoWay)
	ctx := context.Background()

	_, err := h.PutFileData(ctx, "live.txt", []byte("x"), nil)
	require.NoError(t, err)

	_, err = h.PutFileData(ctx, "gone.txt", []byte("y"), nil)
	require.NoError(t, err)
	require.NoError(t, h.DeleteFiles(ctx, map[string]clock.VectorClock{"gone.txt": nil}))

	states, err := h.GetFiles(ctx)
	require.NoError(t, err)

	var sawLive, sawDeleted bool

	for _, fs := range states {
		switch fs.Path {
		case "live.txt":
			sawLive = !fs.Deleted
		case "gone.txt":
			sawDeleted = fs.Deleted
		}
	}

	require.True(t, sawLive)
	require.True(t, sawDeleted)
}
