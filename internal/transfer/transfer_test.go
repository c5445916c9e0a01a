package transfer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/blockstore"
	"github.com/foldersync/foldersync/internal/chunk"
	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/config"
)

// fakePeer is an in-memory Uploader/Downloader pair standing in for the
// wire RPC client internal/protocol provides, used to exercise the
// Manager's upload/download orchestration without a real network peer.
type fakePeer struct {
	mu             sync.Mutex
	files          map[string][]byte
	chunkStores    map[string][]byte
	fileChunkIndex map[string][]string
	remoteVC       clock.VectorClock
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		files:       make(map[string][]byte),
		chunkStores: make(map[string][]byte),
		remoteVC:    clock.VectorClock{"p2": 1},
	}
}

func (f *fakePeer) PutFileData(_ context.Context, path string, data []byte, _ clock.VectorClock) (clock.VectorClock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[path] = append([]byte(nil), data...)

	return f.remoteVC.Clone(), nil
}

func (f *fakePeer) PutFileChunks(_ context.Context, _ string, hashes []string, _ clock.VectorClock) (bool, []string, clock.VectorClock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var missing []string
	for _, h := range hashes {
		if _, ok := f.chunkStores[h]; !ok {
			missing = append(missing, h)
		}
	}

	return len(missing) == 0, missing, f.remoteVC.Clone(), nil
}

func (f *fakePeer) PutChunkData(_ context.Context, hash string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.chunkStores[hash] = append([]byte(nil), data...)

	return nil
}

func (f *fakePeer) GetFileData(_ context.Context, path string) ([]byte, clock.VectorClock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.files[path], f.remoteVC.Clone(), nil
}

func (f *fakePeer) GetFileChunks(_ context.Context, path string) ([]string, clock.VectorClock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fileChunkIndex[path], f.remoteVC.Clone(), nil
}

func (f *fakePeer) GetChunkData(_ context.Context, hash string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.chunkStores[hash]
	if !ok {
		return nil, blockstore.ErrNotFound
	}

	return data, nil
}

func newManagerForTest(t *testing.T) (*Manager, *blockstore.Store) {
	t.Helper()

	dir := t.TempDir()
	paths := config.NewAppPaths(dir)
	blocks := blockstore.New(paths, nil)
	tunables := config.DefaultTunables()

	mgr := New(blocks, nil, tunables, nil, nil)

	return mgr, blocks
}

func TestUploadFile_FullTransferBelowThreshold(t *testing.T) {
	mgr, _ := newManagerForTest(t)
	peer := newFakePeer()

	dir := t.TempDir()
	localPath := filepath.Join(dir, "small.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("hello world"), 0o644))

	result, err := mgr.UploadFile(context.Background(), peer, "small.txt", localPath, chunk.HashBytes([]byte("hello world")), clock.VectorClock{"p1": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), result.Size)
	assert.Equal(t, []byte("hello world"), peer.files["small.txt"])
	assert.Equal(t, uint64(1), result.VectorClock["p1"])
	assert.Equal(t, uint64(1), result.VectorClock["p2"])
}

func TestDownloadFile_FullTransferBelowThreshold(t *testing.T) {
	mgr, _ := newManagerForTest(t)
	peer := newFakePeer()
	peer.files["small.txt"] = []byte("remote content")

	dir := t.TempDir()
	localPath := filepath.Join(dir, "small.txt")

	result, err := mgr.DownloadFile(context.Background(), peer, "small.txt", localPath, FileInfo{
		Hash: chunk.HashBytes([]byte("remote content")),
		Size: int64(len("remote content")),
	}, clock.VectorClock{"p1": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(len("remote content")), result.Size)

	got, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "remote content", string(got))
}

func TestUploadFile_ChunkedAboveThreshold(t *testing.T) {
	mgr, _ := newManagerForTest(t)
	peer := newFakePeer()

	dir := t.TempDir()
	localPath := filepath.Join(dir, "big.bin")

	// Exceed FullTransferThreshold (256 KiB) so the chunked path is taken.
	data := make([]byte, 512*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(localPath, data, 0o644))

	result, err := mgr.UploadFile(context.Background(), peer, "big.bin", localPath, chunk.HashBytes(data), clock.VectorClock{"p1": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.Size)
	assert.NotEmpty(t, peer.chunkStores)
}

func TestDownloadFile_ChunkedReconstructsExactBytes(t *testing.T) {
	mgr, blocks := newManagerForTest(t)
	peer := newFakePeer()

	data := make([]byte, 512*1024)
	for i := range data {
		data[i] = byte((i * 7) % 251)
	}

	chunks, err := chunk.Split(bytes.NewReader(data))
	require.NoError(t, err)

	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		hashes[i] = c.Hash
		peer.chunkStores[c.Hash] = c.Data
	}

	peer.fileChunkIndex = map[string][]string{"big.bin": hashes}

	dir := t.TempDir()
	localPath := filepath.Join(dir, "big.bin")

	result, err := mgr.DownloadFile(context.Background(), peer, "big.bin", localPath, FileInfo{
		Hash: chunk.HashBytes(data),
		Size: int64(len(data)),
	}, clock.VectorClock{})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.Size)

	got, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	for _, h := range hashes {
		assert.True(t, blocks.Has(h))
	}
}

func TestUploadFile_OOMGuardBlocksFullUpload(t *testing.T) {
	mgr, _ := newManagerForTest(t)
	mgr.tunables.OOMGuardThreshold = 1024
	mgr.tunables.FullTransferThreshold = 1024 * 1024 * 1024 // force the full-transfer path

	dir := t.TempDir()
	localPath := filepath.Join(dir, "huge.bin")
	require.NoError(t, os.WriteFile(localPath, make([]byte, 2048), 0o644))

	_, err := mgr.UploadFile(context.Background(), newFakePeer(), "huge.bin", localPath, "deadbeef", clock.VectorClock{"p1": 1})
	require.ErrorIs(t, err, ErrOOMGuard)
}
