package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/foldersync/foldersync/internal/chunk"
	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/merkle"
	"github.com/foldersync/foldersync/internal/protocol"
	"github.com/foldersync/foldersync/internal/state"
)

// errModeForbidden is returned (as the RPC's wire Error string) when
// SyncFolder.mode forbids the requested direction.
var errModeForbidden = errors.New("handler: folder mode forbids this operation")

// dirPermissions/filePermissions match blockstore/state's convention.
const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// GetMST answers spec §4.10's getMST RPC: build the Merkle State Index
// fresh from the authoritative File State Store and return its root. Built
// fresh rather than incrementally maintained, matching the handler's
// stateless-across-RPCs contract.
func (h *Handler) GetMST(_ context.Context) (string, error) {
	if !h.allowOutgoingRead() {
		return "", errModeForbidden
	}

	idx := merkle.New()
	for path, md := range h.store.All() {
		if h.ignored(path) {
			continue
		}

		idx.Upsert(path, md.Hash)
	}

	return idx.Root().String(), nil
}

// GetFiles answers spec §4.10's getFiles RPC with filesV2(states)
// semantics: every live and tombstoned path this folder knows about.
func (h *Handler) GetFiles(ctx context.Context) ([]protocol.FileState, error) {
	if !h.allowOutgoingRead() {
		return nil, errModeForbidden
	}

	var out []protocol.FileState

	for path, md := range h.store.All() {
		if h.ignored(path) {
			continue
		}

		out = append(out, fileStateToWire(path, md, false))
	}

	for path, dr := range h.store.AllTombstones() {
		if h.ignored(path) {
			continue
		}

		out = append(out, protocol.FileState{
			Path:         path,
			Deleted:      true,
			MtimeUnixSec: dr.DeletedAt.Unix(),
			VC:           protocol.VCToWire(dr.VectorClock),
		})
	}

	return out, nil
}

func fileStateToWire(path string, md state.FileMetadata, deleted bool) protocol.FileState {
	fs := protocol.FileState{
		Path:         path,
		Deleted:      deleted,
		Hash:         md.Hash,
		Size:         md.Size,
		MtimeUnixSec: md.Mtime.Unix(),
		VC:           protocol.VCToWire(md.VectorClock),
	}

	if md.CreationDate != nil {
		fs.HasCreation = true
		fs.CreationUnix = md.CreationDate.Unix()
	}

	return fs
}

// GetFileData answers spec §4.10's getFileData RPC, including the
// write-in-progress guard: a zero-length, recently-modified file is given
// up to the stability window to settle before the read is attempted again.
func (h *Handler) GetFileData(ctx context.Context, relPath string) ([]byte, clock.VectorClock, error) {
	if !h.allowOutgoingRead() || h.ignored(relPath) {
		return nil, nil, errModeForbidden
	}

	absPath := filepath.Join(h.localPath, relPath)

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("handler: stat %s: %w", relPath, err)
	}

	if info.Size() == 0 && time.Since(info.ModTime()) < h.writeInProgressGrace() {
		time.Sleep(h.writeInProgressGrace())

		info, err = os.Stat(absPath)
		if err != nil {
			return nil, nil, fmt.Errorf("handler: re-stat %s: %w", relPath, err)
		}

		if info.Size() == 0 {
			return nil, nil, fmt.Errorf("handler: %s: file may be in progress", relPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("handler: reading %s: %w", relPath, err)
	}

	vc, err := h.clocks.Get(ctx, h.clockKey(relPath))
	if err != nil {
		return nil, nil, fmt.Errorf("handler: reading clock for %s: %w", relPath, err)
	}

	return data, vc, nil
}

// PutFileData answers spec §4.10's putFileData RPC: merge the caller's VC
// with ours before writing, write atomically, and only persist the merged
// VC once the write has landed.
func (h *Handler) PutFileData(ctx context.Context, relPath string, data []byte, remoteVC clock.VectorClock) (clock.VectorClock, error) {
	if !h.allowIncomingWrite() || h.ignored(relPath) {
		return nil, errModeForbidden
	}

	local, err := h.clocks.Get(ctx, h.clockKey(relPath))
	if err != nil {
		return nil, fmt.Errorf("handler: reading clock for %s: %w", relPath, err)
	}

	merged := clock.Merge(local, remoteVC)

	absPath := filepath.Join(h.localPath, relPath)
	if err := writeAtomic(absPath, data); err != nil {
		return nil, err
	}

	if err := h.clocks.Save(ctx, h.clockKey(relPath), merged); err != nil {
		return nil, fmt.Errorf("handler: saving clock for %s: %w", relPath, err)
	}

	h.store.SetLive(relPath, state.FileMetadata{
		Hash:        chunk.HashBytes(data),
		Mtime:       time.Now(),
		Size:        int64(len(data)),
		VectorClock: merged,
	})

	h.logger.Debug("handler: putFileData committed", slog.String("path", relPath), slog.Int("bytes", len(data)))

	return merged, nil
}

// DeleteFiles answers spec §4.10's deleteFiles RPC: apply atomic deletes
// with the externally supplied VCs merged into our own.
func (h *Handler) DeleteFiles(ctx context.Context, paths map[string]clock.VectorClock) error {
	if !h.allowIncomingWrite() {
		return errModeForbidden
	}

	for relPath, remoteVC := range paths {
		if h.ignored(relPath) {
			continue
		}

		local, err := h.clocks.Get(ctx, h.clockKey(relPath))
		if err != nil {
			return fmt.Errorf("handler: reading clock for %s: %w", relPath, err)
		}

		merged := clock.Merge(local, remoteVC)

		absPath := filepath.Join(h.localPath, relPath)
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("handler: deleting %s: %w", relPath, err)
		}

		if err := h.clocks.Save(ctx, h.clockKey(relPath), merged); err != nil {
			return fmt.Errorf("handler: saving clock for %s: %w", relPath, err)
		}

		h.store.SetDeleted(relPath, state.DeletionRecord{
			DeletedAt:   time.Now(),
			DeletedBy:   h.peerID,
			VectorClock: merged,
		})
	}

	return nil
}

// GetFileChunks answers spec §4.10's getFileChunks RPC: chunk the file on
// demand, populate the block store, and return the hash manifest.
func (h *Handler) GetFileChunks(ctx context.Context, relPath string) ([]string, clock.VectorClock, error) {
	if !h.allowOutgoingRead() || h.ignored(relPath) {
		return nil, nil, errModeForbidden
	}

	absPath := filepath.Join(h.localPath, relPath)

	f, err := os.Open(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("handler: opening %s: %w", relPath, err)
	}
	defer f.Close()

	chunks, err := chunk.Split(f)
	if err != nil {
		return nil, nil, fmt.Errorf("handler: chunking %s: %w", relPath, err)
	}

	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		hashes[i] = c.Hash

		if err := h.blocks.Put(c.Hash, c.Data); err != nil {
			return nil, nil, fmt.Errorf("handler: persisting chunk %s: %w", c.Hash, err)
		}
	}

	vc, err := h.clocks.Get(ctx, h.clockKey(relPath))
	if err != nil {
		return nil, nil, fmt.Errorf("handler: reading clock for %s: %w", relPath, err)
	}

	return hashes, vc, nil
}

// GetChunkData answers spec §4.10's getChunkData RPC: serve from the block
// store, falling back to on-demand recovery (re-chunk every local file
// until one of them contains hash) if the block is missing.
func (h *Handler) GetChunkData(ctx context.Context, hash string) ([]byte, error) {
	if !h.allowOutgoingRead() {
		return nil, errModeForbidden
	}

	if data, err := h.blocks.Get(hash); err == nil {
		return data, nil
	}

	if err := h.recoverChunk(hash); err != nil {
		return nil, fmt.Errorf("handler: chunk %s not found and recovery failed: %w", hash, err)
	}

	return h.blocks.Get(hash)
}

// PutFileChunks answers spec §4.10's putFileChunks RPC: if every listed
// hash is already present, reconstruct and commit; otherwise report which
// hashes are missing via protocol.FormatMissingChunksError.
func (h *Handler) PutFileChunks(ctx context.Context, relPath string, hashes []string, remoteVC clock.VectorClock) (bool, []string, clock.VectorClock, error) {
	if !h.allowIncomingWrite() || h.ignored(relPath) {
		return false, nil, nil, errModeForbidden
	}

	present := h.blocks.HasMany(hashes)

	var missing []string
	for _, hash := range hashes {
		if !present[hash] {
			missing = append(missing, hash)
		}
	}

	if len(missing) > 0 {
		return false, missing, nil, nil
	}

	data := make([]byte, 0)
	for _, hash := range hashes {
		chunkData, err := h.blocks.Get(hash)
		if err != nil {
			return false, nil, nil, fmt.Errorf("handler: reading chunk %s: %w", hash, err)
		}

		data = append(data, chunkData...)
	}

	local, err := h.clocks.Get(ctx, h.clockKey(relPath))
	if err != nil {
		return false, nil, nil, fmt.Errorf("handler: reading clock for %s: %w", relPath, err)
	}

	merged := clock.Merge(local, remoteVC)

	absPath := filepath.Join(h.localPath, relPath)
	if err := writeAtomic(absPath, data); err != nil {
		return false, nil, nil, err
	}

	if err := h.clocks.Save(ctx, h.clockKey(relPath), merged); err != nil {
		return false, nil, nil, fmt.Errorf("handler: saving clock for %s: %w", relPath, err)
	}

	h.store.SetLive(relPath, state.FileMetadata{
		Hash:        chunk.HashBytes(data),
		Mtime:       time.Now(),
		Size:        int64(len(data)),
		VectorClock: merged,
	})

	return true, nil, merged, nil
}

// PutChunkData answers spec §4.10's putChunkData RPC: verify and persist
// one chunk. blockstore.Put already verifies sha256(data) == hash.
func (h *Handler) PutChunkData(_ context.Context, hash string, data []byte) error {
	if !h.allowIncomingWrite() {
		return errModeForbidden
	}

	return h.blocks.Put(hash, data)
}

// recoverChunk implements spec §4.10's on-demand recovery: scan the folder
// for any file that re-chunks to contain hash, and materialize it into the
// block store.
func (h *Handler) recoverChunk(hash string) error {
	walkErr := filepath.WalkDir(h.localPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort scan; skip unreadable entries
		}

		if d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(h.localPath, path)
		if relErr != nil || h.ignored(filepath.ToSlash(relPath)) {
			return nil
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			return nil //nolint:nilerr // best-effort scan
		}

		chunks, splitErr := chunk.Split(f)
		f.Close()

		if splitErr != nil {
			return nil //nolint:nilerr // best-effort scan
		}

		found := false

		for _, c := range chunks {
			if putErr := h.blocks.Put(c.Hash, c.Data); putErr != nil {
				continue
			}

			if c.Hash == hash {
				found = true
			}
		}

		if found {
			return errRecovered
		}

		return nil
	})

	if walkErr == errRecovered {
		return nil
	}

	if walkErr != nil {
		return walkErr
	}

	return fmt.Errorf("handler: chunk %s not found in any local file", hash)
}

// errRecovered is a sentinel used only to short-circuit recoverChunk's walk
// once the target hash has been found and persisted.
var errRecovered = errors.New("handler: chunk recovered")

// writeAtomic writes data to a temp file next to path and renames into
// place, the same idiom internal/transfer and internal/state use.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("handler: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".handler-*.tmp")
	if err != nil {
		return fmt.Errorf("handler: creating temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("handler: writing %s: %w", tmpPath, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("handler: sync %s: %w", tmpPath, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("handler: close %s: %w", tmpPath, err)
	}

	if err := os.Chmod(tmpPath, filePermissions); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("handler: chmod %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("handler: renaming into place %s: %w", path, err)
	}

	return nil
}
