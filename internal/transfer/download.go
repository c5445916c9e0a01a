package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foldersync/foldersync/internal/chunk"
	"github.com/foldersync/foldersync/internal/clock"
)

// dirPermissions/filePermissions match the teacher's download conventions,
// already used by internal/state and internal/blockstore.
const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// DownloadFile fetches remote's content for remotePath from dl and writes
// it to localPath, choosing full vs chunked transfer by remote.Size (spec
// §4.9). It arms the sync-write cooldown via Manager.suppressWrite
// immediately before the local write lands, and sets mtime/creationDate
// from remote.
func (m *Manager) DownloadFile(ctx context.Context, dl Downloader, remotePath, localPath string, remote FileInfo, localVC clock.VectorClock) (*Result, error) {
	m.logger.Debug("transfer: download starting",
		slog.String("path", remotePath),
		slog.Int64("size", remote.Size),
		slog.Bool("chunked", m.useChunked(remote.Size)),
	)

	if err := os.MkdirAll(filepath.Dir(localPath), dirPermissions); err != nil {
		return nil, fmt.Errorf("transfer: creating parent dir for %s: %w", localPath, err)
	}

	if !m.useChunked(remote.Size) {
		return m.fullDownload(ctx, dl, remotePath, localPath, remote, localVC)
	}

	result, err := m.chunkedDownload(ctx, dl, remotePath, localPath, remote, localVC)
	if err == nil {
		return result, nil
	}

	m.logger.Warn("transfer: chunked download failed, considering full-download fallback",
		slog.String("path", remotePath), slog.String("error", err.Error()))

	if guardErr := m.checkOOMGuard(remote.Size); guardErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrChunkUploadExhausted, guardErr)
	}

	return m.fullDownload(ctx, dl, remotePath, localPath, remote, localVC)
}

// fullDownload fetches the entire file in one RPC and writes it atomically
// (spec §4.9 "below threshold, full transfer").
func (m *Manager) fullDownload(ctx context.Context, dl Downloader, remotePath, localPath string, remote FileInfo, localVC clock.VectorClock) (*Result, error) {
	if err := m.checkOOMGuard(remote.Size); err != nil {
		return nil, err
	}

	var (
		data     []byte
		remoteVC clock.VectorClock
	)

	op := func() error {
		var getErr error
		data, remoteVC, getErr = dl.GetFileData(ctx, remotePath)
		return getErr
	}

	if err := m.retry(ctx, op); err != nil {
		return nil, fmt.Errorf("transfer: full download of %s: %w", remotePath, err)
	}

	if err := m.limiter.Wait(ctx, len(data)); err != nil {
		return nil, fmt.Errorf("transfer: bandwidth wait for %s: %w", remotePath, err)
	}

	m.suppressWrite(localPath)

	if err := m.writeAtomic(localPath, data, remote.Mtime); err != nil {
		return nil, err
	}

	result := mergeAndStamp(localVC, remoteVC, chunk.HashBytes(data), int64(len(data)), remote.Mtime, remote.CreationDate)

	m.logger.Debug("transfer: full download complete", slog.String("path", localPath), slog.Int("bytes", len(data)))

	return &result, nil
}

// chunkedDownload implements spec §4.9's chunked download protocol: fetch
// the manifest, pull whatever isn't already in the local block store with
// bounded concurrency, then reconstruct by concatenation.
func (m *Manager) chunkedDownload(ctx context.Context, dl Downloader, remotePath, localPath string, remote FileInfo, localVC clock.VectorClock) (*Result, error) {
	var (
		hashes   []string
		remoteVC clock.VectorClock
	)

	op := func() error {
		var getErr error
		hashes, remoteVC, getErr = dl.GetFileChunks(ctx, remotePath)
		return getErr
	}

	if err := m.retry(ctx, op); err != nil {
		return nil, fmt.Errorf("transfer: getFileChunks for %s: %w", remotePath, err)
	}

	present := m.blocks.HasMany(hashes)

	var missing []string
	for _, h := range hashes {
		if !present[h] {
			missing = append(missing, h)
		}
	}

	if err := m.fetchMissingChunks(ctx, dl, missing); err != nil {
		return nil, fmt.Errorf("transfer: fetching missing chunks for %s: %w", remotePath, err)
	}

	size, err := m.reconstructFile(localPath, hashes, remote.Mtime)
	if err != nil {
		return nil, err
	}

	result := mergeAndStamp(localVC, remoteVC, remote.Hash, size, remote.Mtime, remote.CreationDate)

	m.logger.Debug("transfer: chunked download complete",
		slog.String("path", localPath), slog.Int("chunks", len(hashes)), slog.Int("fetched", len(missing)))

	return &result, nil
}

// fetchMissingChunks downloads each hash in missing, bounded to
// MaxChunkDownloadConcurrency (spec §5, ≤4), verifying and persisting each
// into the block store (blockstore.Put rejects a hash mismatch).
func (m *Manager) fetchMissingChunks(ctx context.Context, dl Downloader, missing []string) error {
	if len(missing) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency(m.tunables.MaxChunkDownloadConcurrency))

	for _, hash := range missing {
		g.Go(func() error {
			var data []byte

			err := m.retry(gctx, func() error {
				var getErr error
				data, getErr = dl.GetChunkData(gctx, hash)
				return getErr
			})
			if err != nil {
				return fmt.Errorf("fetching chunk %s: %w", hash, err)
			}

			if waitErr := m.limiter.Wait(gctx, len(data)); waitErr != nil {
				return waitErr
			}

			if err := m.blocks.Put(hash, data); err != nil {
				return fmt.Errorf("persisting chunk %s: %w", hash, err)
			}

			return nil
		})
	}

	return g.Wait()
}

// reconstructFile concatenates the block store's content for hashes, in
// order, into a temp file and atomically renames it into place, arming
// the sync-write cooldown immediately before the rename exactly as
// writeAtomic does for the full-transfer path. Only one chunk's bytes are
// ever held in memory at a time, so this never materializes the whole
// file (the OOM guard only gates the full-transfer path).
func (m *Manager) reconstructFile(localPath string, hashes []string, mtime time.Time) (int64, error) {
	dir := filepath.Dir(localPath)

	tmp, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("transfer: creating temp file for %s: %w", localPath, err)
	}
	tmpPath := tmp.Name()

	var total int64

	for _, h := range hashes {
		data, getErr := m.blocks.Get(h)
		if getErr != nil {
			tmp.Close()
			os.Remove(tmpPath)

			return 0, fmt.Errorf("transfer: reading chunk %s from block store: %w", h, getErr)
		}

		if _, writeErr := tmp.Write(data); writeErr != nil {
			tmp.Close()
			os.Remove(tmpPath)

			return 0, fmt.Errorf("transfer: writing chunk %s to %s: %w", h, tmpPath, writeErr)
		}

		total += int64(len(data))
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return 0, fmt.Errorf("transfer: sync %s: %w", tmpPath, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("transfer: close %s: %w", tmpPath, err)
	}

	if err := os.Chmod(tmpPath, filePermissions); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("transfer: chmod %s: %w", tmpPath, err)
	}

	if !mtime.IsZero() {
		if err := os.Chtimes(tmpPath, mtime, mtime); err != nil {
			m.logger.Warn("transfer: failed to set mtime on reconstructed file",
				slog.String("path", localPath), slog.String("error", err.Error()))
		}
	}

	m.suppressWrite(localPath)

	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("transfer: renaming into place %s: %w", localPath, err)
	}

	return total, nil
}

// writeAtomic writes data to a temp file next to path, sets mtime, and
// renames into place (spec §4.9, grounded on the teacher's
// ".partial then os.Rename" idiom in transfer_manager.go).
func (m *Manager) writeAtomic(path string, data []byte, mtime time.Time) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("transfer: creating temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("transfer: writing %s: %w", tmpPath, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("transfer: sync %s: %w", tmpPath, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("transfer: close %s: %w", tmpPath, err)
	}

	if err := os.Chmod(tmpPath, filePermissions); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("transfer: chmod %s: %w", tmpPath, err)
	}

	if !mtime.IsZero() {
		if err := os.Chtimes(tmpPath, mtime, mtime); err != nil {
			m.logger.Warn("transfer: failed to set mtime on downloaded file",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("transfer: renaming into place %s: %w", path, err)
	}

	return nil
}
