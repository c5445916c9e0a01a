package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/foldersync/foldersync/internal/chunk"
	"github.com/foldersync/foldersync/internal/clock"
)

// UploadFile sends localPath's contents to the remote peer via up,
// choosing full vs chunked transfer by size (spec §4.9). localHash/localVC
// are the caller's already-computed values (from the Change Detector /
// File State Store) for the path being uploaded.
func (m *Manager) UploadFile(
	ctx context.Context, up Uploader, remotePath, localPath, localHash string, localVC clock.VectorClock,
) (*Result, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: stat %s: %w", localPath, err)
	}

	size := info.Size()
	mtime := info.ModTime()

	m.logger.Debug("transfer: upload starting",
		slog.String("path", remotePath),
		slog.Int64("size", size),
		slog.Bool("chunked", m.useChunked(size)),
	)

	if !m.useChunked(size) {
		return m.fullUpload(ctx, up, remotePath, localPath, localHash, size, mtime, localVC)
	}

	result, err := m.chunkedUpload(ctx, up, remotePath, localPath, localVC)
	if err == nil {
		return result, nil
	}

	m.logger.Warn("transfer: chunked upload failed, considering full-upload fallback",
		slog.String("path", remotePath), slog.String("error", err.Error()))

	if guardErr := m.checkOOMGuard(size); guardErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrChunkUploadExhausted, guardErr)
	}

	return m.fullUpload(ctx, up, remotePath, localPath, localHash, size, mtime, localVC)
}

// fullUpload sends the entire file in one RPC (spec §4.9 "below threshold,
// full transfer"). Also used as the terminal fallback for a chunked upload
// that could not complete, provided the OOM guard permits it.
func (m *Manager) fullUpload(
	ctx context.Context, up Uploader, remotePath, localPath, localHash string,
	size int64, mtime time.Time, localVC clock.VectorClock,
) (*Result, error) {
	if err := m.checkOOMGuard(size); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: reading %s for full upload: %w", localPath, err)
	}

	if err := m.limiter.Wait(ctx, len(data)); err != nil {
		return nil, fmt.Errorf("transfer: bandwidth wait for %s: %w", localPath, err)
	}

	var remoteVC clock.VectorClock

	op := func() error {
		var putErr error
		remoteVC, putErr = up.PutFileData(ctx, remotePath, data, localVC)
		return putErr
	}

	if err := m.retry(ctx, op); err != nil {
		return nil, fmt.Errorf("transfer: full upload of %s: %w", remotePath, err)
	}

	result := mergeAndStamp(localVC, remoteVC, localHash, size, mtime, nil)

	m.logger.Debug("transfer: full upload complete", slog.String("path", remotePath), slog.Int64("size", size))

	return &result, nil
}

// chunkedUpload implements spec §4.9's chunked upload protocol: chunk and
// persist locally, send the manifest, fill in whatever the remote reports
// missing, then commit.
func (m *Manager) chunkedUpload(
	ctx context.Context, up Uploader, remotePath, localPath string, localVC clock.VectorClock,
) (*Result, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: opening %s for chunked upload: %w", localPath, err)
	}
	defer f.Close()

	chunks, err := chunk.Split(m.limiter.WrapReader(ctx, f))
	if err != nil {
		return nil, fmt.Errorf("transfer: chunking %s: %w", localPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("transfer: stat %s: %w", localPath, err)
	}

	hashes := make([]string, len(chunks))
	byHash := make(map[string][]byte, len(chunks))

	for i, c := range chunks {
		hashes[i] = c.Hash
		byHash[c.Hash] = c.Data

		if err := m.blocks.Put(c.Hash, c.Data); err != nil {
			return nil, fmt.Errorf("transfer: persisting chunk %s: %w", c.Hash, err)
		}
	}

	ack, missing, remoteVC, err := m.putFileChunksRetry(ctx, up, remotePath, hashes, localVC)
	if err != nil {
		return nil, err
	}

	if !ack {
		if err := m.uploadMissingChunks(ctx, up, missing, byHash); err != nil {
			return nil, fmt.Errorf("transfer: uploading missing chunks for %s: %w", remotePath, err)
		}

		ack, _, remoteVC, err = m.putFileChunksRetry(ctx, up, remotePath, hashes, localVC)
		if err != nil {
			return nil, err
		}

		if !ack {
			return nil, fmt.Errorf("transfer: %s: remote still reports missing chunks after upload", remotePath)
		}
	}

	result := mergeAndStamp(localVC, remoteVC, chunk.HashBytes(chunk.Reconstruct(chunks)), info.Size(), info.ModTime(), nil)

	m.logger.Debug("transfer: chunked upload complete",
		slog.String("path", remotePath), slog.Int("chunks", len(chunks)))

	return &result, nil
}

func (m *Manager) putFileChunksRetry(
	ctx context.Context, up Uploader, remotePath string, hashes []string, localVC clock.VectorClock,
) (ack bool, missing []string, remoteVC clock.VectorClock, err error) {
	op := func() error {
		var opErr error
		ack, missing, remoteVC, opErr = up.PutFileChunks(ctx, remotePath, hashes, localVC)
		return opErr
	}

	err = m.retry(ctx, op)

	return ack, missing, remoteVC, err
}

// uploadMissingChunks uploads each hash the remote reported missing,
// bounded to MaxChunkUploadConcurrency in flight (spec §5, ≤4), each
// attempt retried with backoff.
func (m *Manager) uploadMissingChunks(ctx context.Context, up Uploader, missing []string, byHash map[string][]byte) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency(m.tunables.MaxChunkUploadConcurrency))

	for _, hash := range missing {
		data, ok := byHash[hash]
		if !ok {
			return fmt.Errorf("transfer: remote requested unknown chunk %s", hash)
		}

		g.Go(func() error {
			if err := m.limiter.Wait(gctx, len(data)); err != nil {
				return err
			}

			return m.retry(gctx, func() error {
				return up.PutChunkData(gctx, hash, data)
			})
		})
	}

	return g.Wait()
}

// retry wraps op with exponential backoff, bounded by config.Tunables.
// RPCMaxRetries (spec §5, default 3), grounded on AKJUS-bsc-erigon's
// go.mod dependency on github.com/cenkalti/backoff/v4.
func (m *Manager) retry(ctx context.Context, op backoff.Operation) error {
	maxRetries := uint64(m.tunables.RPCMaxRetries) //nolint:gosec // bounded config value
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)

	return backoff.Retry(op, policy)
}

func maxConcurrency(configured int) int {
	if configured <= 0 {
		return 1
	}

	return configured
}
