// Package blockstore implements the content-addressed, persistent chunk
// store of spec §4.2: idempotent, hash-validated, atomically-written blocks
// sharded on disk by hash prefix. The write path (write to a temp file,
// fsync, rename into place) is grounded on the teacher's
// executor.executeDownload ".partial then rename" idiom; the hash-prefix
// sharded directory layout mirrors moby buildkit's contenthash package and
// the on-disk conventions surveyed in will-2012-pebble.
package blockstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/foldersync/foldersync/internal/config"
)

// dirPermissions and filePermissions match the teacher's sync-directory
// conventions (0755/0644 equivalents already used for downloads).
const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// ErrHashMismatch is returned by Put when sha256(data) != hash (spec §4.2,
// §7 Data-class error).
var ErrHashMismatch = errors.New("blockstore: hash mismatch")

// ErrNotFound is returned by Get when the hash is not present locally.
var ErrNotFound = errors.New("blockstore: block not found")

// Store is a content-addressed block store rooted at an AppPaths blocks
// directory.
type Store struct {
	paths  config.AppPaths
	logger *slog.Logger
}

// New creates a Store rooted at paths.BlocksDir().
func New(paths config.AppPaths, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{paths: paths, logger: logger}
}

// Has reports whether hash is present in the store.
func (s *Store) Has(hash string) bool {
	_, err := os.Stat(s.paths.BlockPath(hash))
	return err == nil
}

// HasMany is a batch form of Has.
func (s *Store) HasMany(hashes []string) map[string]bool {
	out := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		out[h] = s.Has(h)
	}

	return out
}

// Put validates sha256(data) == hash and writes it atomically (temp file +
// rename) into the sharded directory layout. Put is idempotent: a second
// Put of the same hash is a safe no-op once the first has landed, and
// concurrent Puts of the same hash race harmlessly because the final
// rename target is identical.
func (s *Store) Put(hash string, data []byte) error {
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != hash {
		return fmt.Errorf("%w: want %s got %s", ErrHashMismatch, hash, got)
	}

	if s.Has(hash) {
		return nil
	}

	dest := s.paths.BlockPath(hash)
	dir := filepath.Dir(dest)

	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("blockstore: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".block-*.tmp")
	if err != nil {
		return fmt.Errorf("blockstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("blockstore: write %s: %w", hash, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("blockstore: sync %s: %w", hash, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blockstore: close %s: %w", hash, err)
	}

	if err := os.Chmod(tmpPath, filePermissions); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blockstore: chmod %s: %w", hash, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blockstore: rename into place %s: %w", hash, err)
	}

	s.logger.Debug("blockstore: put", slog.String("hash", hash), slog.Int("bytes", len(data)))

	return nil
}

// PutReader chunks-agnostic convenience: hashes and stores the full content
// of r, returning its hash. Used by on-demand recovery in the request
// handler (spec §4.10 getChunkData).
func (s *Store) PutReader(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("blockstore: read: %w", err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	return hash, s.Put(hash, data)
}

// Get returns the bytes stored for hash, or ErrNotFound.
func (s *Store) Get(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.paths.BlockPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
		}

		return nil, fmt.Errorf("blockstore: read %s: %w", hash, err)
	}

	return data, nil
}
