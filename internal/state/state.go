// Package state implements the File State Store of spec §4.4: the
// per-sync logical view of every known path, either live (FileMetadata) or
// tombstoned (DeletionRecord). Persistence follows the teacher's
// atomic-write idiom (temp file + rename) applied to the two JSON documents
// spec §6 names: <appdata>/state/<syncID>/snapshot.json and tombstones.json.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/foldersync/foldersync/internal/clock"
)

// dirPermissions/filePermissions match the teacher's convention.
const (
	dirPermissions  = 0o755
	filePermissions = 0o644

	// DirectoryHash is the sentinel hash value for directories (spec §3).
	DirectoryHash = "DIRECTORY"
)

// FileMetadata is the live-side view of a path (spec §3).
type FileMetadata struct {
	Hash         string            `json:"hash"`
	Mtime        time.Time         `json:"mtime"`
	Size         int64             `json:"size"`
	CreationDate *time.Time        `json:"creation_date,omitempty"`
	IsDirectory  bool              `json:"is_directory"`
	VectorClock  clock.VectorClock `json:"vector_clock"`
}

// DeletionRecord is a tombstone (spec §3).
type DeletionRecord struct {
	DeletedAt   time.Time         `json:"deleted_at"`
	DeletedBy   string            `json:"deleted_by"`
	VectorClock clock.VectorClock `json:"vector_clock"`
}

// FileState is the tagged Exists(FileMetadata) | Deleted(DeletionRecord)
// variant of spec §3. Exactly one of Metadata/Deletion is non-nil.
type FileState struct {
	Metadata *FileMetadata
	Deletion *DeletionRecord
}

// Exists reports whether this state represents a live file/directory.
func (s FileState) Exists() bool { return s.Metadata != nil }

// Deleted reports whether this state represents a tombstone.
func (s FileState) Deleted() bool { return s.Deletion != nil }

// snapshotDoc/tombstoneDoc are the on-disk JSON shapes.
type snapshotDoc struct {
	Paths map[string]FileMetadata `json:"paths"`
}

type tombstoneDoc struct {
	Paths map[string]DeletionRecord `json:"paths"`
}

// Store is the File State Store for one syncID: an in-memory map backed by
// two atomically-written JSON files, matching the teacher's state.go
// pattern of an in-memory index with explicit Flush points rather than a
// write-through database.
type Store struct {
	mu sync.RWMutex

	snapshotPath   string
	tombstonesPath string

	live map[string]FileMetadata
	dead map[string]DeletionRecord
}

// Open loads (or initializes) a Store from snapshotPath/tombstonesPath. Both
// files are created empty on first use; a missing file is not an error.
func Open(snapshotPath, tombstonesPath string) (*Store, error) {
	s := &Store{
		snapshotPath:   snapshotPath,
		tombstonesPath: tombstonesPath,
		live:           make(map[string]FileMetadata),
		dead:           make(map[string]DeletionRecord),
	}

	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}

	if err := s.loadTombstones(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) loadSnapshot() error {
	var doc snapshotDoc
	if err := readJSONIfExists(s.snapshotPath, &doc); err != nil {
		return fmt.Errorf("state: loading snapshot %s: %w", s.snapshotPath, err)
	}

	if doc.Paths != nil {
		s.live = doc.Paths
	}

	return nil
}

func (s *Store) loadTombstones() error {
	var doc tombstoneDoc
	if err := readJSONIfExists(s.tombstonesPath, &doc); err != nil {
		return fmt.Errorf("state: loading tombstones %s: %w", s.tombstonesPath, err)
	}

	if doc.Paths != nil {
		s.dead = doc.Paths
	}

	return nil
}

func readJSONIfExists(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, v)
}

// Get returns the current FileState for path, and whether any state (live
// or tombstoned) is recorded for it.
func (s *Store) Get(path string) (FileState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if md, ok := s.live[path]; ok {
		md := md
		return FileState{Metadata: &md}, true
	}

	if dr, ok := s.dead[path]; ok {
		dr := dr
		return FileState{Deletion: &dr}, true
	}

	return FileState{}, false
}

// All returns a snapshot copy of every live path's metadata, keyed by path.
func (s *Store) All() map[string]FileMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]FileMetadata, len(s.live))
	for p, md := range s.live {
		out[p] = md
	}

	return out
}

// AllTombstones returns a snapshot copy of every tombstone, keyed by path.
func (s *Store) AllTombstones() map[string]DeletionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]DeletionRecord, len(s.dead))
	for p, dr := range s.dead {
		out[p] = dr
	}

	return out
}

// SetLive records md as the current state of path, clearing any tombstone
// for the same path (spec §4.4: "a path transitions Deleted -> Exists on
// resurrection").
func (s *Store) SetLive(path string, md FileMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live[path] = md
	delete(s.dead, path)
}

// SetDeleted records dr as a tombstone for path, clearing any live entry.
func (s *Store) SetDeleted(path string, dr DeletionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.live, path)
	s.dead[path] = dr
}

// Remove deletes path entirely, e.g. rename's removal of the old key.
func (s *Store) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.live, path)
	delete(s.dead, path)
}

// ExpireTombstones deletes every tombstone for which keep returns false,
// implementing spec §4.4's "cleanup_expired" GC pass. keep is evaluated
// under the store's lock and must not call back into the Store.
func (s *Store) ExpireTombstones(keep func(path string, dr DeletionRecord) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for path, dr := range s.dead {
		if !keep(path, dr) {
			delete(s.dead, path)
			removed++
		}
	}

	return removed
}

// Flush atomically persists both the live snapshot and the tombstone log.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := writeJSONAtomic(s.snapshotPath, snapshotDoc{Paths: s.live}); err != nil {
		return fmt.Errorf("state: flushing snapshot: %w", err)
	}

	if err := writeJSONAtomic(s.tombstonesPath, tombstoneDoc{Paths: s.dead}); err != nil {
		return fmt.Errorf("state: flushing tombstones: %w", err)
	}

	return nil
}

// writeJSONAtomic marshals v and writes it to path via a temp file plus
// rename, the same atomic-replace idiom used by internal/blockstore and
// grounded on the teacher's executor ".partial then os.Rename" pattern.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}
