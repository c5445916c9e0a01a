package clock

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// dirPermissions matches the teacher's data-directory convention.
const dirPermissions = 0o755

// Key identifies one path's vector clock, scoped to a folder and its
// rendezvous syncID (spec §4.3).
type Key struct {
	FolderID string
	SyncID   string
	Path     string
}

// Manager is the Causal Clock Manager (spec §4.3): a SQLite-backed,
// per-(folder,syncID,path) vector clock store. One Manager is opened per
// folder, at <appdata>/clocks/<folderID>.db, matching spec §6.
type Manager struct {
	db     *sql.DB
	logger *slog.Logger

	// mu guards the small read-modify-write critical sections of
	// UpdateForLocalChange; the manager otherwise relies on SQLite's own
	// locking for concurrent readers (spec §5 "small per-entry critical
	// sections; batched writes in session finalize").
	mu gosync.Mutex
}

// Open opens (creating if absent) the clock database at dbPath.
func Open(dbPath string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dirPermissions); err != nil {
		return nil, fmt.Errorf("clock: mkdir for %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("clock: open %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("clock: applying schema: %w", err)
	}

	return &Manager{db: db, logger: logger}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS clocks (
	sync_id    TEXT NOT NULL,
	path       TEXT NOT NULL,
	clock_json TEXT NOT NULL,
	PRIMARY KEY (sync_id, path)
);
`

// Close closes the underlying database.
func (m *Manager) Close() error {
	return m.db.Close()
}

// Get returns the stored clock for key, or nil if none is recorded.
func (m *Manager) Get(ctx context.Context, key Key) (VectorClock, error) {
	row := m.db.QueryRowContext(ctx, `SELECT clock_json FROM clocks WHERE sync_id = ? AND path = ?`, key.SyncID, key.Path)

	var blob string
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("clock: get %s: %w", key.Path, err)
	}

	var vc VectorClock
	if err := json.Unmarshal([]byte(blob), &vc); err != nil {
		return nil, fmt.Errorf("clock: decode %s: %w", key.Path, err)
	}

	return vc, nil
}

// Save persists vc for key, overwriting any prior value.
func (m *Manager) Save(ctx context.Context, key Key, vc VectorClock) error {
	blob, err := json.Marshal(vc)
	if err != nil {
		return fmt.Errorf("clock: encode %s: %w", key.Path, err)
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT INTO clocks (sync_id, path, clock_json) VALUES (?, ?, ?)
		 ON CONFLICT(sync_id, path) DO UPDATE SET clock_json = excluded.clock_json`,
		key.SyncID, key.Path, string(blob))
	if err != nil {
		return fmt.Errorf("clock: save %s: %w", key.Path, err)
	}

	return nil
}

// SaveMany batches writes for a folder/syncID in one transaction, the
// "batched writes to minimize fsync storms" discipline of spec §4.6.
func (m *Manager) SaveMany(ctx context.Context, syncID string, clocks map[string]VectorClock) error {
	if len(clocks) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clock: begin batch save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO clocks (sync_id, path, clock_json) VALUES (?, ?, ?)
		 ON CONFLICT(sync_id, path) DO UPDATE SET clock_json = excluded.clock_json`)
	if err != nil {
		return fmt.Errorf("clock: prepare batch save: %w", err)
	}
	defer stmt.Close()

	for path, vc := range clocks {
		blob, err := json.Marshal(vc)
		if err != nil {
			return fmt.Errorf("clock: encode %s: %w", path, err)
		}

		if _, err := stmt.ExecContext(ctx, syncID, path, string(blob)); err != nil {
			return fmt.Errorf("clock: batch save %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clock: commit batch save: %w", err)
	}

	m.logger.Debug("clock: batch saved", slog.String("sync_id", syncID), slog.Int("count", len(clocks)))

	return nil
}

// Merge returns the pointwise max of local and remote (spec §4.3).
func Merge(local, remote VectorClock) VectorClock {
	return local.Merge(remote)
}

// UpdateForLocalChange increments peerID's counter in key's clock (creating
// the clock if absent) and persists it, returning the new value (spec
// §4.3 "get(key) ∪ {peerID: n+1} then save").
func (m *Manager) UpdateForLocalChange(ctx context.Context, key Key, peerID string) (VectorClock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	next := current.Increment(peerID)

	if err := m.Save(ctx, key, next); err != nil {
		return nil, err
	}

	return next, nil
}

// Migrate moves the vector clock entry from oldPath to newPath under the
// same syncID (spec §4.3 "migrate"), for later incrementing by the caller.
// If no entry exists at oldPath, Migrate is a no-op and returns nil.
func (m *Manager) Migrate(ctx context.Context, syncID, oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := m.Get(ctx, Key{SyncID: syncID, Path: oldPath})
	if err != nil {
		return err
	}

	if old == nil {
		return nil
	}

	if err := m.Save(ctx, Key{SyncID: syncID, Path: newPath}, old); err != nil {
		return err
	}

	if _, err := m.db.ExecContext(ctx, `DELETE FROM clocks WHERE sync_id = ? AND path = ?`, syncID, oldPath); err != nil {
		return fmt.Errorf("clock: delete migrated entry %s: %w", oldPath, err)
	}

	return nil
}
