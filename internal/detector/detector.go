// Package detector implements the Change Detector of spec §4.6: it turns
// raw filesystem notifications into logical LocalChange events (created,
// modified, renamed, deleted), applying path canonicalization, sync-write
// cooldown suppression, ignore rules, deduplication, and rename detection
// before handing a change to the rest of the engine.
//
// Grounded on the teacher's internal/sync/observer_local.go (walk +
// classify-against-baseline shape, racily-clean hashing guard,
// FsWatcher/fsnotify wrapping) and internal/sync/buffer.go (debounce
// pattern, reused here for the batch/debounced Watch path).
package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/merkle"
	"github.com/foldersync/foldersync/internal/state"
)

// ChangeKind classifies a LocalChange (spec §4.6 decision table).
type ChangeKind int

const (
	Created ChangeKind = iota
	Modified
	Renamed
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Renamed:
		return "renamed"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// LocalChange is a classified, VC-stamped logical change ready for the
// Decision Engine / Session Orchestrator.
type LocalChange struct {
	Kind        ChangeKind
	Path        string
	OldPath     string // set only for Renamed
	Hash        string
	Size        int64
	Mtime       time.Time
	IsDirectory bool
	VectorClock clock.VectorClock
}

// Op is the raw filesystem operation that triggered an event, collapsed
// from fsnotify's richer Op bitmask to the two shapes the decision table
// cares about for disappearances.
type Op int

const (
	OpWrite Op = iota
	OpRemove
	OpRename
)

// Tunables is the subset of config.Tunables the detector consults.
type Tunables struct {
	StabilityWindow       time.Duration
	SyncWriteCooldown     time.Duration
	RenameDetectionWindow time.Duration
	DedupWindow           time.Duration
	MaxScanConcurrency    int
}

// Detector is the Change Detector for one synced folder.
type Detector struct {
	root     string
	folderID string
	syncID   string
	peerID   string
	tunables Tunables

	state   *state.Store
	clocks  *clock.Manager
	index   *merkle.Index
	ignore  *Rules
	logger  *slog.Logger

	cooldowns *cooldowns
	dedup     *dedupTable
	renames   *pendingRenames
}

// New constructs a Detector for one folder.
func New(
	root, folderID, syncID, peerID string,
	tunables Tunables,
	st *state.Store,
	clocks *clock.Manager,
	index *merkle.Index,
	ignorePatterns []string,
	logger *slog.Logger,
) *Detector {
	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{
		root:      root,
		folderID:  folderID,
		syncID:    syncID,
		peerID:    peerID,
		tunables:  tunables,
		state:     st,
		clocks:    clocks,
		index:     index,
		ignore:    NewRules(ignorePatterns),
		logger:    logger,
		cooldowns: newCooldowns(),
		dedup:     newDedupTable(),
		renames:   newPendingRenames(),
	}
}

// SuppressRemoteWrite arms the sync-write cooldown for relPath, so the
// filesystem event the caller's own write is about to generate is not
// mistaken for a local change (spec §4.6, §4.9 "set before issuing the
// local write").
func (d *Detector) SuppressRemoteWrite(relPath string) {
	d.cooldowns.Arm(relPath, time.Now(), d.tunables.SyncWriteCooldown)
}

// HandleRawEvent classifies a single absolute-path filesystem event and,
// if it yields a logical change, updates the File State Store, Causal
// Clock Manager, and Merkle State Index accordingly before returning it.
// A nil, nil result means the event produced no logical change (ignored,
// suppressed, buffered as a pending rename, or a no-op directory touch).
func (d *Detector) HandleRawEvent(ctx context.Context, absPath string, op Op) (*LocalChange, error) {
	relPath, err := canonicalPath(d.root, absPath)
	if err != nil {
		if errors.Is(err, ErrOutsideFolder) {
			return nil, nil //nolint:nilnil
		}

		return nil, err
	}

	if d.ignore.Match(relPath) {
		return nil, nil //nolint:nilnil
	}

	now := time.Now()
	if d.cooldowns.Active(relPath, now) {
		d.logger.Debug("suppressing event within sync-write cooldown", slog.String("path", relPath))
		return nil, nil //nolint:nilnil
	}

	info, statErr := os.Lstat(absPath)
	present := statErr == nil && info.Mode()&fs.ModeSymlink == 0

	before, known := d.state.Get(relPath)
	knownLive := known && before.Exists()

	switch {
	case !knownLive && !present:
		return nil, nil //nolint:nilnil

	case !knownLive && present:
		return d.handleAppearance(ctx, relPath, absPath, info, now)

	case knownLive && !present:
		return d.handleDisappearance(ctx, relPath, before.Metadata, op, now)

	default: // knownLive && present
		return d.handleModification(ctx, relPath, absPath, info, before.Metadata, now)
	}
}

func (d *Detector) handleAppearance(ctx context.Context, relPath, absPath string, info os.FileInfo, now time.Time) (*LocalChange, error) {
	if info.IsDir() {
		d.recordDirectory(relPath, now)
		return nil, nil //nolint:nilnil
	}

	hash, err := hashFile(absPath)
	if err != nil {
		d.logger.Warn("hash computation failed, skipping event", slog.String("path", relPath), slog.String("error", err.Error()))
		return nil, nil //nolint:nilnil
	}

	if oldPath, ok := d.renames.MatchAndRemove(hash, now, d.tunables.RenameDetectionWindow); ok {
		change := &LocalChange{
			Kind:    Renamed,
			Path:    relPath,
			OldPath: oldPath,
			Hash:    hash,
			Size:    info.Size(),
			Mtime:   info.ModTime(),
		}

		if err := d.finalize(ctx, now, change); err != nil {
			return nil, err
		}

		return change, nil
	}

	change := &LocalChange{
		Kind:  Created,
		Path:  relPath,
		Hash:  hash,
		Size:  info.Size(),
		Mtime: info.ModTime(),
	}

	if err := d.finalize(ctx, now, change); err != nil {
		return nil, err
	}

	return change, nil
}

func (d *Detector) handleDisappearance(ctx context.Context, relPath string, before *state.FileMetadata, op Op, now time.Time) (*LocalChange, error) {
	if before.IsDirectory {
		// Directory removal: clear local bookkeeping silently, no transfer
		// action is associated with a directory disappearing on its own.
		d.state.Remove(relPath)
		d.index.Remove(relPath)

		return nil, nil //nolint:nilnil
	}

	if op == OpRemove {
		change := &LocalChange{
			Kind:  Deleted,
			Path:  relPath,
			Hash:  before.Hash,
			Size:  before.Size,
			Mtime: now,
		}

		if err := d.finalize(ctx, now, change); err != nil {
			return nil, err
		}

		return change, nil
	}

	// Ambiguous rename-or-delete: buffer and let the sweep or a matching
	// create resolve it (spec §4.6 "renamed-only -> buffer as pending-rename").
	d.renames.Add(relPath, before.Hash, before.Size, before.IsDirectory, now)
	d.logger.Debug("buffered pending rename", slog.String("path", relPath))

	return nil, nil //nolint:nilnil
}

func (d *Detector) handleModification(ctx context.Context, relPath, absPath string, info os.FileInfo, before *state.FileMetadata, now time.Time) (*LocalChange, error) {
	if info.IsDir() {
		return nil, nil //nolint:nilnil
	}

	// Fast path: size and mtime both match the recorded metadata and the
	// file is not racily clean (modified in the same tick scanning began).
	if info.Size() == before.Size && info.ModTime().Equal(before.Mtime) &&
		now.Sub(info.ModTime()) >= time.Second {
		return nil, nil //nolint:nilnil
	}

	hash, err := hashFile(absPath)
	if err != nil {
		d.logger.Warn("hash computation failed, skipping event", slog.String("path", relPath), slog.String("error", err.Error()))
		return nil, nil //nolint:nilnil
	}

	if hash == before.Hash {
		return nil, nil //nolint:nilnil
	}

	if d.dedup.Seen(relPath, hash, now, d.tunables.DedupWindow) {
		return nil, nil //nolint:nilnil
	}

	change := &LocalChange{
		Kind:  Modified,
		Path:  relPath,
		Hash:  hash,
		Size:  info.Size(),
		Mtime: info.ModTime(),
	}

	if err := d.finalize(ctx, now, change); err != nil {
		return nil, err
	}

	return change, nil
}

// recordDirectory implements spec §4.6's directory bookkeeping: a
// directory's own appearance clears any tombstone at its path and enters
// it into live tracking (using the DIRECTORY sentinel hash), but never
// produces an outward LocalChange.
func (d *Detector) recordDirectory(relPath string, now time.Time) {
	existing, ok := d.state.Get(relPath)

	vc := clock.VectorClock{}
	if ok && existing.Exists() {
		vc = existing.Metadata.VectorClock
	}

	d.state.SetLive(relPath, state.FileMetadata{
		Hash:        state.DirectoryHash,
		Mtime:       now,
		Size:        0,
		IsDirectory: true,
		VectorClock: vc,
	})

	d.index.Upsert(relPath, state.DirectoryHash)
}

// finalize advances the path's vector clock, writes the File State Store
// entry, and updates the Merkle State Index for an accepted change (spec
// §4.6 "Vector-clock updates").
func (d *Detector) finalize(ctx context.Context, now time.Time, change *LocalChange) error {
	if change.Kind == Deleted {
		vc, err := d.clocks.UpdateForLocalChange(ctx, d.clockKey(change.Path), d.peerID)
		if err != nil {
			return fmt.Errorf("detector: advancing clock for delete %s: %w", change.Path, err)
		}

		change.VectorClock = vc
		d.state.SetDeleted(change.Path, state.DeletionRecord{DeletedAt: now, DeletedBy: d.peerID, VectorClock: vc})
		d.index.Remove(change.Path)
		d.dedup.Forget(change.Path)

		return nil
	}

	if change.Kind == Renamed {
		if err := d.clocks.Migrate(ctx, d.syncID, change.OldPath, change.Path); err != nil {
			return fmt.Errorf("detector: migrating clock %s -> %s: %w", change.OldPath, change.Path, err)
		}

		d.state.Remove(change.OldPath)
		d.index.Remove(change.OldPath)
		d.dedup.Forget(change.OldPath)
	}

	vc, err := d.clocks.UpdateForLocalChange(ctx, d.clockKey(change.Path), d.peerID)
	if err != nil {
		return fmt.Errorf("detector: advancing clock for %s: %w", change.Path, err)
	}

	change.VectorClock = vc

	d.state.SetLive(change.Path, state.FileMetadata{
		Hash:        change.Hash,
		Mtime:       change.Mtime,
		Size:        change.Size,
		IsDirectory: change.IsDirectory,
		VectorClock: vc,
	})

	d.index.Upsert(change.Path, change.Hash)

	return nil
}

func (d *Detector) clockKey(path string) clock.Key {
	return clock.Key{FolderID: d.folderID, SyncID: d.syncID, Path: path}
}

// Sweep promotes every pending rename older than the rename detection
// window to a Deleted change (spec §4.6 "a pending entry that times out
// with no matching create is promoted to a deleted event by a scheduled
// sweep").
func (d *Detector) Sweep(ctx context.Context) ([]LocalChange, error) {
	return d.sweepWithWindow(ctx, d.tunables.RenameDetectionWindow)
}

// ForceSweepAll promotes every currently pending rename to a deletion
// immediately, regardless of how long it has been buffered. The Session
// Orchestrator's local-state reconciliation phase wants a definitive
// locallyDeleted set at one point in time (spec §4.8 "for each element of
// locallyDeleted, create a tombstone"), rather than waiting out Watch's
// timed sweep.
func (d *Detector) ForceSweepAll(ctx context.Context) ([]LocalChange, error) {
	return d.sweepWithWindow(ctx, -1)
}

func (d *Detector) sweepWithWindow(ctx context.Context, window time.Duration) ([]LocalChange, error) {
	now := time.Now()
	expired := d.renames.Sweep(now, window)

	changes := make([]LocalChange, 0, len(expired))

	for _, e := range expired {
		change := LocalChange{
			Kind:  Deleted,
			Path:  e.Path,
			Hash:  e.Entry.hash,
			Size:  e.Entry.size,
			Mtime: now,
		}

		if err := d.finalize(ctx, now, &change); err != nil {
			return changes, err
		}

		changes = append(changes, change)
	}

	return changes, nil
}

// RawEvent pairs an absolute path with the raw operation that touched it,
// the unit batch mode (spec §4.6) operates on.
type RawEvent struct {
	AbsPath string
	Op      Op
}

// ProcessBatch runs a set of raw events through the detector: a parallel
// pass (bounded by MaxScanConcurrency) hashes every regular file and drops
// events whose file cannot be hashed, then classification runs serially
// through HandleRawEvent to respect state transitions. The parallel pass's
// hashes are not reused; HandleRawEvent hashes each file again. Each
// accepted change's clock update and state entry are written as it is
// classified, one change at a time, not in a single transaction; the
// changes are returned together in event order.
func (d *Detector) ProcessBatch(ctx context.Context, events []RawEvent) ([]LocalChange, error) {
	limit := d.tunables.MaxScanConcurrency
	if limit <= 0 {
		limit = 1
	}

	hashes := make([]string, len(events))
	hashErrs := make([]error, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, ev := range events {
		i, ev := i, ev

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			info, err := os.Lstat(ev.AbsPath)
			if err != nil || info.IsDir() || info.Mode()&fs.ModeSymlink != 0 {
				return nil
			}

			hash, err := hashFile(ev.AbsPath)
			if err != nil {
				hashErrs[i] = err
				return nil
			}

			hashes[i] = hash

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("detector: batch prehash: %w", err)
	}

	var changes []LocalChange

	for i, ev := range events {
		if hashErrs[i] != nil {
			d.logger.Warn("hash computation failed in batch, skipping",
				slog.String("path", ev.AbsPath), slog.String("error", hashErrs[i].Error()))

			continue
		}

		change, err := d.HandleRawEvent(ctx, ev.AbsPath, ev.Op)
		if err != nil {
			return changes, err
		}

		if change != nil {
			changes = append(changes, *change)
		}
	}

	return changes, nil
}

// hashFile returns the lowercase hex SHA-256 of path's content, streamed
// in constant memory (grounded on the teacher's computeQuickXorHash, here
// using the engine's own SHA-256 content hash instead of QuickXorHash).
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
