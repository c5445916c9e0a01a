// Package session implements the Session Orchestrator of spec §4.8: the
// four-phase (discovery, local state, planning, execution) driver of one
// synchronization run against one peer for one folder, plus the
// finalization, cooldown, and cancellation contracts around it.
//
// Grounded on the teacher's internal/sync/orchestrator.go (per-folder
// runners, watch-mode daemon loop, SIGHUP reload diffing active folders)
// and engine.go (phase sequencing inside one run: load state, observe,
// plan, execute, commit), re-architected per spec §9 Design Notes to break
// the teacher's Orchestrator/Engine back-references: Orchestrator owns
// every folderRuntime outright and passes typed collaborators down, no
// sub-component holds a pointer back to the Orchestrator.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foldersync/foldersync/internal/blockstore"
	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/detector"
	"github.com/foldersync/foldersync/internal/handler"
	"github.com/foldersync/foldersync/internal/merkle"
	"github.com/foldersync/foldersync/internal/peer"
	"github.com/foldersync/foldersync/internal/protocol"
	"github.com/foldersync/foldersync/internal/state"
	"github.com/foldersync/foldersync/internal/transfer"
)

// folderRuntime bundles one locally-configured SyncFolder's live
// collaborators: its own File State Store, Causal Clock Manager, Merkle
// Index, Change Detector, and Request Handler. One folderRuntime is built
// by OpenFolder and kept for the process lifetime of that folder.
type folderRuntime struct {
	folder *config.SyncFolder
	peerID string

	store    *state.Store
	clocks   *clock.Manager
	index    *merkle.Index
	detector *detector.Detector
	handler  *handler.Handler

	pcMu       sync.Mutex
	peerClocks map[string]map[string]clock.VectorClock // peerID -> path -> last-observed VC
}

// recordPeerClocks caches the vector clocks peerID reported for its live and
// tombstoned paths during the discovery phase of a session, the only record
// this engine keeps of what a given peer has acknowledged (used by
// tombstone GC's AcknowledgedByAllOnline check in finalize).
func (fr *folderRuntime) recordPeerClocks(peerID string, clocks map[string]clock.VectorClock) {
	fr.pcMu.Lock()
	defer fr.pcMu.Unlock()

	if fr.peerClocks == nil {
		fr.peerClocks = make(map[string]map[string]clock.VectorClock)
	}

	fr.peerClocks[peerID] = clocks
}

// onlinePeerClocksFor returns, for each of onlinePeerIDs, the last vector
// clock that peer reported for path, or the zero VectorClock if this
// folderRuntime has never heard from that peer about path. A zero clock is
// conservative: AcknowledgedByAllOnline treats it as "not yet acknowledged".
func (fr *folderRuntime) onlinePeerClocksFor(path string, onlinePeerIDs []string) map[string]clock.VectorClock {
	fr.pcMu.Lock()
	defer fr.pcMu.Unlock()

	out := make(map[string]clock.VectorClock, len(onlinePeerIDs))

	for _, id := range onlinePeerIDs {
		if byPath, ok := fr.peerClocks[id]; ok {
			if vc, ok := byPath[path]; ok {
				out[id] = vc
				continue
			}
		}

		out[id] = clock.VectorClock{}
	}

	return out
}

// Orchestrator drives sessions for every folder it has opened, owning the
// shared process-wide collaborators (block store, bandwidth limiter,
// request-handler registry, peer registry) plus one folderRuntime per
// folder (spec §9 "no global mutable state... an owned application state
// container passed by reference").
type Orchestrator struct {
	paths    config.AppPaths
	holder   *config.Holder
	blocks   *blockstore.Store
	limiter  *transfer.BandwidthLimiter
	transfer *transfer.Manager
	registry *handler.Registry
	appState *peer.AppState
	cooldown *cooldowns
	logger   *slog.Logger

	mu       sync.RWMutex
	folders  map[string]*folderRuntime // keyed by folderID
}

// NewOrchestrator builds an Orchestrator. holder supplies the live,
// SIGHUP-reloadable Tunables/folder configuration; appState is where
// per-folder status (spec §7) and peer reachability are published.
func NewOrchestrator(
	paths config.AppPaths,
	holder *config.Holder,
	blocks *blockstore.Store,
	limiter *transfer.BandwidthLimiter,
	appState *peer.AppState,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	registry := handler.NewRegistry()
	tunables := holder.Config().Tunables

	o := &Orchestrator{
		paths:    paths,
		holder:   holder,
		blocks:   blocks,
		limiter:  limiter,
		registry: registry,
		appState: appState,
		cooldown: newCooldowns(),
		logger:   logger,
		folders:  make(map[string]*folderRuntime),
	}

	o.transfer = transfer.New(blocks, limiter, tunables, o.suppressWrite, logger)

	return o
}

// HandlerRegistry returns the Registry internal/handler.Serve dispatches
// inbound RPCs through; the hosting process wires this into its listener.
func (o *Orchestrator) HandlerRegistry() *handler.Registry {
	return o.registry
}

// suppressWrite arms the sync-write cooldown on whichever folder owns
// localPath, satisfying transfer.Manager's suppressWrite collaborator
// (spec §4.6, §4.9). Looked up by prefix since the Manager is shared
// across folders and only knows the absolute local path it is about to
// write.
func (o *Orchestrator) suppressWrite(localPath string) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, fr := range o.folders {
		relPath, ok := relativeTo(fr.folder.LocalPath, localPath)
		if ok {
			fr.detector.SuppressRemoteWrite(relPath)
			return
		}
	}
}

// OpenFolder brings folder under management: opens its File State Store
// and Causal Clock Manager, builds its Merkle Index, Change Detector, and
// Request Handler, and registers the Handler so inbound RPCs for its
// syncID are answered (spec §4.10).
func (o *Orchestrator) OpenFolder(peerLocalID string, folder *config.SyncFolder) error {
	st, err := state.Open(o.paths.SnapshotPath(folder.SyncID), o.paths.TombstonesPath(folder.SyncID))
	if err != nil {
		return fmt.Errorf("session: opening state store for %s: %w", folder.SyncID, err)
	}

	clocks, err := clock.Open(o.paths.ClockDBPath(folder.ID), o.logger)
	if err != nil {
		return fmt.Errorf("session: opening clock manager for %s: %w", folder.ID, err)
	}

	index := merkle.New()
	for path, md := range st.All() {
		index.Upsert(path, md.Hash)
	}

	tunables := o.holder.Config().Tunables

	det := detector.New(
		folder.LocalPath, folder.ID, folder.SyncID, peerLocalID,
		detectorTunables(tunables), st, clocks, index, folder.ExcludePatterns, o.logger,
	)

	h := handler.New(
		folder.ID, folder.SyncID, folder.LocalPath, folder.Mode,
		detector.NewRules(folder.ExcludePatterns), st, o.blocks, clocks, tunables, peerLocalID, o.logger,
	)

	fr := &folderRuntime{folder: folder, peerID: peerLocalID, store: st, clocks: clocks, index: index, detector: det, handler: h}

	o.mu.Lock()
	o.folders[folder.ID] = fr
	o.mu.Unlock()

	o.registry.Register(h)
	o.appState.SetIdle(folder.ID, folder.SyncID)

	return nil
}

// CloseFolder stops serving folder's RPCs and drops its runtime (folder
// paused or removed locally).
func (o *Orchestrator) CloseFolder(folderID string) {
	o.mu.Lock()
	fr, ok := o.folders[folderID]
	delete(o.folders, folderID)
	o.mu.Unlock()

	if !ok {
		return
	}

	o.registry.Unregister(fr.folder.SyncID)

	if err := fr.clocks.Close(); err != nil {
		o.logger.Warn("session: closing clock manager", slog.String("folder", folderID), slog.String("error", err.Error()))
	}
}

// detectorTunables adapts config.Tunables into internal/detector's own
// Tunables shape (the two packages share field semantics but detector
// defines its own struct so it has no import-time dependency on config).
func detectorTunables(t config.Tunables) detector.Tunables {
	return detector.Tunables{
		StabilityWindow:       t.StabilityWindow,
		SyncWriteCooldown:     t.SyncWriteCooldown,
		RenameDetectionWindow: t.RenameDetectionWindow,
		DedupWindow:           t.DedupWindow,
		MaxScanConcurrency:    t.MaxScanConcurrency,
	}
}

// RunFolder drives one complete session against peerID for folderID
// through all four phases plus finalization (spec §4.8). It honors the
// per-(peer, folder) cooldown and returns a Report whether the session
// succeeded or failed.
func (o *Orchestrator) RunFolder(ctx context.Context, folderID, peerID string, client *protocol.Client) (*Report, error) {
	o.mu.RLock()
	fr, ok := o.folders[folderID]
	o.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("session: folder %s not open", folderID)
	}

	tunables := o.holder.Config().Tunables
	now := time.Now()

	if o.cooldown.Active(peerID, folderID, now, tunables.SessionCooldown) {
		return nil, ErrCooldownActive
	}

	o.appState.SetSyncing(folderID)

	sess := &Session{
		SyncID:    fr.folder.SyncID,
		FolderID:  folderID,
		PeerID:    peerID,
		StartedAt: now,
		Folder:    fr.folder,
	}

	report, err := o.runPhases(ctx, fr, sess, client, tunables)

	o.cooldown.Mark(peerID, folderID, time.Now())

	if err != nil {
		o.appState.SetError(folderID, err.Error())
	} else {
		o.appState.SetSynced(folderID, time.Now())
	}

	if logErr := o.appendSessionLog(report); logErr != nil {
		o.logger.Warn("session: appending session log", slog.String("error", logErr.Error()))
	}

	return report, err
}

// runPhases executes discovery, local state, planning, and execution in
// order, each a barrier (spec §4.8 "Four phases, each a barrier"), then
// finalizes. A discovery or local-state error returns at once, without
// finalizing; failed actions in the execution phase do not stop
// finalization, which still runs over what the session accomplished.
func (o *Orchestrator) runPhases(
	ctx context.Context, fr *folderRuntime, sess *Session, client *protocol.Client, tunables config.Tunables,
) (*Report, error) {
	report := &Report{FolderID: sess.FolderID, SyncID: sess.SyncID, PeerID: sess.PeerID, StartedAt: sess.StartedAt}

	if err := o.discover(ctx, fr, sess, client); err != nil {
		report.Duration = time.Since(sess.StartedAt)
		report.Err = err
		return report, err
	}

	if err := o.localState(ctx, fr, sess); err != nil {
		report.Duration = time.Since(sess.StartedAt)
		report.Err = err
		return report, err
	}

	o.plan(fr, sess)

	execErr := o.execute(ctx, fr, sess, client, tunables, report)

	if finalizeErr := o.finalize(fr, sess, tunables); finalizeErr != nil {
		o.logger.Warn("session: finalize failed",
			slog.String("folder", sess.FolderID), slog.String("error", finalizeErr.Error()))
	}

	report.Duration = time.Since(sess.StartedAt)
	report.FilesSynced = sess.FilesSynced
	report.BytesTransferred = sess.BytesTransferred
	report.Err = execErr

	return report, execErr
}

// finalize persists current metadata as the new lastKnown snapshot, runs
// tombstone GC, and advances bookkeeping (spec §4.8 "Finalization"). The
// session log entry itself is written by appendSessionLog, driven off the
// returned Report.
func (o *Orchestrator) finalize(fr *folderRuntime, sess *Session, tunables config.Tunables) error {
	removed := o.expireTombstones(fr, tunables)
	if removed > 0 {
		o.logger.Debug("session: tombstones garbage collected",
			slog.Int("count", removed), slog.String("folder", sess.FolderID))
	}

	if err := fr.store.Flush(); err != nil {
		return fmt.Errorf("session: flushing state store: %w", err)
	}

	fr.folder.FileCount = countPtr(int64(len(fr.store.All())))

	return nil
}

// expireTombstones applies spec §4.4's tombstone GC predicate: a tombstone
// is dropped once it is older than TombstoneTTL AND every currently-online
// peer's last-observed clock for that path dominates the tombstone's
// (state.AcknowledgedByAllOnline). Peers this folderRuntime has never
// exchanged state with are treated as not having acknowledged it yet, so
// GC only ever happens strictly after a session has told us where they
// stand.
func (o *Orchestrator) expireTombstones(fr *folderRuntime, tunables config.Tunables) int {
	online := o.appState.Peers().OnlinePeerIDs()

	return fr.store.ExpireTombstones(func(path string, dr state.DeletionRecord) bool {
		if time.Since(dr.DeletedAt) < tunables.TombstoneTTL {
			return true // keep: not yet past TTL
		}

		clocks := fr.onlinePeerClocksFor(path, online)

		return !state.AcknowledgedByAllOnline(dr, clocks) // keep unless every online peer acknowledged it
	})
}

func countPtr(n int64) *int64 { return &n }

// relativeTo reports path's folder-relative form if it lies under root.
func relativeTo(root, path string) (string, bool) {
	if len(path) <= len(root) || path[:len(root)] != root {
		return "", false
	}

	rel := path[len(root):]
	for len(rel) > 0 && rel[0] == '/' {
		rel = rel[1:]
	}

	return rel, true
}
