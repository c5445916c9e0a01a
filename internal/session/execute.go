package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/conflict"
	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/decision"
	"github.com/foldersync/foldersync/internal/protocol"
	"github.com/foldersync/foldersync/internal/state"
	"github.com/foldersync/foldersync/internal/transfer"
)

// execute implements spec §4.8's Execution phase: dispatch every planned
// action through a bounded worker pool (§5 MaxSessionConcurrency), apply
// each action's effect to the File State Store, Causal Clock Manager, and
// Merkle Index, and accumulate per-session totals onto sess/report. A
// single action's failure is logged and counted but does not abort the
// other in-flight actions, since the transfer layer already retries
// transient errors internally (internal/transfer's backoff wrapping) and
// one bad path should not block the rest of a session.
func (o *Orchestrator) execute(
	ctx context.Context, fr *folderRuntime, sess *Session, client *protocol.Client,
	tunables config.Tunables, report *Report,
) error {
	limit := tunables.MaxSessionConcurrency
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var (
		mu     sync.Mutex
		errs   []error
		peerID = sess.PeerID
	)

	for _, pa := range sess.Actions {
		pa := pa

		g.Go(func() error {
			actionErr := o.executeOne(gctx, fr, peerID, pa, client, &mu, sess, report)
			if actionErr != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s (%s): %w", pa.Path, pa.Action, actionErr))
				mu.Unlock()

				o.logger.Warn("session: action failed",
					slog.String("path", pa.Path), slog.String("action", pa.Action.String()),
					slog.String("error", actionErr.Error()))
			}

			return nil
		})
	}

	_ = g.Wait() // individual action errors are collected in errs, never fatal to the group

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// executeOne dispatches a single planned action. mu guards the shared
// sess/report counters across concurrent workers.
func (o *Orchestrator) executeOne(
	ctx context.Context, fr *folderRuntime, peerID string, pa plannedAction, client *protocol.Client,
	mu *sync.Mutex, sess *Session, report *Report,
) error {
	switch pa.Action {
	case decision.Upload:
		return o.executeUpload(ctx, fr, pa, client, mu, sess, report)
	case decision.Download:
		return o.executeDownload(ctx, fr, pa, client, mu, sess, report)
	case decision.DeleteLocal:
		return o.executeDeleteLocal(ctx, fr, pa, mu, report)
	case decision.DeleteRemote:
		return o.executeDeleteRemote(ctx, fr, pa, client, mu, report)
	case decision.Conflict:
		return o.executeConflict(ctx, fr, peerID, pa, client, mu, report)
	case decision.Uncertain:
		o.logger.Debug("session: uncertain action left untouched", slog.String("path", pa.Path))
		return nil
	default:
		return nil
	}
}

// localAbsPath resolves path to its absolute location under folder.
func localAbsPath(fr *folderRuntime, path string) string {
	return filepath.Join(fr.folder.LocalPath, filepath.FromSlash(path))
}

func clockKeyFor(fr *folderRuntime, path string) clock.Key {
	return clock.Key{FolderID: fr.folder.ID, SyncID: fr.folder.SyncID, Path: path}
}

func (o *Orchestrator) executeUpload(
	ctx context.Context, fr *folderRuntime, pa plannedAction, client *protocol.Client,
	mu *sync.Mutex, sess *Session, report *Report,
) error {
	localHash := ""
	localVC := emptyVC

	if pa.Local.Exists() {
		localHash = pa.Local.Metadata.Hash
		localVC = pa.Local.Metadata.VectorClock
	}

	result, err := o.transfer.UploadFile(ctx, client, pa.Path, localAbsPath(fr, pa.Path), localHash, localVC)
	if err != nil {
		return fmt.Errorf("session: uploading %s: %w", pa.Path, err)
	}

	if err := o.commitTransferResult(ctx, fr, pa.Path, result); err != nil {
		return err
	}

	mu.Lock()
	sess.FilesSynced++
	sess.BytesTransferred += result.Size
	report.FilesSynced++
	report.Uploads++
	report.BytesTransferred += result.Size
	mu.Unlock()

	return nil
}

func (o *Orchestrator) executeDownload(
	ctx context.Context, fr *folderRuntime, pa plannedAction, client *protocol.Client,
	mu *sync.Mutex, sess *Session, report *Report,
) error {
	if !pa.Remote.Exists() {
		return fmt.Errorf("session: download planned for %s with no remote metadata", pa.Path)
	}

	remote := pa.Remote.Metadata

	localVC := emptyVC
	if pa.Local.Exists() {
		localVC = pa.Local.Metadata.VectorClock
	}

	remoteInfo := remoteFileInfo(remote)

	result, err := o.transfer.DownloadFile(ctx, client, pa.Path, localAbsPath(fr, pa.Path), remoteInfo, localVC)
	if err != nil {
		return fmt.Errorf("session: downloading %s: %w", pa.Path, err)
	}

	if err := o.commitTransferResult(ctx, fr, pa.Path, result); err != nil {
		return err
	}

	mu.Lock()
	sess.FilesSynced++
	sess.BytesTransferred += result.Size
	report.FilesSynced++
	report.Downloads++
	report.BytesTransferred += result.Size
	mu.Unlock()

	return nil
}

// commitTransferResult persists a completed upload/download's result to
// both independent persistence layers a session touches: the Causal Clock
// Manager (clocks.Save) and the File State Store / Merkle Index
// (store.SetLive / index.Upsert). Both must be updated together or the two
// layers drift out of sync (spec §4.9's mtime/VC convergence contract).
func (o *Orchestrator) commitTransferResult(ctx context.Context, fr *folderRuntime, path string, result *transfer.Result) error {
	if err := fr.clocks.Save(ctx, clockKeyFor(fr, path), result.VectorClock); err != nil {
		return fmt.Errorf("session: saving clock for %s: %w", path, err)
	}

	fr.store.SetLive(path, state.FileMetadata{
		Hash:         result.Hash,
		Mtime:        result.Mtime,
		Size:         result.Size,
		CreationDate: result.CreationDate,
		VectorClock:  result.VectorClock,
	})

	fr.index.Upsert(path, result.Hash)

	return nil
}

// remoteFileInfo adapts a remote's state.FileMetadata into the shape
// internal/transfer.DownloadFile expects.
func remoteFileInfo(md *state.FileMetadata) transfer.FileInfo {
	return transfer.FileInfo{
		Hash:         md.Hash,
		Size:         md.Size,
		Mtime:        md.Mtime,
		CreationDate: md.CreationDate,
		VectorClock:  md.VectorClock,
	}
}

// executeDeleteLocal applies a remote tombstone locally: remove the file
// from disk, merge the remote tombstone's VC with whatever clock we had,
// and record our own tombstone (spec §4.7 decideLocalExistsRemoteDeleted).
func (o *Orchestrator) executeDeleteLocal(
	ctx context.Context, fr *folderRuntime, pa plannedAction, mu *sync.Mutex, report *Report,
) error {
	if !pa.Remote.Deleted() {
		return fmt.Errorf("session: deleteLocal planned for %s with no remote tombstone", pa.Path)
	}

	absPath := localAbsPath(fr, pa.Path)
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: removing %s: %w", pa.Path, err)
	}

	local, err := fr.clocks.Get(ctx, clockKeyFor(fr, pa.Path))
	if err != nil {
		return fmt.Errorf("session: reading clock for %s: %w", pa.Path, err)
	}

	merged := clock.Merge(local, pa.Remote.Deletion.VectorClock)

	if err := fr.clocks.Save(ctx, clockKeyFor(fr, pa.Path), merged); err != nil {
		return fmt.Errorf("session: saving clock for %s: %w", pa.Path, err)
	}

	fr.store.SetDeleted(pa.Path, state.DeletionRecord{
		DeletedAt:   time.Now(),
		DeletedBy:   fr.peerID,
		VectorClock: merged,
	})
	fr.index.Remove(pa.Path)

	mu.Lock()
	report.LocalDeletes++
	mu.Unlock()

	return nil
}

// executeDeleteRemote pushes our own tombstone to the peer (spec §4.7
// decideLocalDeletedRemoteExists's deleteRemote branch).
func (o *Orchestrator) executeDeleteRemote(
	ctx context.Context, fr *folderRuntime, pa plannedAction, client *protocol.Client, mu *sync.Mutex, report *Report,
) error {
	if !pa.Local.Deleted() {
		return fmt.Errorf("session: deleteRemote planned for %s with no local tombstone", pa.Path)
	}

	err := client.DeleteFiles(ctx, map[string]clock.VectorClock{pa.Path: pa.Local.Deletion.VectorClock})
	if err != nil {
		return fmt.Errorf("session: requesting remote delete of %s: %w", pa.Path, err)
	}

	mu.Lock()
	report.RemoteDeletes++
	mu.Unlock()

	return nil
}

// executeConflict implements spec §8 scenario 2's preservation policy: the
// live local file is left exactly as it is (whichever side "won" the
// path), the remote's content is fetched and written to a side-by-side
// conflict artifact, the event is logged, and the local clock is merged
// with the remote's and then bumped with this peer's own ID so the next
// session resolves the path to an ordinary upload instead of flagging the
// same conflict again.
func (o *Orchestrator) executeConflict(
	ctx context.Context, fr *folderRuntime, peerID string, pa plannedAction, client *protocol.Client,
	mu *sync.Mutex, report *Report,
) error {
	data, remoteVC, err := client.GetFileData(ctx, pa.Path)
	if err != nil {
		return fmt.Errorf("session: fetching remote content for conflict %s: %w", pa.Path, err)
	}

	absPath := localAbsPath(fr, pa.Path)

	_, err = conflict.WriteArtifact(o.paths.ConflictsLogPath(), fr.folder.ID, fr.folder.SyncID, absPath, peerID, time.Now(), data)
	if err != nil {
		return fmt.Errorf("session: writing conflict artifact for %s: %w", pa.Path, err)
	}

	local, err := fr.clocks.Get(ctx, clockKeyFor(fr, pa.Path))
	if err != nil {
		return fmt.Errorf("session: reading clock for %s: %w", pa.Path, err)
	}

	if err := fr.clocks.Save(ctx, clockKeyFor(fr, pa.Path), clock.Merge(local, remoteVC)); err != nil {
		return fmt.Errorf("session: saving merged clock for conflict %s: %w", pa.Path, err)
	}

	vc, err := fr.clocks.UpdateForLocalChange(ctx, clockKeyFor(fr, pa.Path), fr.peerID)
	if err != nil {
		return fmt.Errorf("session: bumping clock after conflict %s: %w", pa.Path, err)
	}

	if pa.Local.Exists() {
		md := *pa.Local.Metadata
		md.VectorClock = vc

		fr.store.SetLive(pa.Path, md)
		fr.index.Upsert(pa.Path, md.Hash)
	}

	mu.Lock()
	report.Conflicts++
	mu.Unlock()

	return nil
}
