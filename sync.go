package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/peer"
	"github.com/foldersync/foldersync/internal/protocol"
	"github.com/foldersync/foldersync/internal/session"
)

func newSyncCmd() *cobra.Command {
	var flagFolder string
	var flagWatch bool
	var flagInterval time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a synchronization session against a peer",
		Long: `Drive one complete session (discover, plan, execute, finalize) against
--peer for every configured folder, or only --folder if given. With --watch,
repeats every --interval until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, flagFolder, flagWatch, flagInterval)
		},
	}

	cmd.Flags().StringVar(&flagFolder, "folder", "", "folder ID to sync (default: all configured folders)")
	cmd.Flags().BoolVar(&flagWatch, "watch", false, "keep syncing on an interval until interrupted")
	cmd.Flags().DurationVar(&flagInterval, "interval", 5*time.Minute, "poll interval in --watch mode")

	return cmd
}

func runSync(cmd *cobra.Command, folderID string, watch bool, interval time.Duration) error {
	cc := mustCLIContext(cmd.Context())

	if flagPeerID == "" {
		return fmt.Errorf("--peer is required (which peer to synchronize with)")
	}

	orch, localID, transport, err := buildOrchestrator(cc)
	if err != nil {
		return err
	}

	cfg := cc.Holder.Config()

	folderIDs, err := selectFolderIDs(cfg, folderID)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	cc.Logger.Info("sync: starting", "peer", flagPeerID, "local_peer", localID, "folders", folderIDs, "watch", watch)
	cc.AppState.Peers().SetOnline(flagPeerID, true)

	runOnce := func() []*session.Report {
		return runFoldersOnce(ctx, orch, cfg, transport, folderIDs)
	}

	if !watch {
		reports := runOnce()
		printSyncReports(reports)

		return errorFromReports(reports)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	printSyncReports(runOnce())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			printSyncReports(runOnce())
		}
	}
}

// selectFolderIDs returns the folder IDs to drive a session for: either a
// single explicitly-named folder, or every configured folder.
func selectFolderIDs(cfg *config.Config, folderID string) ([]string, error) {
	if folderID != "" {
		if _, ok := cfg.Folders[folderID]; !ok {
			return nil, fmt.Errorf("folder %q not found in config", folderID)
		}

		return []string{folderID}, nil
	}

	ids := make([]string, 0, len(cfg.Folders))
	for id := range cfg.Folders {
		ids = append(ids, id)
	}

	return ids, nil
}

// runFoldersOnce drives one session per folderID against flagPeerID,
// skipping paused and cooldown-suppressed folders silently (spec §4.8
// "Cooldowns").
func runFoldersOnce(ctx context.Context, orch *session.Orchestrator, cfg *config.Config, transport peer.Transport, folderIDs []string) []*session.Report {
	reports := make([]*session.Report, 0, len(folderIDs))

	for _, id := range folderIDs {
		if cfg.Folders[id].IsPaused(time.Now()) {
			continue
		}

		dialer := peer.DialerFor(transport, flagPeerID)
		client := protocol.NewClient(cfg.Folders[id].SyncID, dialer, cfg.RPCTimeout)

		report, err := orch.RunFolder(ctx, id, flagPeerID, client)
		if err != nil && !errors.Is(err, session.ErrCooldownActive) {
			if report == nil {
				report = &session.Report{FolderID: id, PeerID: flagPeerID, Err: err}
			}
		}

		if errors.Is(err, session.ErrCooldownActive) {
			continue
		}

		reports = append(reports, report)
	}

	return reports
}

// syncReportJSON is the --json view of a session.Report: a dedicated
// struct rather than encoding Report directly, since Report.Err is a bare
// error interface with no JSON-friendly representation of its own.
type syncReportJSON struct {
	FolderID         string `json:"folder_id"`
	PeerID           string `json:"peer_id"`
	FilesSynced      int    `json:"files_synced"`
	BytesTransferred int64  `json:"bytes_transferred"`
	DurationMs       int64  `json:"duration_ms"`
	Error            string `json:"error,omitempty"`
}

func printSyncReports(reports []*session.Report) {
	if flagJSON {
		views := make([]syncReportJSON, 0, len(reports))

		for _, r := range reports {
			v := syncReportJSON{
				FolderID:         r.FolderID,
				PeerID:           r.PeerID,
				FilesSynced:      r.FilesSynced,
				BytesTransferred: r.BytesTransferred,
				DurationMs:       r.Duration.Milliseconds(),
			}

			if r.Err != nil {
				v.Error = r.Err.Error()
			}

			views = append(views, v)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(views)

		return
	}

	for _, r := range reports {
		if r.Err != nil {
			statusf("folder %s: sync failed: %v\n", r.FolderID, r.Err)
			continue
		}

		if r.FilesSynced == 0 && r.BytesTransferred == 0 {
			statusf("folder %s: already in sync\n", r.FolderID)
			continue
		}

		statusf("folder %s: synced %d file(s), %s transferred (%s)\n",
			r.FolderID, r.FilesSynced, formatSize(r.BytesTransferred), r.Duration.Round(time.Millisecond))
	}
}

func errorFromReports(reports []*session.Report) error {
	failed := 0

	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
	}

	if failed == 0 {
		return nil
	}

	return fmt.Errorf("sync completed with %d failed folder(s)", failed)
}
