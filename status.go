package main

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/peer"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current sync status of every configured folder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}

	return cmd
}

type folderStatusRow struct {
	FolderID   string    `json:"folder_id"`
	SyncID     string    `json:"sync_id"`
	LocalPath  string    `json:"local_path"`
	Mode       string    `json:"mode"`
	Paused     bool      `json:"paused"`
	Status     string    `json:"status"`
	LastSyncAt time.Time `json:"last_sync_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	rows := make([]folderStatusRow, 0, len(cfg.Folders))

	for _, f := range cfg.Folders {
		row := folderStatusRow{
			FolderID:  f.ID,
			SyncID:    f.SyncID,
			LocalPath: f.LocalPath,
			Mode:      string(f.Mode),
			Paused:    f.IsPaused(time.Now()),
			Status:    peer.StatusIdle.String(),
		}

		if fs, ok := cc.AppState.Get(f.ID); ok {
			row.Status = fs.Status.String()
			row.LastSyncAt = fs.LastSyncAt
			row.Error = fs.ErrorDetail
		}

		if row.Paused {
			row.Status = "paused"
		}

		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].FolderID < rows[j].FolderID })

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	printStatusTable(rows)

	return nil
}

func printStatusTable(rows []folderStatusRow) {
	if len(rows) == 0 {
		statusf("no folders configured\n")
		return
	}

	headers := []string{"FOLDER", "SYNC ID", "LOCAL PATH", "MODE", "STATUS", "LAST SYNC"}
	table := make([][]string, 0, len(rows))

	for _, r := range rows {
		last := "never"
		if !r.LastSyncAt.IsZero() {
			last = formatTime(r.LastSyncAt)
		}

		status := r.Status
		if r.Status == "error" && r.Error != "" {
			status = "error: " + r.Error
		}

		table = append(table, []string{r.FolderID, r.SyncID, r.LocalPath, r.Mode, status, last})
	}

	printTable(os.Stdout, headers, table)
}
