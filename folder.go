package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
)

func newFolderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage configured sync folders",
	}

	cmd.AddCommand(newFolderAddCmd())
	cmd.AddCommand(newFolderListCmd())
	cmd.AddCommand(newFolderRemoveCmd())

	return cmd
}

func newFolderAddCmd() *cobra.Command {
	var flagSyncID string
	var flagMode string
	var flagExclude []string

	cmd := &cobra.Command{
		Use:   "add <local-path>",
		Short: "Add a new sync folder",
		Long: `Registers a new [[folder]] table in the config file. --sync-id is the
rendezvous ID shared with the remote peer that owns the same folder
(spec §3: alphanumeric, at least 4 characters); if omitted, one is
generated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFolderAdd(cmd, args[0], flagSyncID, flagMode, flagExclude)
		},
	}

	cmd.Flags().StringVar(&flagSyncID, "sync-id", "", "rendezvous ID shared with the remote peer (default: generated)")
	cmd.Flags().StringVar(&flagMode, "mode", string(config.ModeTwoWay), "sync mode: twoWay, uploadOnly, downloadOnly")
	cmd.Flags().StringSliceVar(&flagExclude, "exclude", nil, "ignore pattern, may be repeated")

	return cmd
}

func runFolderAdd(cmd *cobra.Command, localPath, syncID, mode string, exclude []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	if syncID == "" {
		syncID = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
	}

	f := &config.SyncFolder{
		ID:              uuid.NewString(),
		SyncID:          syncID,
		LocalPath:       localPath,
		Mode:            config.SyncMode(mode),
		ExcludePatterns: exclude,
	}

	if err := config.ValidateFolder(f); err != nil {
		return err
	}

	merged := make(map[string]*config.SyncFolder, len(cfg.Folders)+1)
	for id, existing := range cfg.Folders {
		merged[id] = existing
	}
	merged[f.ID] = f

	if err := config.ValidateFolders(merged); err != nil {
		return err
	}

	if err := os.MkdirAll(localPath, 0o755); err != nil {
		return fmt.Errorf("creating local path: %w", err)
	}

	if err := config.AppendFolderSection(cc.Holder.Path(), f); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	statusf("folder %s added (sync_id=%s, local_path=%s)\n", f.ID, f.SyncID, f.LocalPath)
	notifyDaemon(cc)

	return nil
}

func newFolderListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured sync folders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFolderList(cmd)
		},
	}

	return cmd
}

func runFolderList(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	folders := make([]*config.SyncFolder, 0, len(cfg.Folders))
	for _, f := range cfg.Folders {
		folders = append(folders, f)
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].ID < folders[j].ID })

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(folders)
	}

	if len(folders) == 0 {
		statusf("no folders configured\n")
		return nil
	}

	headers := []string{"ID", "SYNC ID", "LOCAL PATH", "MODE", "EXCLUDE"}
	rows := make([][]string, 0, len(folders))

	for _, f := range folders {
		rows = append(rows, []string{f.ID, f.SyncID, f.LocalPath, string(f.Mode), strings.Join(f.ExcludePatterns, ",")})
	}

	printTable(os.Stdout, headers, rows)

	return nil
}

func newFolderRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <folder-id>",
		Short: "Remove a configured sync folder",
		Long: `Removes the folder's [[folder]] table from the config file. Does not
touch the local filesystem tree or any already-synced remote content.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFolderRemove(cmd, args[0])
		},
	}

	return cmd
}

func runFolderRemove(cmd *cobra.Command, folderID string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	if _, ok := cfg.Folders[folderID]; !ok {
		return fmt.Errorf("folder %q not found in config", folderID)
	}

	if err := config.RemoveFolderSection(cc.Holder.Path(), folderID); err != nil {
		return fmt.Errorf("removing folder: %w", err)
	}

	statusf("folder %s removed from config\n", folderID)
	notifyDaemon(cc)

	return nil
}
