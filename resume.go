package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
)

func newResumeCmd() *cobra.Command {
	var flagAll bool

	cmd := &cobra.Command{
		Use:   "resume [folder-id]",
		Short: "Resume synchronization for a paused folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagAll {
				return runResumeAll(cmd)
			}

			if len(args) != 1 {
				return fmt.Errorf("requires a folder-id argument, or --all")
			}

			return runResumeOne(cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&flagAll, "all", false, "resume every paused folder")

	return cmd
}

func runResumeOne(cmd *cobra.Command, folderID string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	if _, ok := cfg.Folders[folderID]; !ok {
		return fmt.Errorf("folder %q not found in config", folderID)
	}

	if err := clearPausedKeys(cc.Holder.Path(), folderID); err != nil {
		return err
	}

	statusf("folder %s resumed\n", folderID)
	notifyDaemon(cc)

	return nil
}

func runResumeAll(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	path := cc.Holder.Path()
	resumed := 0

	for _, f := range cfg.Folders {
		if !f.Paused {
			continue
		}

		if err := clearPausedKeys(path, f.ID); err != nil {
			return fmt.Errorf("resuming folder %s: %w", f.ID, err)
		}

		resumed++
	}

	statusf("resumed %d folder(s)\n", resumed)

	if resumed > 0 {
		notifyDaemon(cc)
	}

	return nil
}

// clearPausedKeys deletes both the paused and paused_until keys from
// folderID's [[folder]] table, mirroring the teacher's resume.go
// clearPausedKeys calling DeleteDriveKey twice.
func clearPausedKeys(path, folderID string) error {
	if err := config.DeleteFolderKey(path, folderID, "paused"); err != nil {
		return fmt.Errorf("clearing paused: %w", err)
	}

	if err := config.DeleteFolderKey(path, folderID, "paused_until"); err != nil {
		return fmt.Errorf("clearing paused_until: %w", err)
	}

	return nil
}
