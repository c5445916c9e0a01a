package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/conflict"
)

func newConflictsCmd() *cobra.Command {
	var flagFolder string
	var flagLimit int

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List recorded conflict artifacts",
		Long:  `Reads the append-only conflicts log and lists every recorded conflict, most recent last.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConflicts(cmd, flagFolder, flagLimit)
		},
	}

	cmd.Flags().StringVar(&flagFolder, "folder", "", "only show conflicts for this folder ID")
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "show at most N conflicts (0 = all)")

	return cmd
}

func runConflicts(cmd *cobra.Command, folderID string, limit int) error {
	cc := mustCLIContext(cmd.Context())

	records, err := readConflictLog(cc.Paths.ConflictsLogPath())
	if err != nil {
		return fmt.Errorf("reading conflicts log: %w", err)
	}

	if folderID != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.FolderID == folderID {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	printConflictsTable(records)

	return nil
}

// readConflictLog reads every JSONL conflict.Record from path, returning
// an empty slice (not an error) if the log does not exist yet.
func readConflictLog(path string) ([]conflict.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}
	defer f.Close()

	var records []conflict.Record

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec conflict.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing conflicts log: %w", err)
		}

		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func printConflictsTable(records []conflict.Record) {
	if len(records) == 0 {
		statusf("no conflicts recorded\n")
		return
	}

	headers := []string{"TIME", "FOLDER", "PATH", "PEER", "ARTIFACT"}
	rows := make([][]string, 0, len(records))

	for _, r := range records {
		rows = append(rows, []string{formatTime(r.Time), r.FolderID, r.Path, r.PeerID, r.ArtifactPath})
	}

	printTable(os.Stdout, headers, rows)
}
