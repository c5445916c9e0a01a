package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/detector"
	"github.com/foldersync/foldersync/internal/state"
)

// errVerifyMismatch is the sentinel main.go checks for to choose an exit
// code of 1 (mismatches found) vs. any other error (verification itself
// failed to run), matching the teacher's verify.go run/report split.
var errVerifyMismatch = errors.New("verify: local tree does not match recorded state")

// mismatchKind names why a path didn't match the recorded snapshot.
type mismatchKind string

const (
	mismatchMissingLocally mismatchKind = "missing_locally"
	mismatchUnexpectedFile mismatchKind = "unexpected_file"
	mismatchHashDiffers    mismatchKind = "hash_differs"
)

type mismatch struct {
	Path string       `json:"path"`
	Kind mismatchKind `json:"kind"`
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <folder-id>",
		Short: "Recompute local hashes and compare against recorded state",
		Long: `Walks a folder's local tree, recomputes every file's content hash, and
compares it against the File State Store's last-known snapshot. Exits 1 if
any mismatch is found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args[0])
		},
	}

	return cmd
}

func runVerify(cmd *cobra.Command, folderID string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	f, ok := cfg.Folders[folderID]
	if !ok {
		return fmt.Errorf("folder %q not found in config", folderID)
	}

	store, err := state.Open(cc.Paths.SnapshotPath(f.SyncID), cc.Paths.TombstonesPath(f.SyncID))
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}

	mismatches, err := verifyFolder(f, store)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(mismatches); err != nil {
			return err
		}
	} else {
		printVerifyReport(folderID, mismatches)
	}

	if len(mismatches) > 0 {
		return errVerifyMismatch
	}

	return nil
}

// verifyFolder walks f.LocalPath, hashing every non-excluded regular file,
// and diffs the result against store's live snapshot.
func verifyFolder(f *config.SyncFolder, store *state.Store) ([]mismatch, error) {
	rules := detector.NewRules(f.ExcludePatterns)

	seen := make(map[string]struct{})
	var mismatches []mismatch

	walkErr := filepath.WalkDir(f.LocalPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(f.LocalPath, path)
		if relErr != nil {
			return relErr
		}

		if rel == "." {
			return nil
		}

		rel = filepath.ToSlash(rel)

		if rules.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		seen[rel] = struct{}{}

		recorded, known := store.Get(rel)
		if !known || !recorded.Exists() {
			mismatches = append(mismatches, mismatch{Path: rel, Kind: mismatchUnexpectedFile})
			return nil
		}

		hash, hashErr := hashFile(path)
		if hashErr != nil {
			return hashErr
		}

		if hash != recorded.Metadata.Hash {
			mismatches = append(mismatches, mismatch{Path: rel, Kind: mismatchHashDiffers})
		}

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	for path, md := range store.All() {
		if md.IsDirectory {
			continue
		}

		if _, ok := seen[path]; !ok {
			mismatches = append(mismatches, mismatch{Path: path, Kind: mismatchMissingLocally})
		}
	}

	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].Path < mismatches[j].Path })

	return mismatches, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func printVerifyReport(folderID string, mismatches []mismatch) {
	if len(mismatches) == 0 {
		statusf("folder %s: verified, no mismatches\n", folderID)
		return
	}

	headers := []string{"PATH", "ISSUE"}
	rows := make([][]string, 0, len(mismatches))

	for _, m := range mismatches {
		rows = append(rows, []string{m.Path, string(m.Kind)})
	}

	printTable(os.Stdout, headers, rows)
	statusf("folder %s: %d mismatch(es) found\n", folderID, len(mismatches))
}
