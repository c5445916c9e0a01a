package detector

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
)

// ScanAll performs the definitive filesystem walk the Session
// Orchestrator's local-state phase needs (spec §4.8 "Local state phase":
// reconcile the detector's view with what is actually on disk before
// planning). Every path currently on disk is fed through the same
// HandleRawEvent classification Watch mode uses; every previously-live
// path no longer found on disk is fed in as an OpRename so a matching
// appearance elsewhere in the same walk can still resolve it as a rename
// before ForceSweepAll promotes whatever remains unmatched to a deletion.
//
// ScanAll does not itself decide what is "locallyDeleted" — it returns
// every LocalChange the walk produced (creates, modifies, renames, and
// any deletions ForceSweepAll promoted), the same shape Watch produces
// incrementally.
func (d *Detector) ScanAll(ctx context.Context) ([]LocalChange, error) {
	seen := make(map[string]bool)

	var events []RawEvent

	err := filepath.WalkDir(d.root, func(absPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if absPath == d.root {
			return nil
		}

		relPath, canonErr := canonicalPath(d.root, absPath)
		if canonErr != nil {
			if entry.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.ignore.Match(relPath) {
			if entry.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		seen[relPath] = true
		events = append(events, RawEvent{AbsPath: absPath, Op: OpWrite})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("detector: scanning %s: %w", d.root, err)
	}

	for relPath := range d.state.All() {
		if seen[relPath] {
			continue
		}

		absPath := filepath.Join(d.root, filepath.FromSlash(relPath))
		events = append(events, RawEvent{AbsPath: absPath, Op: OpRename})
	}

	changes, err := d.ProcessBatch(ctx, events)
	if err != nil {
		return changes, err
	}

	swept, err := d.ForceSweepAll(ctx)
	if err != nil {
		return changes, err
	}

	return append(changes, swept...), nil
}
