package session

import (
	"context"
	"fmt"

	"github.com/foldersync/foldersync/internal/detector"
)

// localState implements spec §4.8's Local state phase: run a definitive
// filesystem scan so the File State Store and Causal Clock Manager reflect
// exactly what is on disk right now before planning reads them. The
// rename/deletion disambiguation itself (diffing the current path set
// against the last-known one, matching disappeared hashes against new
// paths, migrating VCs on a match, tombstoning what doesn't match) is
// internal/detector's job — ScanAll drives the same classification Watch
// mode uses, finished off by ForceSweepAll so no rename is left pending at
// the start of planning.
func (o *Orchestrator) localState(ctx context.Context, fr *folderRuntime, sess *Session) error {
	changes, err := fr.detector.ScanAll(ctx)
	if err != nil {
		return fmt.Errorf("session: scanning local state: %w", err)
	}

	for _, c := range changes {
		if c.Kind == detector.Deleted {
			sess.LocallyDeleted = append(sess.LocallyDeleted, c.Path)
		}
	}

	return nil
}
