// Package decision implements the Decision Engine of spec §4.7: a pure
// function from a path's local and remote FileState to an Action, with no
// I/O and no side effects. Grounded on the teacher's
// internal/sync/planner.go, which is structured the same way (a pure
// function over three-way state views, switch-dispatched flag
// combinations) — generalized here from the teacher's eleven-branch
// baseline/local/remote matrix to the spec's causal local/remote table
// driven by vector-clock comparison instead of a synced baseline.
package decision

import (
	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/state"
)

// Action is the outcome of deciding what to do about one path.
type Action int

const (
	Skip Action = iota
	Download
	Upload
	DeleteLocal
	DeleteRemote
	Conflict
	Uncertain
)

func (a Action) String() string {
	switch a {
	case Skip:
		return "skip"
	case Download:
		return "download"
	case Upload:
		return "upload"
	case DeleteLocal:
		return "deleteLocal"
	case DeleteRemote:
		return "deleteRemote"
	case Conflict:
		return "conflict"
	case Uncertain:
		return "uncertain"
	default:
		return "unknown"
	}
}

// Decide returns the Action for a path given its local and remote
// FileState (the zero state.FileState{} represents "absent" on that side)
// and the folder's sync mode (spec §4.7 decision table, with
// uploadOnly/downloadOnly overrides).
func Decide(local, remote state.FileState, mode config.SyncMode) Action {
	action := decideUnmasked(local, remote)
	return applyModeMask(action, mode)
}

func decideUnmasked(local, remote state.FileState) Action {
	switch {
	case absent(local) && absent(remote):
		return Skip
	case absent(local) && remote.Exists():
		return Download
	case absent(local) && remote.Deleted():
		return Skip
	case local.Exists() && absent(remote):
		return Upload
	case local.Exists() && remote.Exists():
		return decideBothExist(local.Metadata, remote.Metadata)
	case local.Exists() && remote.Deleted():
		return decideLocalExistsRemoteDeleted(local.Metadata, remote.Deletion)
	case local.Deleted() && remote.Exists():
		return decideLocalDeletedRemoteExists(local.Deletion, remote.Metadata)
	case local.Deleted() && remote.Deleted():
		return Skip
	default:
		return Uncertain
	}
}

func absent(s state.FileState) bool {
	return !s.Exists() && !s.Deleted()
}

func decideBothExist(local, remote *state.FileMetadata) Action {
	if local.Hash == remote.Hash {
		return Skip
	}

	switch local.VectorClock.Compare(remote.VectorClock) {
	case clock.Less:
		return Download
	case clock.Greater:
		return Upload
	default: // Equal with differing hash, or Concurrent
		return Conflict
	}
}

func decideLocalExistsRemoteDeleted(local *state.FileMetadata, tombstone *state.DeletionRecord) Action {
	if tombstone.VectorClock.Compare(local.VectorClock) == clock.Greater {
		return DeleteLocal
	}

	return Upload
}

func decideLocalDeletedRemoteExists(tombstone *state.DeletionRecord, remote *state.FileMetadata) Action {
	if tombstone.VectorClock.Compare(remote.VectorClock) == clock.Greater {
		return DeleteRemote
	}

	return Download // resurrection
}

// applyModeMask implements spec §4.7's "uploadOnly masks downloads and
// deleteLocal into skip; downloadOnly masks uploads and deleteRemote".
func applyModeMask(action Action, mode config.SyncMode) Action {
	switch mode {
	case config.ModeUploadOnly:
		if action == Download || action == DeleteLocal {
			return Skip
		}
	case config.ModeDownloadOnly:
		if action == Upload || action == DeleteRemote {
			return Skip
		}
	}

	return action
}
