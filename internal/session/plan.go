package session

import (
	"github.com/foldersync/foldersync/internal/decision"
	"github.com/foldersync/foldersync/internal/state"
)

// plan implements spec §4.8's Planning phase: the pure Decision Engine is
// evaluated once per path over the union of every path either side knows
// about, local and remote state views (built by localStateOf/remoteStateOf)
// feeding the same decision.Decide used for single-path evaluation
// elsewhere. Skip is dropped; every other verdict including Uncertain is
// carried into execution, since Uncertain still needs a logged record even
// though it performs no transfer.
func (o *Orchestrator) plan(fr *folderRuntime, sess *Session) {
	remoteByPath := make(map[string]state.FileState, len(sess.RemoteStates))
	for _, fs := range sess.RemoteStates {
		remoteByPath[fs.Path] = remoteStateOf(fs)
	}

	paths := make(map[string]struct{})

	for path := range fr.store.All() {
		paths[path] = struct{}{}
	}

	for path := range fr.store.AllTombstones() {
		paths[path] = struct{}{}
	}

	for path := range remoteByPath {
		paths[path] = struct{}{}
	}

	for path := range paths {
		if isDirectoryPath(fr.store, path, remoteByPath) {
			continue
		}

		local := localStateOf(fr.store, path)
		remote := remoteByPath[path]

		action := decision.Decide(local, remote, fr.folder.Mode)
		if action == decision.Skip {
			continue
		}

		sess.Actions = append(sess.Actions, plannedAction{
			Path:   path,
			Action: action,
			Local:  local,
			Remote: remote,
		})
	}
}

// isDirectoryPath reports whether path is a directory entry on either
// side, per either the File State Store's own IsDirectory flag or the
// state.DirectoryHash sentinel hash a remote peer's wire listing carries
// for directories. Directories are structural bookkeeping, not content to
// transfer, so they never enter the action set.
func isDirectoryPath(st *state.Store, path string, remoteByPath map[string]state.FileState) bool {
	if fs, ok := st.Get(path); ok && fs.Exists() && fs.Metadata.IsDirectory {
		return true
	}

	if remote, ok := remoteByPath[path]; ok && remote.Exists() && remote.Metadata.Hash == state.DirectoryHash {
		return true
	}

	return false
}
