package session

import (
	"context"
	"fmt"

	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/protocol"
)

// errUnknownSyncIDText mirrors internal/handler/serve.go's unexported
// errUnknownSyncID sentinel text exactly: the wire error string a peer
// sends back when it does not serve the requested syncID (spec §4.8
// "remote folder missing is fatal for this session"). Duplicated here
// rather than exported from internal/handler so the two packages stay
// decoupled; a changed wire contract for this case needs updating in one
// other place, internal/handler/serve.go's dispatch.
const errUnknownSyncIDText = "handler: unknown syncID"

// discover implements spec §4.8's Discovery phase: fetch the peer's Merkle
// root for this folder's syncID, and only if it differs from the local
// root, fetch the peer's full per-path listing. A peer that does not serve
// syncID at all fails the whole session with ErrRemoteFolderMissing —
// the operator configured this peer for this folder, so a missing remote
// side is a misconfiguration worth surfacing rather than a silent no-op.
func (o *Orchestrator) discover(ctx context.Context, fr *folderRuntime, sess *Session, client *protocol.Client) error {
	root, err := client.GetMST(ctx)
	if err != nil {
		if err.Error() == errUnknownSyncIDText {
			return ErrRemoteFolderMissing
		}

		return fmt.Errorf("session: fetching remote MST root: %w", err)
	}

	sess.RemoteHash = root
	sess.LocalMST = fr.index.Root().String()

	if root == sess.LocalMST {
		return nil
	}

	states, err := client.GetFiles(ctx)
	if err != nil {
		if err.Error() == errUnknownSyncIDText {
			return ErrRemoteFolderMissing
		}

		return fmt.Errorf("session: fetching remote file listing: %w", err)
	}

	sess.RemoteStates = states

	remoteClocks := make(map[string]clock.VectorClock, len(states))
	for _, fs := range states {
		remoteClocks[fs.Path] = protocol.VCFromWire(fs.VC)
	}

	fr.recordPeerClocks(sess.PeerID, remoteClocks)

	return nil
}
