// Package handler implements the server side of the Request Handler (spec
// §4.10): the nine RPC variants a peer answers for a remote, dispatched by
// internal/protocol's RPCID. Grounded on uplo-tech-uplo's
// modules/host/rpcloop.go RPC-ID-to-method dispatch table, generalized from
// an encrypted storage-contract session to a plain per-call peer-sync
// session. The handler is stateless across RPCs (spec §4.10): every
// persistent effect goes through internal/state.Store,
// internal/blockstore.Store, internal/clock.Manager, or the filesystem,
// never an in-memory field of Handler itself.
package handler

import (
	"log/slog"
	"time"

	"github.com/foldersync/foldersync/internal/blockstore"
	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/detector"
	"github.com/foldersync/foldersync/internal/state"
)

// Handler answers one folder's RPCs for one syncID. A session orchestrator
// builds one Handler per locally-configured SyncFolder it serves.
type Handler struct {
	folderID  string
	syncID    string
	localPath string
	mode      config.SyncMode
	peerID    string

	rules    *detector.Rules
	store    *state.Store
	blocks   *blockstore.Store
	clocks   *clock.Manager
	tunables config.Tunables
	logger   *slog.Logger
}

// New builds a Handler. rules filters which paths are visible to remote
// peers at all (spec §4.6's ignore rules apply symmetrically to inbound
// queries, not just local change detection).
func New(
	folderID, syncID, localPath string,
	mode config.SyncMode,
	rules *detector.Rules,
	store *state.Store,
	blocks *blockstore.Store,
	clocks *clock.Manager,
	tunables config.Tunables,
	peerID string,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		folderID:  folderID,
		syncID:    syncID,
		localPath: localPath,
		mode:      mode,
		peerID:    peerID,
		rules:     rules,
		store:     store,
		blocks:    blocks,
		clocks:    clocks,
		tunables:  tunables,
		logger:    logger,
	}
}

// clockKey builds the Causal Clock Manager key for relPath within this
// Handler's folder/syncID.
func (h *Handler) clockKey(relPath string) clock.Key {
	return clock.Key{FolderID: h.folderID, SyncID: h.syncID, Path: relPath}
}

// ignored reports whether relPath is excluded from this folder's sync
// surface, so remote RPCs can't read/write/enumerate what the local ignore
// rules exclude.
func (h *Handler) ignored(relPath string) bool {
	return h.rules.Match(relPath)
}

// allowIncomingWrite/allowOutgoingRead enforce SyncFolder.mode (spec §4.7
// "mode overrides") on the handler side, named from our own local folder's
// perspective rather than the calling RPC's: a remote's putFileData/
// putFileChunks/deleteFiles pushes content into our tree, the same
// direction a "download" from the remote is, so it is refused on an
// uploadOnly folder. A remote's getFileData/getFileChunks/getChunkData/
// getFiles/getMST pulls our content, the same direction an "upload" to the
// remote is, so it is refused on a downloadOnly folder.
func (h *Handler) allowIncomingWrite() bool {
	return h.mode != config.ModeUploadOnly
}

func (h *Handler) allowOutgoingRead() bool {
	return h.mode != config.ModeDownloadOnly
}

// writeInProgressGrace is how long getFileData waits for a zero-length,
// recently-touched file to stabilize before giving up (spec §4.10).
func (h *Handler) writeInProgressGrace() time.Duration {
	if h.tunables.StabilityWindow > 0 {
		return h.tunables.StabilityWindow
	}

	return 3 * time.Second
}
