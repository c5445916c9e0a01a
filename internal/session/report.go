package session

import (
	"time"

	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/decision"
	"github.com/foldersync/foldersync/internal/protocol"
	"github.com/foldersync/foldersync/internal/state"
)

// plannedAction is one path's Decision Engine verdict, carried from the
// planning phase into execution (spec §4.8 "actions").
type plannedAction struct {
	Path   string
	Action decision.Action
	Local  state.FileState
	Remote state.FileState
}

// Session is the orchestrator's working state for one run against one
// peer for one folder (spec §3 SyncSession). It is assembled fresh each
// run rather than persisted between sessions.
type Session struct {
	SyncID   string
	FolderID string
	PeerID   string

	StartedAt time.Time
	Folder    *config.SyncFolder

	RemoteHash   string
	RemoteStates []protocol.FileState

	LocalMST      string
	LocallyDeleted []string

	Actions []plannedAction

	BytesTransferred int64
	FilesSynced      int
}

// Report is what RunFolder returns: the externally-visible summary of one
// completed (or failed) session (spec §4.8 "Finalization... append a
// session log entry {bytes, file count, duration}").
type Report struct {
	FolderID string
	SyncID   string
	PeerID   string

	StartedAt time.Time
	Duration  time.Duration

	FilesSynced      int
	BytesTransferred int64
	Downloads        int
	Uploads          int
	LocalDeletes     int
	RemoteDeletes    int
	Conflicts        int

	Err error
}

// sessionLogEntry is the JSON shape appended to config.AppPaths.SyncLogPath
// (spec §6 "append-only session logs").
type sessionLogEntry struct {
	Time             time.Time `json:"time"`
	FolderID         string    `json:"folder_id"`
	SyncID           string    `json:"sync_id"`
	PeerID           string    `json:"peer_id"`
	DurationMs       int64     `json:"duration_ms"`
	FilesSynced      int       `json:"files_synced"`
	BytesTransferred int64     `json:"bytes_transferred"`
	Downloads        int       `json:"downloads"`
	Uploads          int       `json:"uploads"`
	LocalDeletes     int       `json:"local_deletes"`
	RemoteDeletes    int       `json:"remote_deletes"`
	Conflicts        int       `json:"conflicts"`
	Error            string    `json:"error,omitempty"`
}

func newSessionLogEntry(r *Report) sessionLogEntry {
	e := sessionLogEntry{
		Time:             r.StartedAt,
		FolderID:         r.FolderID,
		SyncID:           r.SyncID,
		PeerID:           r.PeerID,
		DurationMs:       r.Duration.Milliseconds(),
		FilesSynced:      r.FilesSynced,
		BytesTransferred: r.BytesTransferred,
		Downloads:        r.Downloads,
		Uploads:          r.Uploads,
		LocalDeletes:     r.LocalDeletes,
		RemoteDeletes:    r.RemoteDeletes,
		Conflicts:        r.Conflicts,
	}

	if r.Err != nil {
		e.Error = r.Err.Error()
	}

	return e
}

// remoteStateOf converts one wire protocol.FileState into the engine's own
// state.FileState, mirroring internal/handler/rpcs.go's fileStateToWire in
// reverse.
func remoteStateOf(fs protocol.FileState) state.FileState {
	if fs.Deleted {
		return state.FileState{
			Deletion: &state.DeletionRecord{
				DeletedAt:   time.Unix(fs.MtimeUnixSec, 0).UTC(),
				VectorClock: protocol.VCFromWire(fs.VC),
			},
		}
	}

	md := &state.FileMetadata{
		Hash:        fs.Hash,
		Mtime:       time.Unix(fs.MtimeUnixSec, 0).UTC(),
		Size:        fs.Size,
		VectorClock: protocol.VCFromWire(fs.VC),
	}

	if fs.HasCreation {
		t := time.Unix(fs.CreationUnix, 0).UTC()
		md.CreationDate = &t
	}

	return state.FileState{Metadata: md}
}

// localStateOf builds the engine's state.FileState for path from the local
// File State Store, returning the zero value (absent) if path is unknown.
func localStateOf(st *state.Store, path string) state.FileState {
	fs, ok := st.Get(path)
	if !ok {
		return state.FileState{}
	}

	return fs
}

// emptyVC is the vector clock used when a side of a comparison has none.
var emptyVC = clock.VectorClock{}
