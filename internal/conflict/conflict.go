// Package conflict implements the conflict-artifact policy of spec §6 and
// §8 scenario 2: when the Session Orchestrator's execution phase hits a
// Conflict decision, the remote's content is preserved alongside the
// local file rather than overwriting it, and the event is appended to a
// durable log.
//
// Grounded on the teacher's internal/sync/conflict.go ConflictHandler
// (keep-both resolution: rename the losing side's content out of the way
// rather than discard it), adapted from that package's "rename local,
// download remote to the original path" shape to this engine's
// preservation-only policy: the live local file stays exactly where it
// is and the remote's bytes land in a side-by-side artifact instead.
package conflict

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// peerIDPrefixLen is how much of a peer ID names a conflict artifact,
// matching spec §6's "<basename>.conflict.<peerID prefix8>.<unix-seconds>".
const peerIDPrefixLen = 8

// Record is one entry appended to the conflicts log (spec §6 "additionally
// recorded in an append-only conflicts log").
type Record struct {
	Time         time.Time `json:"time"`
	FolderID     string    `json:"folder_id"`
	SyncID       string    `json:"sync_id"`
	Path         string    `json:"path"`
	PeerID       string    `json:"peer_id"`
	ArtifactPath string    `json:"artifact_path"`
}

// ArtifactPath returns localPath's conflict artifact path, named
// <basename>.conflict.<peerID prefix8>.<unix-seconds> immediately beside
// the original (spec §6, and internal/detector/ignore.go's conflictArtifactMarker
// exclusion, which this naming must keep matching).
func ArtifactPath(localPath, peerID string, at time.Time) string {
	prefix := peerID
	if len(prefix) > peerIDPrefixLen {
		prefix = prefix[:peerIDPrefixLen]
	}

	return fmt.Sprintf("%s.conflict.%s.%d", localPath, prefix, at.Unix())
}

// WriteArtifact materializes data at localPath's conflict artifact path
// without touching localPath itself, then appends a Record to logPath
// (spec §8 scenario 2: "both peers have a conflict artifact... both peers
// log the conflict").
func WriteArtifact(logPath, folderID, syncID, localPath, peerID string, at time.Time, data []byte) (string, error) {
	artifactPath := ArtifactPath(localPath, peerID, at)

	if err := writeAtomic(artifactPath, data); err != nil {
		return "", fmt.Errorf("conflict: writing artifact %s: %w", artifactPath, err)
	}

	rec := Record{
		Time:         at,
		FolderID:     folderID,
		SyncID:       syncID,
		Path:         localPath,
		PeerID:       peerID,
		ArtifactPath: artifactPath,
	}

	if err := appendJSONL(logPath, rec); err != nil {
		return artifactPath, fmt.Errorf("conflict: logging %s: %w", artifactPath, err)
	}

	return artifactPath, nil
}

// writeAtomic writes data to path via a temp file plus rename, the same
// durability shape internal/state and internal/transfer use for every
// other on-disk write in this codebase.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".conflict-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}

// appendJSONL appends one JSON-encoded line to path, creating it and any
// parent directory as needed.
func appendJSONL(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)

	return enc.Encode(v)
}
