package config

import (
	"errors"
	"fmt"
	"regexp"
)

// minSyncIDLength is the minimum length of a syncID (spec §3: "≥4 chars,
// alphanumeric only").
const minSyncIDLength = 4

var syncIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ErrInvalidSyncID is a Configuration-class error (spec §7): the syncID
// fails the format requirement.
var ErrInvalidSyncID = errors.New("config: syncID must be alphanumeric and at least 4 characters")

// ErrDuplicateSyncID is a Configuration-class error (spec §7): the syncID
// is already bound to another locally-configured folder.
var ErrDuplicateSyncID = errors.New("config: syncID already bound to another folder")

// ErrInvalidMode is a Configuration-class error: an unrecognized sync mode.
var ErrInvalidMode = errors.New("config: mode must be one of twoWay, uploadOnly, downloadOnly")

// ErrMissingLocalPath is a Configuration-class error: local_path is required.
var ErrMissingLocalPath = errors.New("config: local_path is required")

// ValidateSyncID checks the format constraint from spec §3. It does not
// check uniqueness; callers use ValidateFolders for that, since uniqueness
// is a property of the whole folder set.
func ValidateSyncID(syncID string) error {
	if len(syncID) < minSyncIDLength || !syncIDPattern.MatchString(syncID) {
		return fmt.Errorf("%w: %q", ErrInvalidSyncID, syncID)
	}

	return nil
}

// ValidateFolder checks a single SyncFolder's format constraints, not
// including cross-folder uniqueness.
func ValidateFolder(f *SyncFolder) error {
	if err := ValidateSyncID(f.SyncID); err != nil {
		return err
	}

	if f.LocalPath == "" {
		return ErrMissingLocalPath
	}

	if !f.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, f.Mode)
	}

	return nil
}

// ErrMissingPeerAddress is a Configuration-class error: a peer entry has
// no dial address.
var ErrMissingPeerAddress = errors.New("config: peer address is required")

// ValidatePeers checks every configured peer has a non-empty dial address.
func ValidatePeers(peers map[string]*PeerConfig) error {
	for id, p := range peers {
		if p.Address == "" {
			return fmt.Errorf("peer %s: %w", id, ErrMissingPeerAddress)
		}
	}

	return nil
}

// ValidateFolders checks every folder's format and rejects duplicate
// syncIDs across the set (spec §7 "Configuration" errors, "rejected at
// add-folder time").
func ValidateFolders(folders map[string]*SyncFolder) error {
	seen := make(map[string]string, len(folders))

	for id, f := range folders {
		if err := ValidateFolder(f); err != nil {
			return fmt.Errorf("folder %s: %w", id, err)
		}

		if other, ok := seen[f.SyncID]; ok && other != id {
			return fmt.Errorf("%w: %q (folders %s and %s)", ErrDuplicateSyncID, f.SyncID, other, id)
		}

		seen[f.SyncID] = id
	}

	return nil
}
