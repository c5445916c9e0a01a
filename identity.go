package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// peerIdentityFileName is where this process's own, locally-generated peer
// ID is cached (spec §6 "a hosting process supplies {peerID,
// localPeerIdentity, transport} at construction" — this CLI is that
// hosting process, and a stable local identity is the one piece it must
// invent itself since peer identity assignment is out of the engine's
// scope).
const peerIdentityFileName = "peer_id"

// localIdentity returns this host's peer ID, generating and persisting one
// under dataDir on first use.
func localIdentity(dataDir string) (string, error) {
	path := filepath.Join(dataDir, peerIdentityFileName)

	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading peer identity: %w", err)
	}

	id := uuid.NewString()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing peer identity: %w", err)
	}

	return id, nil
}
