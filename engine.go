package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/foldersync/foldersync/internal/blockstore"
	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/peer"
	"github.com/foldersync/foldersync/internal/session"
	"github.com/foldersync/foldersync/internal/transfer"
)

// addrTransport is the minimal peer.Transport this CLI hosts: peer
// discovery and wire security are out of the engine's scope (spec §1), so
// the CLI itself is just the "hosting process" the spec says supplies a
// Transport at construction — here, a static address book read from
// config.Peers and dialed over plain TCP.
type addrTransport struct {
	addresses map[string]string
}

func newAddrTransport(peers map[string]*config.PeerConfig) *addrTransport {
	addrs := make(map[string]string, len(peers))
	for id, p := range peers {
		addrs[id] = p.Address
	}

	return &addrTransport{addresses: addrs}
}

func (t *addrTransport) Dial(ctx context.Context, peerID string) (net.Conn, error) {
	addr, ok := t.addresses[peerID]
	if !ok {
		return nil, fmt.Errorf("no address configured for peer %q", peerID)
	}

	var d net.Dialer

	return d.DialContext(ctx, "tcp", addr)
}

var _ peer.Transport = (*addrTransport)(nil)

// buildOrchestrator constructs a session.Orchestrator wired to cc's
// config/paths, opens every non-paused configured folder, and returns it
// alongside the local peer identity and address-book transport a caller
// needs to actually dial peers.
func buildOrchestrator(cc *CLIContext) (*session.Orchestrator, string, *addrTransport, error) {
	cfg := cc.Holder.Config()

	localID, err := localIdentity(cc.Paths.Root())
	if err != nil {
		return nil, "", nil, err
	}

	blocks := blockstore.New(cc.Paths, cc.Logger)

	limiter, err := transfer.NewBandwidthLimiter(cfg.BandwidthLimit, cc.Logger)
	if err != nil {
		return nil, "", nil, fmt.Errorf("building bandwidth limiter: %w", err)
	}

	orch := session.NewOrchestrator(cc.Paths, cc.Holder, blocks, limiter, cc.AppState, cc.Logger)

	for _, f := range cfg.Folders {
		if f.IsPaused(time.Now()) {
			cc.Logger.Debug("skipping paused folder", "folder", f.ID)
			continue
		}

		if err := orch.OpenFolder(localID, f); err != nil {
			return nil, "", nil, fmt.Errorf("opening folder %s: %w", f.ID, err)
		}
	}

	return orch, localID, newAddrTransport(cfg.Peers), nil
}
