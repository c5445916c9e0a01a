package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
)

func newPeerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage dialable remote peers",
	}

	cmd.AddCommand(newPeerAddCmd())
	cmd.AddCommand(newPeerListCmd())
	cmd.AddCommand(newPeerRemoveCmd())

	return cmd
}

func newPeerAddCmd() *cobra.Command {
	var flagID string

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Register a dialable peer address",
		Long: `Registers a new [[peer]] table naming a remote peer this process may
dial, e.g. "foldersync peer add 10.0.0.5:9443". Peer discovery and
transport establishment are outside the sync engine itself (spec §1);
this is only the address book the engine's Transport is built from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeerAdd(cmd, args[0], flagID)
		},
	}

	cmd.Flags().StringVar(&flagID, "id", "", "peer ID (default: generated)")

	return cmd
}

func runPeerAdd(cmd *cobra.Command, address, id string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	if id == "" {
		id = uuid.NewString()
	}

	if _, exists := cfg.Peers[id]; exists {
		return fmt.Errorf("peer %q already registered", id)
	}

	p := &config.PeerConfig{ID: id, Address: address}

	if err := config.ValidatePeers(map[string]*config.PeerConfig{id: p}); err != nil {
		return err
	}

	if err := config.AppendPeerSection(cc.Holder.Path(), p); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	statusf("peer %s added (address=%s)\n", id, address)
	notifyDaemon(cc)

	return nil
}

func newPeerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered peers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPeerList(cmd)
		},
	}

	return cmd
}

func runPeerList(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	peers := make([]*config.PeerConfig, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers = append(peers, p)
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(peers)
	}

	if len(peers) == 0 {
		statusf("no peers registered\n")
		return nil
	}

	headers := []string{"ID", "ADDRESS", "ONLINE"}
	rows := make([][]string, 0, len(peers))

	for _, p := range peers {
		online := "no"
		if cc.AppState.Peers().IsOnline(p.ID) {
			online = "yes"
		}

		rows = append(rows, []string{p.ID, p.Address, online})
	}

	printTable(os.Stdout, headers, rows)

	return nil
}

func newPeerRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <peer-id>",
		Short: "Remove a registered peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeerRemove(cmd, args[0])
		},
	}

	return cmd
}

func runPeerRemove(cmd *cobra.Command, peerID string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	if _, ok := cfg.Peers[peerID]; !ok {
		return fmt.Errorf("peer %q not found in config", peerID)
	}

	if err := config.RemovePeerSection(cc.Holder.Path(), peerID); err != nil {
		return fmt.Errorf("removing peer: %w", err)
	}

	statusf("peer %s removed from config\n", peerID)
	notifyDaemon(cc)

	return nil
}
