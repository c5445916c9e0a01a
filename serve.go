package main

import (
	"context"
	"fmt"
	"net"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/handler"
)

func newServeCmd() *cobra.Command {
	var flagListen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the request handler, answering peers' RPCs",
		Long: `Open every configured, non-paused folder and answer the wire protocol
of spec §4.10 (getMST, getFiles, getFileData/putFileData, deleteFiles,
getFileChunks/getChunkData, putFileChunks/putChunkData) for whichever peer
dials in. This is the server side only — use 'sync' to drive a session
against a remote peer.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, flagListen)
		},
	}

	cmd.Flags().StringVar(&flagListen, "listen", "127.0.0.1:9443", "address to listen on")

	return cmd
}

func runServe(cmd *cobra.Command, listenAddr string) error {
	cc := mustCLIContext(cmd.Context())

	orch, localID, _, err := buildOrchestrator(cc)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}
	defer ln.Close()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	pidPath := filepath.Join(cc.Paths.Root(), "foldersync.pid")

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	statusf("foldersync serving as peer %s on %s\n", localID, ln.Addr())
	cc.Logger.Info("serve: listening", "addr", ln.Addr().String(), "peer_id", localID)

	go watchSIGHUP(ctx, cc)

	if err := handler.Serve(ctx, ln, orch.HandlerRegistry(), cc.Logger); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}

// watchSIGHUP reloads config into the Holder on SIGHUP, the signal that
// pause/resume and folder/peer edits send (mirrors the teacher's
// pause/resume notifyDaemon contract). The reload does not change which
// folders are served: newly-added folders are not opened, folders paused
// since startup stay open, and the request handler does not consult
// Paused/PausedUntil.
func watchSIGHUP(ctx context.Context, cc *CLIContext) {
	sighup := sighupChannel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sighup:
			cfg, err := config.Load(cc.Holder.Path(), cc.Logger)
			if err != nil {
				cc.Logger.Warn("serve: config reload failed", "error", err.Error())
				continue
			}

			cc.Holder.Update(cfg)
			cc.Logger.Info("serve: config reloaded")
		}
	}
}
