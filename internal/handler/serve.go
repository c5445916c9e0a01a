package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/protocol"
)

// Serve accepts connections on ln and answers one RPC frame per connection,
// the server-side mirror of protocol.Client's dial-per-call design.
// Grounded on uplo-tech-uplo's modules/host listener loop (accept, spawn a
// goroutine per connection, decode the RPC id, dispatch), generalized from a
// long-lived encrypted session to one frame in, one frame out. Serve returns
// when ctx is canceled or ln.Accept fails permanently.
func Serve(ctx context.Context, ln net.Listener, registry *Registry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		go serveConn(ctx, conn, registry, logger)
	}
}

func serveConn(ctx context.Context, conn net.Conn, registry *Registry, logger *slog.Logger) {
	defer conn.Close()

	id, err := protocol.ReadFrameID(conn)
	if err != nil {
		logger.Debug("handler: reading RPC id failed", slog.String("error", err.Error()))
		return
	}

	if err := dispatch(ctx, conn, id, registry, logger); err != nil {
		logger.Debug("handler: RPC failed", slog.String("rpc", string(id)), slog.String("error", err.Error()))
	}
}

var errUnknownSyncID = errors.New("handler: unknown syncID")

// dispatch decodes the RPCID-specific request, looks up its syncID's
// Handler, invokes it, and writes the matching response. Each case owns its
// own request/response pair rather than a generic envelope: spec §9 Design
// Notes calls for sum-type dispatch over virtual method dispatch, and the
// wire protocol itself is exactly that sum type keyed by RPCID.
func dispatch(ctx context.Context, conn net.Conn, id protocol.RPCID, registry *Registry, logger *slog.Logger) error {
	switch id {
	case protocol.RPCGetMST:
		var req protocol.GetMSTRequest
		if err := protocol.ReadPayload(conn, &req); err != nil {
			return err
		}

		h, ok := registry.Lookup(req.SyncID)
		if !ok {
			return protocol.WriteResponse(conn, protocol.MSTRootResponse{Error: errUnknownSyncID.Error()})
		}

		root, err := h.GetMST(ctx)
		if err != nil {
			return protocol.WriteResponse(conn, protocol.MSTRootResponse{Error: err.Error()})
		}

		return protocol.WriteResponse(conn, protocol.MSTRootResponse{Root: root})

	case protocol.RPCGetFiles:
		var req protocol.GetFilesRequest
		if err := protocol.ReadPayload(conn, &req); err != nil {
			return err
		}

		h, ok := registry.Lookup(req.SyncID)
		if !ok {
			return protocol.WriteResponse(conn, protocol.FilesResponse{Error: errUnknownSyncID.Error()})
		}

		states, err := h.GetFiles(ctx)
		if err != nil {
			return protocol.WriteResponse(conn, protocol.FilesResponse{Error: err.Error()})
		}

		return protocol.WriteResponse(conn, protocol.FilesResponse{States: states})

	case protocol.RPCGetFileData:
		var req protocol.GetFileDataRequest
		if err := protocol.ReadPayload(conn, &req); err != nil {
			return err
		}

		h, ok := registry.Lookup(req.SyncID)
		if !ok {
			return protocol.WriteResponse(conn, protocol.FileDataResponse{Error: errUnknownSyncID.Error()})
		}

		data, vc, err := h.GetFileData(ctx, req.Path)
		if err != nil {
			return protocol.WriteResponse(conn, protocol.FileDataResponse{Error: err.Error()})
		}

		return protocol.WriteResponse(conn, protocol.FileDataResponse{Data: data, VC: protocol.VCToWire(vc)})

	case protocol.RPCPutFileData:
		var req protocol.PutFileDataRequest
		if err := protocol.ReadPayload(conn, &req); err != nil {
			return err
		}

		h, ok := registry.Lookup(req.SyncID)
		if !ok {
			return protocol.WriteResponse(conn, protocol.PutAckResponse{Error: errUnknownSyncID.Error()})
		}

		vc, err := h.PutFileData(ctx, req.Path, req.Data, protocol.VCFromWire(req.VC))
		if err != nil {
			return protocol.WriteResponse(conn, protocol.PutAckResponse{Error: err.Error()})
		}

		return protocol.WriteResponse(conn, protocol.PutAckResponse{VC: protocol.VCToWire(vc)})

	case protocol.RPCDeleteFiles:
		var req protocol.DeleteFilesRequest
		if err := protocol.ReadPayload(conn, &req); err != nil {
			return err
		}

		h, ok := registry.Lookup(req.SyncID)
		if !ok {
			return protocol.WriteResponse(conn, protocol.DeleteAckResponse{Error: errUnknownSyncID.Error()})
		}

		paths := make(map[string]clock.VectorClock, len(req.Paths))
		for _, p := range req.Paths {
			paths[p.Path] = protocol.VCFromWire(p.VC)
		}

		if err := h.DeleteFiles(ctx, paths); err != nil {
			return protocol.WriteResponse(conn, protocol.DeleteAckResponse{Error: err.Error()})
		}

		return protocol.WriteResponse(conn, protocol.DeleteAckResponse{})

	case protocol.RPCGetFileChunks:
		var req protocol.GetFileChunksRequest
		if err := protocol.ReadPayload(conn, &req); err != nil {
			return err
		}

		h, ok := registry.Lookup(req.SyncID)
		if !ok {
			return protocol.WriteResponse(conn, protocol.FileChunksResponse{Error: errUnknownSyncID.Error()})
		}

		hashes, vc, err := h.GetFileChunks(ctx, req.Path)
		if err != nil {
			return protocol.WriteResponse(conn, protocol.FileChunksResponse{Error: err.Error()})
		}

		return protocol.WriteResponse(conn, protocol.FileChunksResponse{Hashes: hashes, VC: protocol.VCToWire(vc)})

	case protocol.RPCGetChunkData:
		var req protocol.GetChunkDataRequest
		if err := protocol.ReadPayload(conn, &req); err != nil {
			return err
		}

		h, ok := registry.Lookup(req.SyncID)
		if !ok {
			return protocol.WriteResponse(conn, protocol.ChunkDataResponse{Error: errUnknownSyncID.Error()})
		}

		data, err := h.GetChunkData(ctx, req.Hash)
		if err != nil {
			return protocol.WriteResponse(conn, protocol.ChunkDataResponse{Error: err.Error()})
		}

		return protocol.WriteResponse(conn, protocol.ChunkDataResponse{Data: data})

	case protocol.RPCPutFileChunks:
		var req protocol.PutFileChunksRequest
		if err := protocol.ReadPayload(conn, &req); err != nil {
			return err
		}

		h, ok := registry.Lookup(req.SyncID)
		if !ok {
			return protocol.WriteResponse(conn, protocol.FileChunksAckResponse{Error: errUnknownSyncID.Error()})
		}

		ack, missing, vc, err := h.PutFileChunks(ctx, req.Path, req.Hashes, protocol.VCFromWire(req.VC))
		if err != nil {
			return protocol.WriteResponse(conn, protocol.FileChunksAckResponse{Error: err.Error()})
		}

		if !ack {
			return protocol.WriteResponse(conn, protocol.FileChunksAckResponse{Error: protocol.FormatMissingChunksError(missing)})
		}

		return protocol.WriteResponse(conn, protocol.FileChunksAckResponse{VC: protocol.VCToWire(vc)})

	case protocol.RPCPutChunkData:
		var req protocol.PutChunkDataRequest
		if err := protocol.ReadPayload(conn, &req); err != nil {
			return err
		}

		h, ok := registry.Lookup(req.SyncID)
		if !ok {
			return protocol.WriteResponse(conn, protocol.ChunkAckResponse{Error: errUnknownSyncID.Error()})
		}

		if err := h.PutChunkData(ctx, req.Hash, req.Data); err != nil {
			return protocol.WriteResponse(conn, protocol.ChunkAckResponse{Error: err.Error()})
		}

		return protocol.WriteResponse(conn, protocol.ChunkAckResponse{})

	default:
		logger.Warn("handler: unknown RPC id", slog.String("rpc", string(id)))
		return nil
	}
}
