package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/foldersync/foldersync/internal/clock"
)

// Dialer opens a fresh connection to one remote peer. The request handler
// is stateless across RPCs (spec §4.10), so Client dials once per call
// rather than holding a long-lived session the way the teacher's OAuth
// http.Client did; concurrency comes from multiple goroutines each dialing
// their own connection, bounded upstream by internal/transfer's errgroup
// pools.
type Dialer func(ctx context.Context) (net.Conn, error)

// Client is the concrete internal/transfer.Uploader/Downloader
// implementation: one Client is bound to a single (peer, syncID) pair,
// constructed by internal/session for each folder it syncs against a peer.
type Client struct {
	syncID  string
	dial    Dialer
	timeout time.Duration
}

// NewClient builds a Client for syncID over dial, with a per-RPC deadline of
// timeout (spec §5: "90-180 s depending on payload size" — callers pick
// within that range; a chunk-data RPC should use a shorter timeout than a
// full-file RPC).
func NewClient(syncID string, dial Dialer, timeout time.Duration) *Client {
	return &Client{syncID: syncID, dial: dial, timeout: timeout}
}

// call dials, sends one frame, reads the response into resp, and closes the
// connection. A single attempt only: internal/transfer.Manager.retry wraps
// every Uploader/Downloader call with backoff, so Client does not retry on
// its own.
func (c *Client) call(ctx context.Context, id RPCID, req, resp any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("protocol: dial for %s: %w", id, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else if c.timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	if err := WriteFrame(conn, id, req); err != nil {
		return err
	}

	if err := ReadPayload(conn, resp); err != nil {
		return err
	}

	return nil
}

// GetMST issues spec §4.10's getMST RPC.
func (c *Client) GetMST(ctx context.Context) (root string, err error) {
	var resp MSTRootResponse
	if err := c.call(ctx, RPCGetMST, GetMSTRequest{SyncID: c.syncID}, &resp); err != nil {
		return "", err
	}

	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}

	return resp.Root, nil
}

// GetFiles issues spec §4.10's getFiles RPC, preferring filesV2 semantics.
func (c *Client) GetFiles(ctx context.Context) ([]FileState, error) {
	var resp FilesResponse
	if err := c.call(ctx, RPCGetFiles, GetFilesRequest{SyncID: c.syncID}, &resp); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}

	return resp.States, nil
}

// GetFileData implements transfer.Downloader.
func (c *Client) GetFileData(ctx context.Context, path string) ([]byte, clock.VectorClock, error) {
	var resp FileDataResponse
	if err := c.call(ctx, RPCGetFileData, GetFileDataRequest{SyncID: c.syncID, Path: path}, &resp); err != nil {
		return nil, nil, err
	}

	if resp.Error != "" {
		return nil, nil, fmt.Errorf("protocol: getFileData %s: %s", path, resp.Error)
	}

	return resp.Data, VCFromWire(resp.VC), nil
}

// PutFileData implements transfer.Uploader.
func (c *Client) PutFileData(ctx context.Context, path string, data []byte, vc clock.VectorClock) (clock.VectorClock, error) {
	req := PutFileDataRequest{SyncID: c.syncID, Path: path, Data: data, VC: VCToWire(vc)}

	var resp PutAckResponse
	if err := c.call(ctx, RPCPutFileData, req, &resp); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("protocol: putFileData %s: %s", path, resp.Error)
	}

	return VCFromWire(resp.VC), nil
}

// DeleteFiles issues spec §4.10's deleteFiles RPC.
func (c *Client) DeleteFiles(ctx context.Context, paths map[string]clock.VectorClock) error {
	req := DeleteFilesRequest{SyncID: c.syncID}
	for path, vc := range paths {
		req.Paths = append(req.Paths, DeletePathVC{Path: path, VC: VCToWire(vc)})
	}

	var resp DeleteAckResponse
	if err := c.call(ctx, RPCDeleteFiles, req, &resp); err != nil {
		return err
	}

	if resp.Error != "" {
		return fmt.Errorf("protocol: deleteFiles: %s", resp.Error)
	}

	return nil
}

// GetFileChunks implements transfer.Downloader.
func (c *Client) GetFileChunks(ctx context.Context, path string) ([]string, clock.VectorClock, error) {
	var resp FileChunksResponse
	if err := c.call(ctx, RPCGetFileChunks, GetFileChunksRequest{SyncID: c.syncID, Path: path}, &resp); err != nil {
		return nil, nil, err
	}

	if resp.Error != "" {
		return nil, nil, fmt.Errorf("protocol: getFileChunks %s: %s", path, resp.Error)
	}

	return resp.Hashes, VCFromWire(resp.VC), nil
}

// GetChunkData implements transfer.Downloader.
func (c *Client) GetChunkData(ctx context.Context, hash string) ([]byte, error) {
	var resp ChunkDataResponse
	if err := c.call(ctx, RPCGetChunkData, GetChunkDataRequest{SyncID: c.syncID, Hash: hash}, &resp); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("protocol: getChunkData %s: %s", hash, resp.Error)
	}

	return resp.Data, nil
}

// PutFileChunks implements transfer.Uploader. A missing-chunks error is not
// treated as a failure: it is the protocol's normal "not yet" response,
// parsed via ParseMissingChunksError.
func (c *Client) PutFileChunks(ctx context.Context, path string, hashes []string, vc clock.VectorClock) (bool, []string, clock.VectorClock, error) {
	req := PutFileChunksRequest{SyncID: c.syncID, Path: path, Hashes: hashes, VC: VCToWire(vc)}

	var resp FileChunksAckResponse
	if err := c.call(ctx, RPCPutFileChunks, req, &resp); err != nil {
		return false, nil, nil, err
	}

	if resp.Error == "" {
		return true, nil, VCFromWire(resp.VC), nil
	}

	if missing, ok := ParseMissingChunksError(resp.Error); ok {
		return false, missing, nil, nil
	}

	return false, nil, nil, fmt.Errorf("protocol: putFileChunks %s: %s", path, resp.Error)
}

// PutChunkData implements transfer.Uploader.
func (c *Client) PutChunkData(ctx context.Context, hash string, data []byte) error {
	var resp ChunkAckResponse
	if err := c.call(ctx, RPCPutChunkData, PutChunkDataRequest{SyncID: c.syncID, Hash: hash, Data: data}, &resp); err != nil {
		return err
	}

	if resp.Error != "" {
		return fmt.Errorf("protocol: putChunkData %s: %s", hash, resp.Error)
	}

	return nil
}
