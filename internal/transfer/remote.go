package transfer

import (
	"context"

	"github.com/foldersync/foldersync/internal/clock"
)

// Uploader is the narrow collaborator a Manager needs to push bytes to a
// remote peer (spec §4.10's put* RPCs). It is implemented by
// internal/protocol's RPC client; Manager depends only on this interface,
// mirroring the teacher's Downloader/Uploader split in
// internal/sync/transfer_manager.go.
type Uploader interface {
	// PutFileData sends the full file contents and the caller's vector
	// clock, returning the remote's own clock entry for the path so the
	// caller can merge (spec §4.9 "full transfer").
	PutFileData(ctx context.Context, path string, data []byte, vc clock.VectorClock) (remoteVC clock.VectorClock, err error)

	// PutFileChunks commits a chunk manifest. ack is true when every
	// listed hash was already present remotely; otherwise missing lists
	// the hashes that must be uploaded with PutChunkData before resending.
	PutFileChunks(ctx context.Context, path string, hashes []string, vc clock.VectorClock) (ack bool, missing []string, remoteVC clock.VectorClock, err error)

	// PutChunkData uploads one chunk's bytes.
	PutChunkData(ctx context.Context, hash string, data []byte) error
}

// Downloader is the narrow collaborator a Manager needs to pull bytes from
// a remote peer (spec §4.10's get* RPCs).
type Downloader interface {
	// GetFileData fetches the full file contents (spec §4.9 "full
	// transfer").
	GetFileData(ctx context.Context, path string) (data []byte, remoteVC clock.VectorClock, err error)

	// GetFileChunks fetches the ordered chunk-hash manifest for path.
	GetFileChunks(ctx context.Context, path string) (hashes []string, remoteVC clock.VectorClock, err error)

	// GetChunkData fetches one chunk's bytes by hash.
	GetChunkData(ctx context.Context, hash string) (data []byte, err error)
}
