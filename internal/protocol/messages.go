package protocol

// Each request/response pair below corresponds to one bullet of spec
// §4.10. A response's Error field is empty on success; a non-empty Error on
// FileChunksAckResponse may be a FormatMissingChunksError string, which
// callers must check with ParseMissingChunksError before treating it as a
// terminal failure.

// GetMSTRequest is "getMST(syncID)".
type GetMSTRequest struct {
	SyncID string
}

// MSTRootResponse is "mstRoot(root)".
type MSTRootResponse struct {
	Error string
	Root  string
}

// GetFilesRequest is "getFiles(syncID)".
type GetFilesRequest struct {
	SyncID string
}

// FilesResponse is "filesV2(states)".
type FilesResponse struct {
	Error  string
	States []FileState
}

// GetFileDataRequest is "getFileData(syncID, path)".
type GetFileDataRequest struct {
	SyncID string
	Path   string
}

// FileDataResponse is "fileData(bytes)".
type FileDataResponse struct {
	Error string
	Data  []byte
	VC    []VCEntry
}

// PutFileDataRequest is "putFileData(syncID, path, bytes, vc)".
type PutFileDataRequest struct {
	SyncID string
	Path   string
	Data   []byte
	VC     []VCEntry
}

// PutAckResponse is "putAck".
type PutAckResponse struct {
	Error string
	VC    []VCEntry
}

// DeletePathVC pairs a deleted path with its caller-supplied VC (spec
// §4.10's "map<path, vc?>" — the optional VC is carried as a possibly-empty
// slice rather than a pointer, same reasoning as FileState.HasCreation).
type DeletePathVC struct {
	Path string
	VC   []VCEntry
}

// DeleteFilesRequest is "deleteFiles(syncID, map<path, vc?>)".
type DeleteFilesRequest struct {
	SyncID string
	Paths  []DeletePathVC
}

// DeleteAckResponse is "deleteAck".
type DeleteAckResponse struct {
	Error string
}

// GetFileChunksRequest is "getFileChunks(syncID, path)".
type GetFileChunksRequest struct {
	SyncID string
	Path   string
}

// FileChunksResponse is "fileChunks([hashes])".
type FileChunksResponse struct {
	Error  string
	Hashes []string
	VC     []VCEntry
}

// GetChunkDataRequest is "getChunkData(syncID, hash)".
type GetChunkDataRequest struct {
	SyncID string
	Hash   string
}

// ChunkDataResponse is "chunkData(bytes)".
type ChunkDataResponse struct {
	Error string
	Data  []byte
}

// PutFileChunksRequest is "putFileChunks(syncID, path, [hashes], vc)".
type PutFileChunksRequest struct {
	SyncID string
	Path   string
	Hashes []string
	VC     []VCEntry
}

// FileChunksAckResponse is "fileChunksAck". Error carries
// FormatMissingChunksError(missing) when the server is rejecting the
// commit for lack of chunks; empty Error means the commit succeeded.
type FileChunksAckResponse struct {
	Error string
	VC    []VCEntry
}

// PutChunkDataRequest is "putChunkData(syncID, hash, bytes)".
type PutChunkDataRequest struct {
	SyncID string
	Hash   string
	Data   []byte
}

// ChunkAckResponse is "chunkAck".
type ChunkAckResponse struct {
	Error string
}
