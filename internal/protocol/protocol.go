// Package protocol defines the wire representation of the peer RPC set
// (spec §4.10, §6): tagged request/response variants serialized by
// github.com/uplo-tech/encoding's length-prefixed object codec, grounded on
// uplo-tech-uplo's modules/host/rpcloop.go (read the RPC ID, dispatch,
// respond) and modules/renter/proto/negotiate.go's
// encoding.WriteObject/ReadObject framing idiom.
package protocol

import (
	"sort"
	"strings"

	"github.com/foldersync/foldersync/internal/clock"
)

// RPCID identifies which request variant a frame carries, mirroring the
// teacher's modules.Specifier-keyed RPC dispatch table in rpcloop.go. A
// plain string is used here instead of a fixed-size byte array: this
// protocol has no on-wire compatibility contract with Uplo's, and named
// constants read better than magic specifiers.
type RPCID string

// The RPC set exactly matches spec §4.10.
const (
	RPCGetMST        RPCID = "getMST"
	RPCGetFiles      RPCID = "getFiles"
	RPCGetFileData   RPCID = "getFileData"
	RPCPutFileData   RPCID = "putFileData"
	RPCDeleteFiles   RPCID = "deleteFiles"
	RPCGetFileChunks RPCID = "getFileChunks"
	RPCGetChunkData  RPCID = "getChunkData"
	RPCPutFileChunks RPCID = "putFileChunks"
	RPCPutChunkData  RPCID = "putChunkData"
)

// missingChunksPrefix is the literal error-message prefix spec §4.10/§6
// mandates for a putFileChunks response reporting missing chunks (Chinese
// for "missing blocks"). The hashes follow as a comma-separated hex list.
const missingChunksPrefix = "缺失块: "

// FormatMissingChunksError builds the exact wire string spec §6 requires
// for a putFileChunks rejection.
func FormatMissingChunksError(missing []string) string {
	return missingChunksPrefix + strings.Join(missing, ",")
}

// ParseMissingChunksError reports whether msg is a missing-chunks error and,
// if so, the hashes it lists.
func ParseMissingChunksError(msg string) (missing []string, ok bool) {
	rest, found := strings.CutPrefix(msg, missingChunksPrefix)
	if !found {
		return nil, false
	}

	if rest == "" {
		return nil, true
	}

	return strings.Split(rest, ","), true
}

// VCEntry is the wire representation of one VectorClock component.
// github.com/uplo-tech/encoding's reflection-based codec (as used throughout
// uplo-tech-uplo's types/encoding.go) does not marshal Go maps, only structs
// and slices, so VectorClock crosses the wire as a sorted slice of entries.
// Exported because it crosses the session/handler package boundary directly
// as FileState.VC's element type.
type VCEntry struct {
	Peer    string
	Counter uint64
}

// VCToWire converts a VectorClock to its wire slice form.
func VCToWire(vc clock.VectorClock) []VCEntry {
	entries := make([]VCEntry, 0, len(vc))
	for peer, n := range vc {
		entries = append(entries, VCEntry{Peer: peer, Counter: n})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Peer < entries[j].Peer })

	return entries
}

// VCFromWire converts a wire slice back into a VectorClock.
func VCFromWire(entries []VCEntry) clock.VectorClock {
	vc := make(clock.VectorClock, len(entries))
	for _, e := range entries {
		vc[e.Peer] = e.Counter
	}

	return vc
}

// FileState is the wire representation of one path's authoritative state in
// a filesV2(states) response (spec §4.10). CreationUnix/HasCreation encode
// an optional time.Time: the codec has no notion of pointers, so presence
// is carried as its own flag rather than a zero-value sentinel.
type FileState struct {
	Path         string
	Deleted      bool
	Hash         string
	Size         int64
	MtimeUnixSec int64
	HasCreation  bool
	CreationUnix int64
	VC           []VCEntry
}
