// Package config loads and validates on-disk configuration for the sync
// engine: per-folder settings (SyncFolder, spec §3) and process-wide
// tunables (cooldowns, stability windows, concurrency limits). It follows
// the teacher's two-pass TOML decode plus Holder pattern so a running
// process can reload config on SIGHUP without restarting.
package config

import "time"

// SyncMode controls which direction(s) of transfer are permitted for a
// folder (spec §3 SyncFolder.mode, §4.7 "mode overrides").
type SyncMode string

// Sync modes as stored in the folder config and matched by the Decision
// Engine's mode overrides.
const (
	ModeTwoWay       SyncMode = "twoWay"
	ModeUploadOnly   SyncMode = "uploadOnly"
	ModeDownloadOnly SyncMode = "downloadOnly"
)

// Valid reports whether m is one of the three known modes.
func (m SyncMode) Valid() bool {
	switch m {
	case ModeTwoWay, ModeUploadOnly, ModeDownloadOnly:
		return true
	default:
		return false
	}
}

// SyncFolder is the configuration for one locally-synchronized directory
// tree, keyed by an opaque local ID and rendezvousing with peers under
// SyncID (spec §3).
type SyncFolder struct {
	ID              string   `toml:"-"`
	SyncID          string   `toml:"sync_id"`
	LocalPath       string   `toml:"local_path"`
	Mode            SyncMode `toml:"mode"`
	ExcludePatterns []string `toml:"exclude_patterns"`

	// Paused/PausedUntil are set by `pause`/`resume` via SetFolderKey/
	// DeleteFolderKey (config/write.go) rather than hand-edited; a running
	// serve daemon rereads them on SIGHUP, but the set of folders it serves
	// is fixed when it starts. PausedUntil is RFC3339, or
	// empty for "paused until manually resumed".
	Paused      bool   `toml:"paused"`
	PausedUntil string `toml:"paused_until"`

	// Counts are informational, refreshed by the orchestrator after each
	// session; never read back from disk.
	FileCount   *int64 `toml:"-"`
	FolderCount *int64 `toml:"-"`
	TotalSize   *int64 `toml:"-"`
}

// IsPaused reports whether the folder is currently paused as of now: the
// Paused flag is set and, if PausedUntil names a time, that time has not
// yet passed (an expired PausedUntil is treated as resumed even before
// `resume` clears the keys explicitly).
func (f *SyncFolder) IsPaused(now time.Time) bool {
	if !f.Paused {
		return false
	}

	if f.PausedUntil == "" {
		return true
	}

	until, err := time.Parse(time.RFC3339, f.PausedUntil)
	if err != nil {
		return true
	}

	return now.Before(until)
}

// PeerConfig names a remote peer this process may dial. Grounded in spec
// §1's "peer discovery and transport establishment" being out of the
// engine's scope: the engine itself only ever asks peer.Transport to dial
// a peerID it already knows, so the hosting CLI needs some narrow,
// config-held address book to satisfy that Transport — this is that book,
// not a discovery mechanism.
type PeerConfig struct {
	ID      string `toml:"-"`
	Address string `toml:"address"`
}

// Tunables holds the process-wide, named configuration values the spec's
// Design Notes (§9) call out as needing to be explicit rather than
// implicit magic numbers.
type Tunables struct {
	// StabilityWindow is how long getFileData waits for a zero-length,
	// recently-modified file to stabilize before giving up (§4.10, ~3s).
	StabilityWindow time.Duration `toml:"stability_window"`

	// SyncWriteCooldown is how long a remote-initiated local write
	// suppresses filesystem-event emission for the same path (§4.6, "a
	// small number of seconds").
	SyncWriteCooldown time.Duration `toml:"sync_write_cooldown"`

	// RenameDetectionWindow bounds how long a disappeared path's hash is
	// held in the pending-rename table before being promoted to a delete
	// (§4.6).
	RenameDetectionWindow time.Duration `toml:"rename_detection_window"`

	// DedupWindow is the short window within which repeated events for an
	// unchanged path are suppressed (§4.6).
	DedupWindow time.Duration `toml:"dedup_window"`

	// SessionCooldown suppresses repeated sessions for the same
	// (peer, folder) pair (§4.8, ~30s).
	SessionCooldown time.Duration `toml:"session_cooldown"`

	// TombstoneTTL is the minimum age before a tombstone becomes eligible
	// for GC, subject to the acknowledgment predicate (§4.4, §3 invariant 2).
	TombstoneTTL time.Duration `toml:"tombstone_ttl"`

	// FullTransferThreshold is the file-size cutoff between the full and
	// chunked transfer paths (§4.9). Open Question #1 in DESIGN.md resolves
	// the spec's 1MiB/256KiB inconsistency in favor of 256 KiB.
	FullTransferThreshold int64 `toml:"full_transfer_threshold"`

	// OOMGuardThreshold is the file size above which a fallback to the
	// in-memory full-transfer path is refused outright (§4.9, ~100 MiB).
	OOMGuardThreshold int64 `toml:"oom_guard_threshold"`

	// MaxChunkUploadConcurrency and MaxChunkDownloadConcurrency bound
	// in-flight chunk transfers (§5, ≤4 each).
	MaxChunkUploadConcurrency   int `toml:"max_chunk_upload_concurrency"`
	MaxChunkDownloadConcurrency int `toml:"max_chunk_download_concurrency"`

	// MaxSessionConcurrency bounds per-file execution within one session
	// (§4.8, §5, ≤8).
	MaxSessionConcurrency int `toml:"max_session_concurrency"`

	// MaxScanConcurrency bounds full-scan hashing concurrency (§5, ≤8).
	MaxScanConcurrency int `toml:"max_scan_concurrency"`

	// HashYieldEvery is how many files the full-scan hasher processes
	// before yielding to the scheduler (§5, ~50).
	HashYieldEvery int `toml:"hash_yield_every"`

	// RPCTimeout bounds a single RPC round-trip (§5, 90-180s depending on
	// payload; callers may scale this up for chunk-heavy requests).
	RPCTimeout time.Duration `toml:"rpc_timeout"`

	// RPCMaxRetries bounds transient-error retries per RPC (§5, 3).
	RPCMaxRetries int `toml:"rpc_max_retries"`

	// BandwidthLimit caps aggregate transfer throughput across all concurrent
	// uploads/downloads, e.g. "5MB/s". "0" or empty means unlimited.
	BandwidthLimit string `toml:"bandwidth_limit"`
}

// Config is the top-level on-disk configuration: process tunables plus a
// set of sync folders, keyed by folder ID, and a set of dialable peers,
// keyed by peer ID.
type Config struct {
	Tunables
	Folders map[string]*SyncFolder `toml:"-"`
	Peers   map[string]*PeerConfig `toml:"-"`
}
