package config

import "time"

// Default values for Tunables. Chosen from the figures the spec gives for
// each timing/concurrency parameter.
const (
	defaultStabilityWindow       = 3 * time.Second
	defaultSyncWriteCooldown     = 5 * time.Second
	defaultRenameDetectionWindow = 10 * time.Second
	defaultDedupWindow           = 2 * time.Second
	defaultSessionCooldown       = 30 * time.Second
	defaultTombstoneTTL          = 30 * 24 * time.Hour

	defaultFullTransferThreshold = 256 * 1024       // 256 KiB, see DESIGN.md Open Question #1.
	defaultOOMGuardThreshold     = 100 * 1024 * 1024 // ~100 MiB.

	defaultMaxChunkUploadConcurrency   = 4
	defaultMaxChunkDownloadConcurrency = 4
	defaultMaxSessionConcurrency       = 8
	defaultMaxScanConcurrency          = 8
	defaultHashYieldEvery              = 50

	defaultRPCTimeout    = 90 * time.Second
	defaultRPCMaxRetries = 3
)

// DefaultTunables returns the process-wide tunables with their spec-derived
// defaults.
func DefaultTunables() Tunables {
	return Tunables{
		StabilityWindow:             defaultStabilityWindow,
		SyncWriteCooldown:           defaultSyncWriteCooldown,
		RenameDetectionWindow:       defaultRenameDetectionWindow,
		DedupWindow:                 defaultDedupWindow,
		SessionCooldown:             defaultSessionCooldown,
		TombstoneTTL:                defaultTombstoneTTL,
		FullTransferThreshold:       defaultFullTransferThreshold,
		OOMGuardThreshold:           defaultOOMGuardThreshold,
		MaxChunkUploadConcurrency:   defaultMaxChunkUploadConcurrency,
		MaxChunkDownloadConcurrency: defaultMaxChunkDownloadConcurrency,
		MaxSessionConcurrency:       defaultMaxSessionConcurrency,
		MaxScanConcurrency:          defaultMaxScanConcurrency,
		HashYieldEvery:              defaultHashYieldEvery,
		RPCTimeout:                  defaultRPCTimeout,
		RPCMaxRetries:               defaultRPCMaxRetries,
	}
}

// DefaultConfig returns a Config populated with default tunables and no
// folders.
func DefaultConfig() *Config {
	return &Config{
		Tunables: DefaultTunables(),
		Folders:  make(map[string]*SyncFolder),
		Peers:    make(map[string]*PeerConfig),
	}
}
