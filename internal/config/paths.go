package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "foldersync"

// Config file name.
const configFileName = "config.toml"

// blockHashPrefixLen is the number of leading hex characters of a block
// hash used as the sharding directory component under <appdata>/blocks/.
const blockHashPrefixLen = 2

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/foldersync).
// On macOS, uses ~/Library/Application Support/foldersync per Apple guidelines.
// Other platforms fall back to ~/.config/foldersync.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxConfigDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// linuxConfigDir returns the XDG-compliant config directory for Linux.
func linuxConfigDir(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the platform-specific directory for application
// data: folder configs, state snapshots, clock databases, block store, and
// logs (spec §6 "Persisted state"). On Linux, respects XDG_DATA_HOME
// (defaults to ~/.local/share/foldersync). On macOS, uses
// ~/Library/Application Support/foldersync.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDataDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// linuxDataDir returns the XDG-compliant data directory for Linux.
func linuxDataDir(home string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".local", "share", appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// AppPaths resolves the on-disk layout rooted at a data directory, exactly
// as enumerated in spec §6 "Persisted state".
type AppPaths struct {
	root string
}

// NewAppPaths creates an AppPaths rooted at dataDir. Pass DefaultDataDir()
// for the platform default, or an arbitrary directory in tests.
func NewAppPaths(dataDir string) AppPaths {
	return AppPaths{root: dataDir}
}

// Root returns the application data directory.
func (p AppPaths) Root() string { return p.root }

// FolderConfigPath returns <appdata>/folders/<folderID>.json.
func (p AppPaths) FolderConfigPath(folderID string) string {
	return filepath.Join(p.root, "folders", folderID+".json")
}

// StateDir returns <appdata>/state/<syncID>/.
func (p AppPaths) StateDir(syncID string) string {
	return filepath.Join(p.root, "state", syncID)
}

// SnapshotPath returns <appdata>/state/<syncID>/snapshot.json.
func (p AppPaths) SnapshotPath(syncID string) string {
	return filepath.Join(p.StateDir(syncID), "snapshot.json")
}

// TombstonesPath returns <appdata>/state/<syncID>/tombstones.json.
func (p AppPaths) TombstonesPath(syncID string) string {
	return filepath.Join(p.StateDir(syncID), "tombstones.json")
}

// ClockDBPath returns <appdata>/clocks/<folderID>.db.
func (p AppPaths) ClockDBPath(folderID string) string {
	return filepath.Join(p.root, "clocks", folderID+".db")
}

// BlocksDir returns <appdata>/blocks/.
func (p AppPaths) BlocksDir() string {
	return filepath.Join(p.root, "blocks")
}

// BlockPath returns <appdata>/blocks/<first2-of-hash>/<hash>.
func (p AppPaths) BlockPath(hash string) string {
	prefix := hash
	if len(prefix) > blockHashPrefixLen {
		prefix = prefix[:blockHashPrefixLen]
	}

	return filepath.Join(p.BlocksDir(), prefix, hash)
}

// LogsDir returns <appdata>/logs/.
func (p AppPaths) LogsDir() string {
	return filepath.Join(p.root, "logs")
}

// SyncLogPath returns <appdata>/logs/sync.log.
func (p AppPaths) SyncLogPath() string {
	return filepath.Join(p.LogsDir(), "sync.log")
}

// ConflictsLogPath returns <appdata>/logs/conflicts.log, the append-only
// JSONL record of every conflict artifact written (spec §6 "additionally
// recorded in an append-only conflicts log").
func (p AppPaths) ConflictsLogPath() string {
	return filepath.Join(p.LogsDir(), "conflicts.log")
}
