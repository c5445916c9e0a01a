package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// tomlFolder mirrors SyncFolder's on-disk shape as a TOML array-of-tables
// entry (`[[folder]]`); ID is decoded from the table itself rather than
// from the field name, unlike the teacher's "type:email" keyed sections,
// since a folder set needs no secondary dimension beyond its own ID.
type tomlFolder struct {
	ID              string   `toml:"id"`
	SyncID          string   `toml:"sync_id"`
	LocalPath       string   `toml:"local_path"`
	Mode            string   `toml:"mode"`
	ExcludePatterns []string `toml:"exclude_patterns"`
	Paused          bool     `toml:"paused"`
	PausedUntil     string   `toml:"paused_until"`
}

// tomlPeer mirrors PeerConfig's on-disk shape as a `[[peer]]` entry.
type tomlPeer struct {
	ID      string `toml:"id"`
	Address string `toml:"address"`
}

// tomlDocument is the root decode target: flat tunables plus a folder list
// and a peer address book.
type tomlDocument struct {
	Tunables
	Folder []tomlFolder `toml:"folder"`
	Peer   []tomlPeer   `toml:"peer"`
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unset tunables keep DefaultTunables' values because the
// decode target is seeded from DefaultTunables before decoding, the same
// "decode onto defaults" idiom the teacher uses.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("loading config file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	doc := tomlDocument{Tunables: DefaultTunables()}

	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg := &Config{
		Tunables: doc.Tunables,
		Folders:  make(map[string]*SyncFolder, len(doc.Folder)),
		Peers:    make(map[string]*PeerConfig, len(doc.Peer)),
	}

	for _, tf := range doc.Folder {
		id := tf.ID
		if id == "" {
			id = uuid.NewString()
		}

		cfg.Folders[id] = &SyncFolder{
			ID:              id,
			SyncID:          tf.SyncID,
			LocalPath:       tf.LocalPath,
			Mode:            SyncMode(tf.Mode),
			ExcludePatterns: tf.ExcludePatterns,
			Paused:          tf.Paused,
			PausedUntil:     tf.PausedUntil,
		}
	}

	for _, tp := range doc.Peer {
		if tp.ID == "" {
			continue
		}

		cfg.Peers[tp.ID] = &PeerConfig{ID: tp.ID, Address: tp.Address}
	}

	if err := ValidateFolders(cfg.Folders); err != nil {
		return nil, err
	}

	if err := ValidatePeers(cfg.Peers); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists, otherwise returns DefaultConfig.
// Used by commands that must run before any folder has been configured
// (e.g. `folder add` creating the file for the first time).
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}

		return nil, fmt.Errorf("checking config file %s: %w", path, err)
	}

	return Load(path, logger)
}
