package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// appendSessionLog appends report's JSON rendering as one line to
// config.AppPaths.SyncLogPath (spec §6 "append-only session logs"). Called
// for every completed session regardless of success, so failures are
// visible in the log too (sessionLogEntry.Error is set from report.Err).
func (o *Orchestrator) appendSessionLog(report *Report) error {
	if report == nil {
		return nil
	}

	path := o.paths.SyncLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("session: creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("session: opening session log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)

	return enc.Encode(newSessionLogEntry(report))
}
