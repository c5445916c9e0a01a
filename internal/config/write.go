package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// configFilePermissions/configDirPermissions match the teacher's write.go
// conventions for config files.
const (
	configFilePermissions = 0o644
	configDirPermissions  = 0o755
)

// AppendFolderSection appends a new `[[folder]]` table to path, creating
// the file from scratch if it does not yet exist. The write is atomic
// (temp file + rename), mirroring the teacher's AppendDriveSection.
func AppendFolderSection(path string, f *SyncFolder) error {
	var content string

	if data, err := os.ReadFile(path); err == nil {
		content = string(data)
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	content += folderSection(f)

	return atomicWriteFile(path, []byte(content))
}

// folderSection renders one [[folder]] table.
func folderSection(f *SyncFolder) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n[[folder]]\nid = %q\nsync_id = %q\nlocal_path = %q\nmode = %q\n",
		f.ID, f.SyncID, f.LocalPath, string(f.Mode))

	if len(f.ExcludePatterns) > 0 {
		b.WriteString("exclude_patterns = [")

		for i, p := range f.ExcludePatterns {
			if i > 0 {
				b.WriteString(", ")
			}

			fmt.Fprintf(&b, "%q", p)
		}

		b.WriteString("]\n")
	}

	return b.String()
}

// AppendPeerSection appends a new `[[peer]]` table naming a dialable
// remote peer (spec §1 peer discovery/transport is a host concern; this
// is the host's own narrow address book, see PeerConfig).
func AppendPeerSection(path string, p *PeerConfig) error {
	var content string

	if data, err := os.ReadFile(path); err == nil {
		content = string(data)
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	content += fmt.Sprintf("\n[[peer]]\nid = %q\naddress = %q\n", p.ID, p.Address)

	return atomicWriteFile(path, []byte(content))
}

// SetFolderKey finds a `[[folder]]` table by its id field and sets key to
// value within that table. If key already exists its line is replaced; if
// not, the line is inserted immediately after the table header. Grounded
// on the teacher's SetDriveKey, adapted from `["id"]` single-key sections
// to `[[folder]]` array-of-tables blocks identified by an `id = "..."`
// line rather than by the header itself.
func SetFolderKey(path, folderID, key, value string) error {
	return setArrayTableKey(path, "folder", folderID, key, formatTOMLValue(value))
}

// DeleteFolderKey removes key from the `[[folder]]` table identified by
// folderID. Idempotent: no error if the key is already absent. Used by
// `resume` to clear `paused`/`paused_until`.
func DeleteFolderKey(path, folderID, key string) error {
	return deleteArrayTableKey(path, "folder", folderID, key)
}

// RemoveFolderSection deletes the entire `[[folder]]` table identified by
// folderID, used by `folder remove`. Grounded on the teacher's
// DeleteDriveSection, adapted to array-of-tables boundaries.
func RemoveFolderSection(path, folderID string) error {
	return removeArrayTable(path, "folder", folderID)
}

// RemovePeerSection deletes the entire `[[peer]]` table identified by
// peerID, used by `peer remove`.
func RemovePeerSection(path, peerID string) error {
	return removeArrayTable(path, "peer", peerID)
}

func removeArrayTable(path, tableName, id string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	lines := strings.Split(string(data), "\n")

	headerLine, contentStart := findArrayTable(lines, tableName, id)
	if contentStart < 0 {
		return fmt.Errorf("%s %q not found in config", tableName, id)
	}

	end := findArrayTableEnd(lines, contentStart)

	out := make([]string, 0, len(lines)-(end-headerLine))
	out = append(out, lines[:headerLine]...)
	out = append(out, lines[end:]...)

	return atomicWriteFile(path, []byte(strings.Join(out, "\n")))
}

// formatTOMLValue formats a value for TOML output: booleans are written
// bare, everything else quoted.
func formatTOMLValue(value string) string {
	if value == "true" || value == "false" {
		return value
	}

	return fmt.Sprintf("%q", value)
}

// arrayTableHeaderPrefix is the line prefix for any `[[...]]` array-of-
// tables header, used to detect table boundaries.
const arrayTableHeaderPrefix = "[["

// findArrayTable locates the `[[tableName]]` table whose body contains an
// `id = "id"` line, returning the header line index and the first content
// line index (header + 1). Returns -1, -1 if not found.
func findArrayTable(lines []string, tableName, id string) (int, int) {
	header := fmt.Sprintf("[[%s]]", tableName)
	idLine := fmt.Sprintf("id = %q", id)

	for i, line := range lines {
		if strings.TrimSpace(line) != header {
			continue
		}

		end := findArrayTableEnd(lines, i+1)
		for j := i + 1; j < end; j++ {
			if strings.TrimSpace(lines[j]) == idLine {
				return i, i + 1
			}
		}
	}

	return -1, -1
}

// findArrayTableEnd returns the index of the first line after a table's
// own content: the next `[` header (single- or array-table) or EOF.
func findArrayTableEnd(lines []string, start int) int {
	for i := start; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "[") {
			return i
		}
	}

	return len(lines)
}

func setArrayTableKey(path, tableName, id, key, formattedValue string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	lines := strings.Split(string(data), "\n")

	headerLine, contentStart := findArrayTable(lines, tableName, id)
	if contentStart < 0 {
		return fmt.Errorf("%s %q not found in config", tableName, id)
	}

	newLine := fmt.Sprintf("%s = %s", key, formattedValue)
	lines = setKeyInRange(lines, headerLine, contentStart, key, newLine)

	return atomicWriteFile(path, []byte(strings.Join(lines, "\n")))
}

func deleteArrayTableKey(path, tableName, id, key string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	lines := strings.Split(string(data), "\n")

	headerLine, contentStart := findArrayTable(lines, tableName, id)
	if contentStart < 0 {
		return fmt.Errorf("%s %q not found in config", tableName, id)
	}

	lines = deleteKeyInRange(lines, headerLine, key)

	return atomicWriteFile(path, []byte(strings.Join(lines, "\n")))
}

func setKeyInRange(lines []string, headerLine, contentStart int, key, newLine string) []string {
	end := findArrayTableEnd(lines, contentStart)
	keyPrefix := key + " "
	keyPrefixEq := key + "="

	for i := contentStart; i < end; i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, keyPrefix) || strings.HasPrefix(trimmed, keyPrefixEq) {
			lines[i] = newLine
			return lines
		}
	}

	inserted := make([]string, 0, len(lines)+1)
	inserted = append(inserted, lines[:headerLine+1]...)
	inserted = append(inserted, newLine)
	inserted = append(inserted, lines[headerLine+1:]...)

	return inserted
}

func deleteKeyInRange(lines []string, headerLine int, key string) []string {
	end := findArrayTableEnd(lines, headerLine+1)
	keyPrefix := key + " "
	keyPrefixEq := key + "="

	for i := headerLine + 1; i < end; i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, keyPrefix) || strings.HasPrefix(trimmed, keyPrefixEq) {
			return append(lines[:i], lines[i+1:]...)
		}
	}

	return lines
}

// atomicWriteFile writes data to a temp file in path's directory, then
// renames it into place, matching the durability idiom used throughout
// this codebase (blockstore.Put, state.writeJSONAtomic, conflict.WriteArtifact).
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmpName, configFilePermissions); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
