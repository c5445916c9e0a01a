package detector

import (
	"errors"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrOutsideFolder is returned when an event's absolute path does not fall
// under the folder root.
var ErrOutsideFolder = errors.New("detector: path outside folder root")

// canonicalPath resolves absPath (a filesystem path under root) to the
// detector's logical relative-path form: forward slashes and NFC-normalized
// Unicode, so that visually identical names produced by different
// filesystems or input methods compare equal (spec §4.6 "Path
// canonicalization").
func canonicalPath(root, absPath string) (string, error) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", ErrOutsideFolder
	}

	if rel == "." || strings.HasPrefix(rel, "..") {
		return "", ErrOutsideFolder
	}

	return norm.NFC.String(filepath.ToSlash(rel)), nil
}
