package detector

import (
	"sync"
	"time"
)

// pendingRename is a disappeared path awaiting either a matching create
// (promoted to a rename) or a sweep timeout (promoted to a delete).
type pendingRename struct {
	hash          string
	size          int64
	isDirectory   bool
	disappearedAt time.Time
}

// pendingRenames is the "pending-rename table" of spec §4.6, keyed by the
// path that disappeared.
type pendingRenames struct {
	mu      sync.Mutex
	entries map[string]pendingRename
}

func newPendingRenames() *pendingRenames {
	return &pendingRenames{entries: make(map[string]pendingRename)}
}

// Add records that oldPath disappeared with the given last-known hash.
func (p *pendingRenames) Add(oldPath, hash string, size int64, isDirectory bool, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries[oldPath] = pendingRename{hash: hash, size: size, isDirectory: isDirectory, disappearedAt: now}
}

// MatchAndRemove looks for a pending disappearance whose hash matches hash,
// within window of now. If found, it is removed and the old path returned.
func (p *pendingRenames) MatchAndRemove(hash string, now time.Time, window time.Duration) (oldPath string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for path, entry := range p.entries {
		if entry.hash != hash {
			continue
		}

		if now.Sub(entry.disappearedAt) > window {
			continue
		}

		delete(p.entries, path)

		return path, true
	}

	return "", false
}

// Remove drops oldPath's pending entry without matching it, used when the
// path is otherwise resolved (e.g. reappears identically).
func (p *pendingRenames) Remove(oldPath string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.entries, oldPath)
}

// Sweep promotes every entry older than window (relative to now) to a
// deletion, removing it from the table and returning the promoted paths
// with their last-known metadata.
func (p *pendingRenames) Sweep(now time.Time, window time.Duration) []struct {
	Path  string
	Entry pendingRename
} {
	p.mu.Lock()
	defer p.mu.Unlock()

	var expired []struct {
		Path  string
		Entry pendingRename
	}

	for path, entry := range p.entries {
		if now.Sub(entry.disappearedAt) > window {
			expired = append(expired, struct {
				Path  string
				Entry pendingRename
			}{Path: path, Entry: entry})

			delete(p.entries, path)
		}
	}

	return expired
}
