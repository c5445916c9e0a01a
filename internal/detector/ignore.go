package detector

import (
	"strings"
)

// conflictArtifactMarker is the fixed substring the conflict writer
// (internal/conflict) stamps into generated filenames, e.g.
// "report.txt.conflict.ab12cd34.1735689600". The detector excludes its own
// artifacts unconditionally so they never feed back into the engine.
const conflictArtifactMarker = ".conflict."

// Rules is a gitignore-style matcher (spec §4.6 "Ignore rules"): exact
// path match, "*.ext" suffix match, "name/" directory match, and mid-path
// segment match. It is hand-rolled rather than built on an imported
// gitignore library: spec §4.6 pins exactly these four rule kinds, a
// narrower and more exact contract than general gitignore semantics would
// give, and the only gitignore-style import anywhere in the corpus
// (internal/sync/filter.go's github.com/sabhiram/go-gitignore) is not
// actually listed in the teacher's own go.mod/go.sum. See DESIGN.md.
type Rules struct {
	exact   map[string]struct{}
	suffix  []string
	dirs    map[string]struct{}
	segment map[string]struct{}
}

// NewRules compiles patterns into a Rules matcher. Each pattern is one of:
//   - an exact relative path ("notes/draft.txt")
//   - a "*.ext" suffix glob
//   - a "name/" trailing-slash directory name
//   - a bare segment name, matched against any path component
func NewRules(patterns []string) *Rules {
	r := &Rules{
		exact:   make(map[string]struct{}),
		dirs:    make(map[string]struct{}),
		segment: make(map[string]struct{}),
	}

	for _, p := range patterns {
		switch {
		case strings.HasSuffix(p, "/"):
			r.dirs[strings.TrimSuffix(p, "/")] = struct{}{}
		case strings.HasPrefix(p, "*."):
			r.suffix = append(r.suffix, strings.TrimPrefix(p, "*"))
		case strings.Contains(p, "/"):
			r.exact[p] = struct{}{}
		default:
			r.segment[p] = struct{}{}
		}
	}

	return r
}

// Match reports whether relPath (forward-slash separated, relative to the
// folder root) should be ignored.
func (r *Rules) Match(relPath string) bool {
	if strings.Contains(relPath, conflictArtifactMarker) {
		return true
	}

	if r == nil {
		return false
	}

	if _, ok := r.exact[relPath]; ok {
		return true
	}

	for _, suf := range r.suffix {
		if strings.HasSuffix(relPath, suf) {
			return true
		}
	}

	segments := strings.Split(relPath, "/")
	for i, seg := range segments {
		if _, ok := r.segment[seg]; ok {
			return true
		}

		if _, ok := r.dirs[seg]; ok && i < len(segments)-1 {
			return true
		}

		if _, ok := r.dirs[seg]; ok && i == len(segments)-1 {
			// A directory pattern also matches the directory entry itself.
			return true
		}
	}

	return false
}
