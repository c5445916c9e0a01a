package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRules_ExactSuffixDirAndSegment(t *testing.T) {
	r := NewRules([]string{
		"notes/draft.txt",
		"*.tmp",
		"build/",
		"node_modules",
	})

	assert.True(t, r.Match("notes/draft.txt"))
	assert.True(t, r.Match("scratch.tmp"))
	assert.True(t, r.Match("build/output.bin"))
	assert.True(t, r.Match("src/node_modules/pkg/index.js"))
	assert.False(t, r.Match("notes/final.txt"))
	assert.False(t, r.Match("src/main.go"))
}

func TestRules_AlwaysExcludesConflictArtifacts(t *testing.T) {
	r := NewRules(nil)

	assert.True(t, r.Match("report.conflict.ab12cd34.1735689600.txt"))
	assert.False(t, r.Match("report.txt"))
}

func TestRules_NilReceiverMatchesNothingExceptConflicts(t *testing.T) {
	var r *Rules

	assert.False(t, r.Match("anything.go"))
	assert.True(t, r.Match("a.conflict.deadbeef.123.go"))
}
