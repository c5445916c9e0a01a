package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRenames_MatchWithinWindow(t *testing.T) {
	p := newPendingRenames()
	now := time.Now()

	p.Add("old.txt", "hash1", 10, false, now)

	oldPath, ok := p.MatchAndRemove("hash1", now.Add(time.Second), 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, "old.txt", oldPath)

	_, ok = p.MatchAndRemove("hash1", now, 5*time.Second)
	assert.False(t, ok, "entry was removed on first match")
}

func TestPendingRenames_NoMatchOutsideWindow(t *testing.T) {
	p := newPendingRenames()
	now := time.Now()

	p.Add("old.txt", "hash1", 10, false, now)

	_, ok := p.MatchAndRemove("hash1", now.Add(10*time.Second), 5*time.Second)
	assert.False(t, ok)
}

func TestPendingRenames_SweepPromotesExpired(t *testing.T) {
	p := newPendingRenames()
	now := time.Now()

	p.Add("old.txt", "hash1", 10, false, now.Add(-10*time.Second))
	p.Add("fresh.txt", "hash2", 5, false, now)

	expired := p.Sweep(now, 5*time.Second)
	require.Len(t, expired, 1)
	assert.Equal(t, "old.txt", expired[0].Path)

	_, ok := p.MatchAndRemove("hash2", now, 5*time.Second)
	assert.True(t, ok, "non-expired entry must remain after sweep")
}
