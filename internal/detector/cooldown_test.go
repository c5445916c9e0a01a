package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldowns_ActiveThenExpires(t *testing.T) {
	c := newCooldowns()
	now := time.Now()

	c.Arm("a.txt", now, 50*time.Millisecond)
	assert.True(t, c.Active("a.txt", now))
	assert.False(t, c.Active("a.txt", now.Add(100*time.Millisecond)))
}

func TestDedupTable_SuppressesSameHashWithinWindow(t *testing.T) {
	d := newDedupTable()
	now := time.Now()

	assert.False(t, d.Seen("a.txt", "h1", now, time.Second), "first observation is never a duplicate")
	assert.True(t, d.Seen("a.txt", "h1", now.Add(100*time.Millisecond), time.Second))
	assert.False(t, d.Seen("a.txt", "h2", now.Add(200*time.Millisecond), time.Second), "changed hash is not a duplicate")
}

func TestDedupTable_ForgetClearsEntry(t *testing.T) {
	d := newDedupTable()
	now := time.Now()

	d.Seen("a.txt", "h1", now, time.Second)
	d.Forget("a.txt")

	assert.False(t, d.Seen("a.txt", "h1", now.Add(10*time.Millisecond), time.Second))
}
