package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorClock_Compare(t *testing.T) {
	a := VectorClock{"p1": 1, "p2": 1}
	b := VectorClock{"p1": 2, "p2": 1}

	assert.Equal(t, Less, a.Compare(b))
	assert.Equal(t, Greater, b.Compare(a))
	assert.Equal(t, Equal, a.Compare(a.Clone()))
}

func TestVectorClock_Concurrent(t *testing.T) {
	a := VectorClock{"p1": 2, "p2": 1}
	b := VectorClock{"p1": 1, "p2": 2}

	assert.Equal(t, Concurrent, a.Compare(b))
	assert.Equal(t, Concurrent, b.Compare(a))
}

func TestVectorClock_Merge(t *testing.T) {
	a := VectorClock{"p1": 2, "p2": 1}
	b := VectorClock{"p1": 1, "p2": 3, "p3": 5}

	merged := a.Merge(b)
	assert.Equal(t, VectorClock{"p1": 2, "p2": 3, "p3": 5}, merged)
}

func TestVectorClock_Increment(t *testing.T) {
	a := VectorClock{"p1": 1}
	b := a.Increment("p1")

	assert.Equal(t, uint64(1), a["p1"], "original clock must not mutate")
	assert.Equal(t, uint64(2), b["p1"])
}

func TestVectorClock_EmptyVsAbsent(t *testing.T) {
	var zero VectorClock

	other := VectorClock{"p1": 1}
	assert.Equal(t, Less, zero.Compare(other))
}

func TestVectorClock_MonotonicityNeverDecreases(t *testing.T) {
	vc := VectorClock{}
	for i := 0; i < 5; i++ {
		next := vc.Increment("p1")
		assert.GreaterOrEqual(t, next["p1"], vc["p1"])
		vc = next
	}

	assert.Equal(t, uint64(5), vc["p1"])
}
