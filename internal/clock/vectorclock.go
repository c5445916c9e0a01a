// Package clock implements the causal VectorClock type and the Causal Clock
// Manager (spec §3, §4.3): a small SQLite-backed key-value store of
// per-(folder, syncID, path) vector clocks, grounded on the teacher's
// internal/sync/state.go SQLite-embedding idiom (WAL mode, prepared
// statements, small per-entry critical sections) and on thistonyuncle-etcd's
// mvcc package for the "small critical section, batch at commit" discipline.
package clock

import "maps"

// VectorClock maps peer identifier to a monotonically increasing counter
// (spec §3). The zero value is the empty clock.
type VectorClock map[string]uint64

// Ordering is the three-valued (plus equal) result of comparing two clocks.
type Ordering int

// Ordering values (spec §3: "<", ">", "==", "concurrent").
const (
	Equal Ordering = iota
	Less
	Greater
	Concurrent
)

// Clone returns an independent copy of vc.
func (vc VectorClock) Clone() VectorClock {
	if vc == nil {
		return VectorClock{}
	}

	out := make(VectorClock, len(vc))
	maps.Copy(out, vc)

	return out
}

// Increment returns a copy of vc with peer's counter advanced by one.
func (vc VectorClock) Increment(peer string) VectorClock {
	out := vc.Clone()
	out[peer] = out[peer] + 1

	return out
}

// Merge returns the pointwise maximum of vc and other (spec §4.3).
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	out := vc.Clone()

	for peer, n := range other {
		if n > out[peer] {
			out[peer] = n
		}
	}

	return out
}

// Equal reports whether vc and other have identical entries (spec §3:
// "two clocks are equal only if identical").
func (vc VectorClock) Equal(other VectorClock) bool {
	if len(vc) != len(other) {
		return false
	}

	for peer, n := range vc {
		if other[peer] != n {
			return false
		}
	}

	return true
}

// Compare returns the causal ordering of vc relative to other (spec §3:
// "A < B iff every component A[p] <= B[p] and at least one strictly less").
func (vc VectorClock) Compare(other VectorClock) Ordering {
	if vc.Equal(other) {
		return Equal
	}

	lessOrEqual, strictlyLess := compareDirectional(vc, other)
	greaterOrEqual, strictlyGreater := compareDirectional(other, vc)

	switch {
	case lessOrEqual && strictlyLess:
		return Less
	case greaterOrEqual && strictlyGreater:
		return Greater
	default:
		return Concurrent
	}
}

// compareDirectional reports whether every entry of a is <= the
// corresponding entry of b, and whether at least one entry is strictly
// less (treating an absent peer as counter 0).
func compareDirectional(a, b VectorClock) (allLessOrEqual bool, anyStrictlyLess bool) {
	allLessOrEqual = true

	peers := make(map[string]struct{}, len(a)+len(b))
	for p := range a {
		peers[p] = struct{}{}
	}

	for p := range b {
		peers[p] = struct{}{}
	}

	for p := range peers {
		av, bv := a[p], b[p]
		if av > bv {
			allLessOrEqual = false
		}

		if av < bv {
			anyStrictlyLess = true
		}
	}

	return allLessOrEqual, anyStrictlyLess
}
