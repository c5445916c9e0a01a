package state

import "github.com/foldersync/foldersync/internal/clock"

// AcknowledgedByAllOnline implements spec §4.4's tombstone GC predicate: a
// tombstone is collectible once every peer currently listed as online has
// observed it, i.e. every online peer's clock is >= the tombstone's clock in
// every entry (it dominates or equals the tombstone's vector clock).
//
// An empty onlinePeerClocks set is conservatively treated as "nothing observed
// it yet" (no online peers to ask) and returns false, so tombstones are
// never collected while a folder has no known peer registry.
func AcknowledgedByAllOnline(dr DeletionRecord, onlinePeerClocks map[string]clock.VectorClock) bool {
	if len(onlinePeerClocks) == 0 {
		return false
	}

	for _, peerClock := range onlinePeerClocks {
		switch dr.VectorClock.Compare(peerClock) {
		case clock.Less, clock.Equal:
			// peer's clock dominates the tombstone's: acknowledged.
		default:
			return false
		}
	}

	return true
}
