package nodestore

import (
	"encoding/binary"
	"sync"
)

// stripeCount fixes the width of the lock table. It is a compile-time
// constant (not derived from runtime load) so the store never needs to
// resize the table while operations are in flight.
const stripeCount = 256

// stripedLocks serializes refcount updates per digest (spec §5): "A per-key
// mutex, a striped lock table, or an atomic compare-and-swap on the encoded
// value all suffice." A fixed-size mutex table keyed by a prefix of the
// digest keeps memory bounded regardless of how many distinct digests the
// store has ever seen.
type stripedLocks struct {
	mus [stripeCount]sync.Mutex
}

func (l *stripedLocks) lock(digest []byte) func() {
	idx := stripeIndex(digest)
	l.mus[idx].Lock()
	return l.mus[idx].Unlock
}

func stripeIndex(digest []byte) uint64 {
	if len(digest) < 8 {
		var buf [8]byte
		copy(buf[:], digest)
		return binary.BigEndian.Uint64(buf[:]) % stripeCount
	}
	return binary.BigEndian.Uint64(digest[:8]) % stripeCount
}
