package rudp

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"

	"github.com/soypat/rudp/internal"
)

var isnState uint32

func init() {
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing at process start is effectively unrecoverable;
		// fall back to a fixed odd constant rather than panicking on import.
		binary.BigEndian.PutUint32(seed[:], 0x9E3779B9)
	}
	v := binary.BigEndian.Uint32(seed[:])
	if v == 0 {
		v = 1
	}
	atomic.StoreUint32(&isnState, v)
}

// nextISN returns the next pseudo-random initial sequence number, advancing
// a process-lifetime xorshift generator seeded once from crypto/rand at
// package init. Reseeding from an entropy source on every call, as a naive
// implementation might, produces poor randomness; the generator must keep
// its state alive across calls instead.
func nextISN() uint32 {
	for {
		old := atomic.LoadUint32(&isnState)
		next := internal.Prand32(old)
		if atomic.CompareAndSwapUint32(&isnState, old, next) {
			return next
		}
	}
}
