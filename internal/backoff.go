package internal

import "time"

// BackoffFlags selects the maximum wait a [Backoff] will grow to, matching
// the two admission gates the sender polls against: the packet-count gate
// (tight, ~1ms) and the flow-control gate (looser, ~10ms).
type BackoffFlags uint8

const (
	BackoffPacketGate BackoffFlags = 1 << iota
	BackoffFlowGate
)

const backoffMinWait = 100 * time.Microsecond

func backoffMaxWait(flags BackoffFlags) time.Duration {
	switch {
	case flags&BackoffFlowGate != 0:
		return 10 * time.Millisecond
	case flags&BackoffPacketGate != 0:
		return 1 * time.Millisecond
	default:
		return time.Millisecond
	}
}

// NewBackoff returns a Backoff ready for use, growing up to the ceiling
// implied by flags.
func NewBackoff(flags BackoffFlags) Backoff {
	return Backoff{
		wait:      uint32(backoffMinWait),
		maxWait:   uint32(backoffMaxWait(flags)),
		startWait: uint32(backoffMinWait),
	}
}

// Backoff implements a small exponential backoff used by the sender to yield
// the goroutine while an admission gate (window full, flow-control credit
// exhausted) is closed, instead of busy-polling.
type Backoff struct {
	wait      uint32
	maxWait   uint32
	startWait uint32
}

// Reset sets the Backoff's wait back to its starting value. Call this once
// the gate that triggered backoff opens again.
func (b *Backoff) Reset() {
	b.wait = b.startWait
}

// Wait sleeps for the current backoff duration and grows it exponentially,
// saturating at maxWait.
func (b *Backoff) Wait() {
	if b.maxWait == 0 {
		panic("internal: zero-value Backoff used, call NewBackoff")
	}
	time.Sleep(time.Duration(b.wait))
	b.wait *= 2
	if b.wait > b.maxWait {
		b.wait = b.maxWait
	}
}
