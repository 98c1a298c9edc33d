package rudp

import (
	"time"

	"github.com/soypat/rudp/metrics"
)

// makeDataSegment builds the next outgoing data segment for payload,
// piggybacking the current cumulative ACK and advertised window but not yet
// registering it in the send window or advancing sequence counters — that
// happens in onEmit once the caller has actually transmitted it.
func (cb *ControlBlock) makeDataSegment(payload []byte) Segment {
	return Segment{
		SEQ:     cb.snd.NXT,
		ACK:     cb.rcv.NXT,
		WND:     cb.advertise(),
		Flags:   0,
		Payload: payload,
	}
}

// onEmit registers seg as freshly transmitted: inserts it into the send
// window ring, advances send_seq and last_byte_sent by its length.
func (cb *ControlBlock) onEmit(seg Segment, now time.Time) {
	idx := (cb.snd.windowStart + cb.snd.windowCount) % W
	cb.snd.window[idx] = sendWindowEntry{seg: seg, sentAt: now}
	cb.snd.windowCount++
	n := uint32(seg.DataLen())
	cb.snd.NXT += n
	cb.snd.lastByteSent += n
	metrics.SendWindowOccupancy.Observe(float64(cb.snd.windowCount))
}

// handleAck folds an incoming ACK into the send state: updates the peer's
// advertised window unconditionally, advances last_byte_acked if the
// cumulative value progresses, and retires any send-window entries now
// fully covered. It never regresses send_base: an ACK at or below the
// current base is a no-op over the window walk.
func (cb *ControlBlock) handleAck(seg Segment, now time.Time) {
	cb.snd.peerWindow = seg.WND
	if seqLess(cb.snd.lastByteAcked, seg.ACK) {
		cb.snd.lastByteAcked = seg.ACK
	}
	for cb.snd.windowCount > 0 {
		entry := &cb.snd.window[cb.snd.windowStart]
		end := entry.seg.SEQ + uint32(entry.seg.DataLen())
		if !seqLessEq(end, seg.ACK) {
			break
		}
		metrics.RoundTripLatency.Observe(now.Sub(entry.sentAt).Seconds())
		entry.acked = true
		cb.snd.UNA = end
		cb.snd.windowStart = (cb.snd.windowStart + 1) % W
		cb.snd.windowCount--
	}
}

// dueRetransmit holds one send-window entry whose RTO has elapsed and needs
// to go back out on the wire.
type dueRetransmit struct {
	seg     Segment
	retries int
}

// scanRetransmits walks the in-flight window looking for entries whose age
// has reached RTO. Entries at MaxRetries are reported via exhausted instead
// of being retransmitted again; the caller must treat that as fatal.
func (cb *ControlBlock) scanRetransmits(now time.Time) (due []dueRetransmit, exhaustedSeq uint32, exhausted bool) {
	for i := 0; i < cb.snd.windowCount; i++ {
		idx := (cb.snd.windowStart + i) % W
		entry := &cb.snd.window[idx]
		if entry.acked {
			continue
		}
		if now.Sub(entry.sentAt) < RTO {
			continue
		}
		if entry.retries >= MaxRetries {
			return due, entry.seg.SEQ, true
		}
		entry.retries++
		entry.sentAt = now
		due = append(due, dueRetransmit{seg: entry.seg, retries: entry.retries})
	}
	return due, 0, false
}

// drained reports whether every in-flight segment has been acknowledged,
// the condition send() waits for after emitting all application bytes.
func (cb *ControlBlock) drained() bool { return cb.snd.windowCount == 0 }
