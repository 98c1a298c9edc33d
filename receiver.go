package rudp

// handleData folds an arriving data segment into the receive state. Any
// bytes that become in-order deliverable (the segment itself, plus any
// contiguous runs it unlocks in the out-of-order buffer) are returned for
// the caller to stage into its receive queue. The boolean result reports
// whether a cumulative ACK should be sent in response; zero-length segments
// are control segments handled by the state machine and never produce one
// from here.
func (cb *ControlBlock) handleData(seg Segment) (delivered []byte, ackNeeded bool) {
	if seg.DataLen() == 0 {
		return nil, false
	}
	switch {
	case seg.SEQ == cb.rcv.NXT:
		delivered = cb.deliverInOrder(seg)
	case seqLess(cb.rcv.NXT, seg.SEQ):
		cb.stageOutOfOrder(seg)
	default:
		// seq < recv.NXT: duplicate of already-delivered data, ignore.
	}
	return delivered, true
}

// deliverInOrder consumes seg and any now-contiguous out-of-order segments,
// advancing recv.NXT and the buffer accounting by the full length of
// everything consumed, and returns the concatenated bytes.
func (cb *ControlBlock) deliverInOrder(seg Segment) []byte {
	out := append([]byte(nil), seg.Payload...)
	cb.rcv.NXT += uint32(seg.DataLen())
	cb.charge(uint32(seg.DataLen()))

	for {
		idx, ok := cb.findOOOMatch(cb.rcv.NXT)
		if !ok {
			break
		}
		slot := &cb.rcv.ooo[idx]
		out = append(out, slot.data...)
		cb.rcv.NXT += uint32(len(slot.data))
		cb.charge(uint32(len(slot.data)))
		*slot = oooSlot{}
	}
	return out
}

func (cb *ControlBlock) findOOOMatch(seq uint32) (idx int, ok bool) {
	for i := range cb.rcv.ooo {
		if cb.rcv.ooo[i].used && cb.rcv.ooo[i].seq == seq {
			return i, true
		}
	}
	return 0, false
}

// stageOutOfOrder stores seg in a free out-of-order slot, or drops it
// silently if the staging buffer is full — silent loss relied on being
// recovered by the sender's retransmission timer.
func (cb *ControlBlock) stageOutOfOrder(seg Segment) {
	for i := range cb.rcv.ooo {
		if cb.rcv.ooo[i].used && cb.rcv.ooo[i].seq == seg.SEQ {
			return // already staged, duplicate arrival.
		}
	}
	for i := range cb.rcv.ooo {
		if !cb.rcv.ooo[i].used {
			data := append([]byte(nil), seg.Payload...)
			cb.rcv.ooo[i] = oooSlot{used: true, seq: seg.SEQ, data: data}
			return
		}
	}
	// No free slot: drop.
	cb.logDrop("DATA", seg.SEQ)
}

// makeAck builds the cumulative ACK segment sent in response to an arrival.
func (cb *ControlBlock) makeAck() Segment {
	return Segment{
		SEQ:   cb.snd.NXT,
		ACK:   cb.rcv.NXT,
		WND:   cb.advertise(),
		Flags: FlagACK,
	}
}
