package rudp

// maxWindow is the largest value an advertised window can legally take. The
// wire format and Segment.WND's uint16 type already constrain Window to 16
// bits, so the check against it cannot fail today — the same redundant
// belt-and-suspenders validation the teacher applies to values a narrower
// type already bounds, kept in case the wire representation ever widens.
const maxWindow = 1<<16 - 1

// inReceiveWindow reports whether seq falls within the span the receive
// buffer can still stage relative to the next expected byte: the out-of-order
// staging buffer exists to smooth over reordering, not to let a peer push an
// unbounded amount of future data ahead of what the local side can hold.
func (cb *ControlBlock) inReceiveWindow(seq uint32) bool {
	span := cb.rcv.bufferSize - cb.rcv.bufferUsed
	return seq-cb.rcv.NXT < span
}

// admitSegment validates an arriving segment against the connection's
// current sequence-space window before it is folded into sender or receiver
// state. A non-nil *RejectError means the segment must be dropped silently;
// the protocol relies on retransmission, not a rejection reply, to recover.
func (cb *ControlBlock) admitSegment(seg Segment) error {
	if uint32(seg.WND) > maxWindow {
		return errWindowOverflow
	}
	if seg.Flags.HasAny(FlagACK) && seqLess(cb.snd.NXT, seg.ACK) {
		return errAckNotInWindow
	}
	if seg.Flags.HasAny(FlagSYN) && !cb.state.IsPreestablished() {
		return errUnexpectedSYN
	}
	if seg.Flags.HasAny(FlagFIN) && seg.SEQ != cb.rcv.NXT {
		return errRequireSequential
	}
	if seg.DataLen() > 0 && seqLess(cb.rcv.NXT, seg.SEQ) && !cb.inReceiveWindow(seg.SEQ) {
		return errSeqNotInWindow
	}
	return nil
}

// admitHandshakeAck validates the ACK segment closing a three-way open
// against the ISS this side is waiting to have acknowledged.
func admitHandshakeAck(seg Segment, wantAck uint32) error {
	if !seg.Flags.HasAny(FlagACK) || seg.ACK != wantAck {
		return errBadHandshakeAck
	}
	return nil
}
