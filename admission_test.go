package rudp

import "testing"

func TestAdmitSegmentAckAheadOfSent(t *testing.T) {
	cb := newControlBlock(0, DefaultRecvBufferSize, 0)
	cb.state = StateEstablished
	cb.snd.NXT = 100
	cb.rcv.NXT = 0
	err := cb.admitSegment(Segment{Flags: FlagACK, ACK: 200})
	if err != errAckNotInWindow {
		t.Fatalf("admitSegment ack ahead of snd.NXT = %v, want errAckNotInWindow", err)
	}
}

func TestAdmitSegmentUnexpectedSYN(t *testing.T) {
	cb := newControlBlock(0, DefaultRecvBufferSize, 0)
	cb.state = StateEstablished
	err := cb.admitSegment(Segment{Flags: FlagSYN})
	if err != errUnexpectedSYN {
		t.Fatalf("admitSegment stray SYN = %v, want errUnexpectedSYN", err)
	}
}

func TestAdmitSegmentSYNAllowedPreestablished(t *testing.T) {
	cb := newControlBlock(0, DefaultRecvBufferSize, 0)
	cb.state = StateListen
	if err := cb.admitSegment(Segment{Flags: FlagSYN}); err != nil {
		t.Fatalf("admitSegment SYN in LISTEN = %v, want nil", err)
	}
}

func TestAdmitSegmentFINOutOfSequence(t *testing.T) {
	cb := newControlBlock(0, DefaultRecvBufferSize, 0)
	cb.state = StateEstablished
	cb.rcv.NXT = 50
	err := cb.admitSegment(Segment{Flags: FlagFIN, SEQ: 10})
	if err != errRequireSequential {
		t.Fatalf("admitSegment early FIN = %v, want errRequireSequential", err)
	}
	if err := cb.admitSegment(Segment{Flags: FlagFIN, SEQ: 50}); err != nil {
		t.Fatalf("admitSegment in-order FIN = %v, want nil", err)
	}
}

func TestAdmitSegmentDataOutsideReceiveWindow(t *testing.T) {
	cb := newControlBlock(0, 2*MSS, 0)
	cb.state = StateEstablished
	cb.rcv.NXT = 0
	cb.rcv.bufferUsed = 2 * MSS // buffer full, no span left to stage ahead.
	err := cb.admitSegment(Segment{SEQ: MSS, Payload: make([]byte, 1)})
	if err != errSeqNotInWindow {
		t.Fatalf("admitSegment data past free span = %v, want errSeqNotInWindow", err)
	}
}

func TestAdmitSegmentWindowOverflow(t *testing.T) {
	cb := newControlBlock(0, DefaultRecvBufferSize, 0)
	err := cb.admitSegment(Segment{WND: maxWindow})
	if err != nil {
		t.Fatalf("admitSegment at maxWindow = %v, want nil", err)
	}
}

func TestAdmitHandshakeAck(t *testing.T) {
	if err := admitHandshakeAck(Segment{Flags: FlagACK, ACK: 5}, 5); err != nil {
		t.Fatalf("admitHandshakeAck matching ack = %v, want nil", err)
	}
	if err := admitHandshakeAck(Segment{Flags: FlagACK, ACK: 6}, 5); err != errBadHandshakeAck {
		t.Fatalf("admitHandshakeAck mismatched ack = %v, want errBadHandshakeAck", err)
	}
	if err := admitHandshakeAck(Segment{ACK: 5}, 5); err != errBadHandshakeAck {
		t.Fatalf("admitHandshakeAck missing ACK flag = %v, want errBadHandshakeAck", err)
	}
}
