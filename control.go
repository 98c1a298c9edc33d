package rudp

import (
	"log/slog"
	"time"
)

// Protocol-wide constants, all named directly from the specification they
// implement.
const (
	// MSS is the maximum segment size: the largest payload a single segment
	// may carry, and the floor below which the advertised window never
	// drops.
	MSS = 1024
	// W is the fixed capacity of both the sender's in-flight window and the
	// receiver's out-of-order staging buffer.
	W = 10
	// RTO is the fixed retransmission timeout. There is no RTT estimator.
	RTO = 500 * time.Millisecond
	// MaxRetries is the number of retransmissions tolerated for a single
	// segment before the connection reports an unrecoverable error.
	MaxRetries = 5
	// DefaultRecvBufferSize is the receive-buffer accounting ceiling used
	// when a Conn is not configured with a different value.
	DefaultRecvBufferSize = 32 * 1024
	// closeWaitMax bounds the close handshake's loop, since the spec's
	// simplified four-way close has no FIN retransmission and would
	// otherwise wait forever for a lost final ACK.
	closeWaitMax = MaxRetries * RTO
)

// sendWindowEntry is one slot in the sender's fixed ring of unacknowledged
// segments.
type sendWindowEntry struct {
	seg     Segment
	sentAt  time.Time
	retries int
	acked   bool
}

// oooSlot is one slot in the receiver's out-of-order staging buffer.
type oooSlot struct {
	used bool
	seq  uint32
	data []byte
}

// sendSpace holds the Send Sequence Space: sequence numbers corresponding to
// locally originated data.
//
//	     1         2          3
//	----------|----------|----------
//	       UNA        NXT
//	1. old sequence numbers already acknowledged
//	2. sequence numbers of unacknowledged data in flight
//	3. sequence numbers allowed for new data transmission
type sendSpace struct {
	ISS           uint32 // initial send sequence number chosen at Open.
	UNA           uint32 // send_base: oldest unacknowledged sequence number.
	NXT           uint32 // send_seq: next sequence number to stamp.
	lastByteSent  uint32
	lastByteAcked uint32
	peerWindow    uint16
	window        [W]sendWindowEntry
	windowStart   int
	windowCount   int
}

// recvSpace holds the Receive Sequence Space: sequence numbers corresponding
// to remotely originated data.
type recvSpace struct {
	IRS            uint32 // initial receive sequence number observed on the peer's SYN.
	NXT            uint32 // recv_seq: next in-order sequence number expected.
	bufferSize     uint32
	bufferUsed     uint32
	ooo            [W]oooSlot
	lastAdvertised uint16
}

// ControlBlock implements the connection state machine (C3), the sender and
// receiver halves of the reliable byte stream (C4), and flow-control
// accounting (C5). A zero-value ControlBlock is in StateClosed; use
// newControlBlock to initialize one ready for Open or Listen.
type ControlBlock struct {
	state    State
	snd      sendSpace
	rcv      recvSpace
	lossRate float64
	log      *slog.Logger
}

func newControlBlock(iss uint32, recvBufferSize uint32, lossRate float64) ControlBlock {
	if recvBufferSize == 0 {
		recvBufferSize = DefaultRecvBufferSize
	}
	return ControlBlock{
		state: StateClosed,
		snd: sendSpace{
			ISS: iss,
			UNA: iss,
			NXT: iss,
		},
		rcv: recvSpace{
			bufferSize: recvBufferSize,
		},
		lossRate: lossRate,
	}
}

// State returns the connection's current state.
func (cb *ControlBlock) State() State { return cb.state }

// SetLogger attaches a logger used for debug/trace output. A nil logger
// disables logging.
func (cb *ControlBlock) SetLogger(log *slog.Logger) { cb.log = log }

// RecvNext returns the next in-order sequence number expected from the peer.
func (cb *ControlBlock) RecvNext() uint32 { return cb.rcv.NXT }

// SendNext returns the next sequence number to be stamped on outgoing data.
func (cb *ControlBlock) SendNext() uint32 { return cb.snd.NXT }

// InFlight returns the number of bytes sent but not yet cumulatively
// acknowledged.
func (cb *ControlBlock) InFlight() uint32 {
	if cb.snd.lastByteAcked > cb.snd.lastByteSent {
		return 0 // clamp against reordered ACKs inverting the counters.
	}
	return cb.snd.lastByteSent - cb.snd.lastByteAcked
}
