package rudp

import (
	"math/bits"
	"strconv"

	"github.com/soypat/rudp/wire"
)

// Flags mirrors the three bits this protocol defines on the wire, reusing
// wire's bit values directly so no conversion is needed at the codec
// boundary.
type Flags uint16

const (
	FlagSYN Flags = Flags(wire.FlagSYN)
	FlagACK Flags = Flags(wire.FlagACK)
	FlagFIN Flags = Flags(wire.FlagFIN)
)

const synack = FlagSYN | FlagACK
const finack = FlagFIN | FlagACK

// HasAll reports whether all bits in mask are set.
func (f Flags) HasAll(mask Flags) bool { return f&mask == mask }

// HasAny reports whether any bit in mask is set.
func (f Flags) HasAny(mask Flags) bool { return f&mask != 0 }

// String returns a human readable flag string, e.g. "[SYN,ACK]".
func (f Flags) String() string {
	switch f {
	case 0:
		return "[]"
	case synack:
		return "[SYN,ACK]"
	case finack:
		return "[FIN,ACK]"
	case FlagACK:
		return "[ACK]"
	case FlagSYN:
		return "[SYN]"
	case FlagFIN:
		return "[FIN]"
	}
	buf := make([]byte, 0, 2+4*bits.OnesCount16(uint16(f)))
	buf = append(buf, '[')
	buf = f.AppendFormat(buf)
	buf = append(buf, ']')
	return string(buf)
}

// AppendFormat appends a human readable flag string to b.
func (f Flags) AppendFormat(b []byte) []byte {
	if f == 0 {
		return b
	}
	const flaglen = 3
	const strflags = "SYNACKFIN"
	var addcomma bool
	for bit := Flags(1); f != 0; bit <<= 1 {
		if f&bit == 0 {
			continue
		}
		i := bits.TrailingZeros16(uint16(bit))
		if addcomma {
			b = append(b, ',')
		} else {
			addcomma = true
		}
		b = append(b, strflags[i*flaglen:i*flaglen+flaglen]...)
		f &= ^bit
	}
	return b
}

// State enumerates the eleven states a connection progresses through.
type State uint8

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	case StateTimeWait:
		return "TIME_WAIT"
	default:
		return "STATE(" + strconv.Itoa(int(s)) + ")"
	}
}

// IsPreestablished reports whether s precedes ESTABLISHED in the open
// handshake.
func (s State) IsPreestablished() bool {
	return s == StateListen || s == StateSynSent || s == StateSynReceived
}

// IsClosing reports whether s belongs to the close handshake (but is not yet
// fully terminated).
func (s State) IsClosing() bool {
	return s == StateFinWait1 || s == StateFinWait2 || s == StateCloseWait ||
		s == StateClosing || s == StateLastAck
}

// IsClosed reports whether the connection has been fully torn down.
func (s State) IsClosed() bool {
	return s == StateClosed || s == StateTimeWait
}

// IsEstablished reports whether data-transfer operations are permitted:
// ESTABLISHED proper, or CLOSE_WAIT where the local side may still send
// after having received (but not yet acted on) a peer FIN.
func (s State) IsEstablished() bool {
	return s == StateEstablished || s == StateCloseWait
}

// Segment is a decoded packet together with its payload, the in-memory
// counterpart of wire.Header plus the bytes wire.Decode aliased off the
// receive buffer.
type Segment struct {
	SEQ     uint32
	ACK     uint32
	WND     uint16
	Flags   Flags
	Payload []byte
}

// DataLen returns the number of payload bytes the segment carries.
func (seg *Segment) DataLen() int { return len(seg.Payload) }

// Len returns the number of sequence numbers the segment consumes: payload
// length, plus one each for SYN and FIN (which occupy a sequence number but
// carry no data in this protocol).
func (seg *Segment) Len() uint32 {
	n := uint32(len(seg.Payload))
	if seg.Flags.HasAny(FlagSYN) {
		n++
	}
	if seg.Flags.HasAny(FlagFIN) {
		n++
	}
	return n
}

// End returns the sequence number one past the segment's last occupied
// sequence number.
func (seg *Segment) End() uint32 { return seg.SEQ + seg.Len() }

func segmentFromHeader(hdr wire.Header, payload []byte) Segment {
	return Segment{
		SEQ:     hdr.Seq,
		ACK:     hdr.Ack,
		WND:     hdr.Window,
		Flags:   Flags(hdr.Flags),
		Payload: payload,
	}
}

func (seg *Segment) header() wire.Header {
	return wire.Header{Seq: seg.SEQ, Ack: seg.ACK, Flags: uint16(seg.Flags), Window: seg.WND}
}

// seqLess reports whether a comes strictly before b in the 32-bit sequence
// space, accounting for wraparound via a signed delta, per spec.md's
// wrap-safe comparison note even though wraparound is not exercised within a
// single connection's lifetime.
func seqLess(a, b uint32) bool { return int32(a-b) < 0 }

// seqLessEq reports whether a comes at or before b in the sequence space.
func seqLessEq(a, b uint32) bool { return a == b || seqLess(a, b) }
