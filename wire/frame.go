// Package wire implements the fixed 12-byte segment header used by the
// reliable datagram protocol: encoding/decoding, byte-order conversion and
// size-limit enforcement. It is the stateless codec layer (C1) the rest of
// the engine builds on, grounded on the accessor-over-a-buffer style of
// github.com/soypat/lneto's udp.Frame.
package wire

import (
	"encoding/binary"
	"errors"
)

const (
	// HeaderSize is the fixed size in bytes of a segment header.
	HeaderSize = 12
	// MaxPayload is the largest payload a single segment may carry.
	MaxPayload = 1024
	// MaxDatagram is the largest legal encoded datagram size.
	MaxDatagram = HeaderSize + MaxPayload
)

// Flag bits carried in the 16-bit Flags header field.
const (
	FlagSYN uint16 = 0x1
	FlagACK uint16 = 0x2
	FlagFIN uint16 = 0x4
	flagMask        = FlagSYN | FlagACK | FlagFIN
)

var (
	// ErrMalformed is returned by Decode when the datagram is shorter than
	// HeaderSize.
	ErrMalformed = errors.New("wire: malformed datagram (short header)")
	// ErrOversize is returned by Decode when the payload exceeds MaxPayload,
	// and by Encode when the caller supplies an oversize payload.
	ErrOversize = errors.New("wire: payload exceeds maximum segment size")
	// ErrShortBuffer is returned by Encode when dst cannot hold the encoded
	// datagram.
	ErrShortBuffer = errors.New("wire: destination buffer too small")
)

// Header is the decoded form of a segment's fixed fields.
type Header struct {
	Seq    uint32
	Ack    uint32
	Flags  uint16
	Window uint16
}

// HasAll reports whether all bits in mask are set in the header's flags.
func (h Header) HasAll(mask uint16) bool { return h.Flags&mask == mask }

// HasAny reports whether any bit in mask is set in the header's flags.
func (h Header) HasAny(mask uint16) bool { return h.Flags&mask != 0 }

// Frame is a zero-copy view over a caller-owned buffer containing an encoded
// segment. Callers must call ValidateSize (or go through Decode) before
// reading Payload to avoid an out-of-range panic.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as a Frame. An error is returned if buf is shorter than
// HeaderSize; header access on the returned Frame is then undefined (it may
// panic), so callers should check the error.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{buf: buf}, ErrMalformed
	}
	return Frame{buf: buf}, nil
}

// RawData returns the underlying buffer the Frame was created with.
func (f Frame) RawData() []byte { return f.buf }

// SEQ returns the header's sequence number.
func (f Frame) SEQ() uint32 { return binary.BigEndian.Uint32(f.buf[0:4]) }

// SetSEQ sets the header's sequence number.
func (f Frame) SetSEQ(seq uint32) { binary.BigEndian.PutUint32(f.buf[0:4], seq) }

// ACK returns the header's cumulative acknowledgment number.
func (f Frame) ACK() uint32 { return binary.BigEndian.Uint32(f.buf[4:8]) }

// SetACK sets the header's cumulative acknowledgment number.
func (f Frame) SetACK(ack uint32) { binary.BigEndian.PutUint32(f.buf[4:8], ack) }

// Flags returns the header's flag bitmask, masked to the bits this protocol
// defines.
func (f Frame) Flags() uint16 { return binary.BigEndian.Uint16(f.buf[8:10]) & flagMask }

// SetFlags sets the header's flag bitmask.
func (f Frame) SetFlags(flags uint16) { binary.BigEndian.PutUint16(f.buf[8:10], flags&flagMask) }

// Window returns the header's advertised receive window.
func (f Frame) Window() uint16 { return binary.BigEndian.Uint16(f.buf[10:12]) }

// SetWindow sets the header's advertised receive window.
func (f Frame) SetWindow(window uint16) { binary.BigEndian.PutUint16(f.buf[10:12], window) }

// Payload returns the bytes following the fixed header. Call ValidateSize
// first if the Frame's buffer size is not already known to be consistent.
func (f Frame) Payload() []byte { return f.buf[HeaderSize:] }

// ValidateSize reports whether the Frame's buffer is a legal encoded
// datagram: at least HeaderSize bytes and no more than MaxDatagram.
func (f Frame) ValidateSize() error {
	n := len(f.buf)
	if n < HeaderSize {
		return ErrMalformed
	}
	if n > MaxDatagram {
		return ErrOversize
	}
	return nil
}

// Header returns the Frame's header fields decoded into a Header value.
func (f Frame) Header() Header {
	return Header{Seq: f.SEQ(), Ack: f.ACK(), Flags: f.Flags(), Window: f.Window()}
}

// Encode writes hdr and payload into dst in wire format and returns the
// number of bytes written. dst must have length >= HeaderSize+len(payload).
func Encode(dst []byte, hdr Header, payload []byte) (int, error) {
	if len(payload) > MaxPayload {
		return 0, ErrOversize
	}
	n := HeaderSize + len(payload)
	if len(dst) < n {
		return 0, ErrShortBuffer
	}
	frm, err := NewFrame(dst[:n])
	if err != nil {
		return 0, err
	}
	frm.SetSEQ(hdr.Seq)
	frm.SetACK(hdr.Ack)
	frm.SetFlags(hdr.Flags)
	frm.SetWindow(hdr.Window)
	copy(frm.Payload(), payload)
	return n, nil
}

// Decode parses datagram into its Header and payload slice. The returned
// payload aliases datagram; callers that retain it past the lifetime of the
// receive buffer must copy it.
func Decode(datagram []byte) (Header, []byte, error) {
	frm, err := NewFrame(datagram)
	if err != nil {
		return Header{}, nil, err
	}
	if err := frm.ValidateSize(); err != nil {
		return Header{}, nil, err
	}
	return frm.Header(), frm.Payload(), nil
}
