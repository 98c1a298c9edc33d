package internal

import (
	"errors"
	"io"
)

var (
	errRingBufferFull = errors.New("rudp/ring: buffer full")
	errRingNoData     = errors.New("rudp/ring: empty write")
)

// Ring is a fixed-capacity byte ring buffer. A Conn uses one as its receive
// queue, decoupling segment arrival (which may deliver an arbitrary run of
// reassembled bytes at once) from the caller's Recv buffer size.
type Ring struct {
	// Buf backs the ring. Its capacity is unused; only len(Buf) matters.
	// There is no readable data when End==0.
	Buf []byte
	// Off indexes into Buf at the start of readable data.
	// If Off==End and End!=0 the buffer is full and data begins at Off.
	Off int
	// End indexes into Buf one past the end of readable data.
	// End==0 means the buffer is empty.
	End int
}

// Write appends data to the ring buffer that can then be read back in order
// with Read. An error is returned if b is larger than the free space.
func (r *Ring) Write(b []byte) (int, error) {
	if r.isFull() || len(b) > r.Free() {
		return 0, errRingBufferFull
	} else if len(b) == 0 {
		return 0, errRingNoData
	}
	midFree := r.midFree()
	if midFree > 0 {
		// start     end       off    len(buf)
		//   |  used  |  mfree  |  used  |
		n := copy(r.Buf[r.End:r.Off], b)
		r.End += n
		return n, nil
	} else if r.End == 0 {
		r.End = r.Off
	}
	// start       off       end      len(buf)
	//   |  sfree   |  used   |  efree   |
	n := copy(r.Buf[r.End:], b)
	r.End += n
	if n < len(b) {
		n2 := copy(r.Buf, b[n:])
		r.End = n2
		n += n2
	}
	return n, nil
}

// ReadDiscard advances the read pointer n bytes without copying, for callers
// that already know the buffered bytes were consumed by some other path.
func (r *Ring) ReadDiscard(n int) error {
	if n <= 0 {
		return errors.New("invalid discard amount")
	}
	buffered := r.Buffered()
	switch {
	case n > buffered:
		return errors.New("discard exceeds length")
	case n == buffered:
		r.Reset()
	case n+r.Off > len(r.Buf):
		r.Off = n - (len(r.Buf) - r.Off)
	default:
		r.Off += n
	}
	return nil
}

// Read reads up to len(b) bytes from the ring buffer and advances the read
// pointer. Returns io.EOF when no data is available.
func (r *Ring) Read(b []byte) (int, error) {
	if r.Buffered() == 0 {
		return 0, io.EOF
	}
	var n int
	if r.End > r.Off {
		n = copy(b, r.Buf[r.Off:r.End])
	} else {
		n = copy(b, r.Buf[r.Off:])
		if n < len(b) {
			n += copy(b[n:], r.Buf[:r.End])
		}
	}
	r.onReadEnd(n)
	return n, nil
}

// Reset flushes all data from the ring buffer.
func (r *Ring) Reset() {
	r.Off = 0
	r.End = 0
}

// Size returns the capacity of the ring buffer.
func (r *Ring) Size() int {
	return len(r.Buf)
}

// Buffered returns the amount of bytes ready to read.
func (r *Ring) Buffered() int {
	return r.Size() - r.Free()
}

// Free returns the amount of bytes that can still be written.
func (r *Ring) Free() int {
	if r.End == 0 || r.Off == 0 {
		return len(r.Buf) - r.End
	}
	if r.Off < r.End {
		startFree := r.Off
		endFree := len(r.Buf) - r.End
		return startFree + endFree
	}
	return r.Off - r.End
}

func (r *Ring) midFree() int {
	if r.End >= r.Off || r.End == 0 {
		return 0
	}
	return r.Off - r.End
}

func (r *Ring) isFull() bool {
	return r.End != 0 && (r.End == r.Off || (r.End == len(r.Buf) && r.Off == 0))
}

// onReadEnd advances Off after totalRead bytes have been copied out, resetting
// the ring to its empty representation when it has been fully drained.
func (r *Ring) onReadEnd(totalRead int) {
	if totalRead <= 0 {
		return
	}
	newOff := r.addOff(r.Off, totalRead)
	if newOff == r.End {
		r.Reset()
	} else if newOff == len(r.Buf) {
		r.Off = 0
	} else {
		r.Off = newOff
	}
}

// addOff sums a and b modulo len(Buf), assuming both are already within range.
func (r *Ring) addOff(a, b int) int {
	result := a + b
	if result > len(r.Buf) {
		result -= len(r.Buf)
	}
	return result
}
