package rudp

import "github.com/soypat/rudp/metrics"

// advertise computes the window this side currently offers the peer:
// free receive-buffer space, floored at MSS so a full buffer still
// advertises room for one more segment instead of deadlocking (there is no
// window-probe mechanism in this protocol to recover from a zero window).
func (cb *ControlBlock) advertise() uint16 {
	free := cb.rcv.bufferSize - cb.rcv.bufferUsed
	w := free
	if w < MSS {
		w = MSS
	}
	if w > 65535 {
		w = 65535
	}
	wnd := uint16(w)
	if absDiffU16(wnd, cb.rcv.lastAdvertised) > MSS {
		cb.logFlowUpdate(wnd)
		metrics.AdvertisedWindow.Observe(float64(wnd))
	}
	cb.rcv.lastAdvertised = wnd
	return wnd
}

func absDiffU16(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}

// charge accounts n freshly received bytes against the receive buffer.
func (cb *ControlBlock) charge(n uint32) {
	cb.rcv.bufferUsed += n
	if cb.rcv.bufferUsed > cb.rcv.bufferSize {
		cb.rcv.bufferUsed = cb.rcv.bufferSize
	}
}

// discharge releases n bytes from the receive buffer's accounting once they
// have been copied out to the application. Discharge never underflows.
func (cb *ControlBlock) discharge(n uint32) {
	if n >= cb.rcv.bufferUsed {
		cb.rcv.bufferUsed = 0
		return
	}
	cb.rcv.bufferUsed -= n
}

// admitSend reports whether a chunk of size n may be emitted right now, and
// if not, which gate is blocking it (for the caller's backoff selection).
func (cb *ControlBlock) admitSend(n uint32) (ok bool, flowGated bool) {
	if cb.snd.windowCount >= W {
		return false, false
	}
	if cb.InFlight()+n > uint32(cb.snd.peerWindow) {
		return false, true
	}
	return true, false
}
