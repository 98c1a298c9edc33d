package rudp

import (
	"log/slog"
	"net"

	"github.com/soypat/rudp/internal"
)

func (cb *ControlBlock) logEnabled(lvl slog.Level) bool {
	return internal.LogEnabled(cb.log, lvl)
}

func (cb *ControlBlock) logAttrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	internal.LogAttrs(cb.log, lvl, msg, attrs...)
}

func (cb *ControlBlock) debug(msg string, attrs ...slog.Attr) {
	cb.logAttrs(slog.LevelDebug, msg, attrs...)
}

func (cb *ControlBlock) trace(msg string, attrs ...slog.Attr) {
	cb.logAttrs(internal.LevelTrace, msg, attrs...)
}

func (cb *ControlBlock) traceSeg(msg string, seg Segment) {
	if !cb.logEnabled(internal.LevelTrace) {
		return
	}
	cb.trace(msg,
		slog.Uint64("seq", uint64(seg.SEQ)),
		slog.Uint64("ack", uint64(seg.ACK)),
		slog.Uint64("wnd", uint64(seg.WND)),
		slog.String("flags", seg.Flags.String()),
		slog.Int("len", seg.DataLen()),
	)
}

// The methods below emit the exact event vocabulary spec.md §6.3 requires of
// the RUDP_LOG trace, one line per event: "SND SYN SEQ=n", "RCV DATA
// SEQ=n LEN=k", "RETX DATA SEQ=n LEN=k", "TIMEOUT SEQ=n", "DROP DATA
// SEQ=n", "FLOW WIN UPDATE=w". They are logged at internal.LevelTrace so a
// developer-facing slog.Logger at LevelDebug does not need to see them.

func (cb *ControlBlock) logSnd(kind string, seq uint32, length int) {
	if length > 0 {
		cb.trace("SND "+kind, slog.Uint64("SEQ", uint64(seq)), slog.Int("LEN", length))
	} else {
		cb.trace("SND "+kind, slog.Uint64("SEQ", uint64(seq)))
	}
}

func (cb *ControlBlock) logRcv(kind string, seq uint32, length int) {
	if length > 0 {
		cb.trace("RCV "+kind, slog.Uint64("SEQ", uint64(seq)), slog.Int("LEN", length))
	} else {
		cb.trace("RCV "+kind, slog.Uint64("SEQ", uint64(seq)))
	}
}

func (cb *ControlBlock) logRcvAck(ack uint32) {
	cb.trace("RCV", slog.Uint64("ACK", uint64(ack)))
}

func (cb *ControlBlock) logRetx(seq uint32, length int) {
	cb.trace("RETX DATA", slog.Uint64("SEQ", uint64(seq)), slog.Int("LEN", length))
}

func (cb *ControlBlock) logTimeout(seq uint32) {
	cb.trace("TIMEOUT", slog.Uint64("SEQ", uint64(seq)))
}

func (cb *ControlBlock) logDrop(kind string, seq uint32) {
	cb.trace("DROP "+kind, slog.Uint64("SEQ", uint64(seq)))
}

func (cb *ControlBlock) logReject(err error, seq uint32) {
	cb.trace("REJECT "+err.Error(), slog.Uint64("SEQ", uint64(seq)))
}

func (cb *ControlBlock) logFlowUpdate(w uint16) {
	cb.trace("FLOW WIN", slog.Uint64("UPDATE", uint64(w)))
}

// logPeer records the established connection's peer IPv4 address at debug
// level, packed via internal.SlogAddr4 to avoid a string allocation per call.
func (cb *ControlBlock) logPeer(msg string, ip net.IP) {
	v4 := ip.To4()
	if v4 == nil || !cb.logEnabled(slog.LevelDebug) {
		return
	}
	var addr [4]byte
	copy(addr[:], v4)
	cb.debug(msg, internal.SlogAddr4("peer", &addr))
}
