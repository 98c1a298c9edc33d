package rudp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/soypat/rudp/internal"
)

// TraceHandler is a minimal slog.Handler rendering the exact event
// vocabulary this protocol's trace log is specified to produce:
//
//	2026-01-02T15:04:05.000 [LOG] SND SYN SEQ=100
//	2026-01-02T15:04:05.120 [LOG] RCV DATA SEQ=100 LEN=11
//	2026-01-02T15:04:05.620 [LOG] RETX DATA SEQ=100 LEN=11
//
// Each record's Message is the event name (e.g. "SND SYN"); its attributes
// are appended in call order as "KEY=value" using the attribute's key
// verbatim, which is why call sites spell keys SEQ/ACK/LEN/UPDATE in upper case
// to match the wire vocabulary exactly.
type TraceHandler struct {
	mu  *sync.Mutex
	w   *os.File
	lvl slog.Leveler
}

// NewTraceHandler wraps w, an already-opened file, as a TraceHandler. minLevel
// gates which records are rendered; pass internal.LevelTrace to capture
// everything including the per-segment events, which slog.LevelDebug excludes.
func NewTraceHandler(w *os.File, minLevel slog.Leveler) *TraceHandler {
	return &TraceHandler{mu: &sync.Mutex{}, w: w, lvl: minLevel}
}

func (h *TraceHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lvl.Level()
}

func (h *TraceHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 128)
	buf = append(buf, r.Time.Format("2006-01-02T15:04:05.000")...)
	buf = append(buf, " [LOG] "...)
	buf = append(buf, r.Message...)
	r.Attrs(func(a slog.Attr) bool {
		buf = append(buf, ' ')
		buf = append(buf, a.Key...)
		buf = append(buf, '=')
		buf = appendAttrValue(buf, a.Value)
		return true
	})
	buf = append(buf, '\n')
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func appendAttrValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	default:
		return append(buf, v.String()...)
	}
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// The vocabulary has no shared prefix attrs; every call site supplies
	// its own. Returning h unchanged keeps the handler allocation-free.
	return h
}

func (h *TraceHandler) WithGroup(name string) slog.Handler { return h }

// openTraceFile opens (or creates/truncates) the trace log file for role,
// honoring the RUDP_LOG=1 environment variable switch from spec.md §6.3: if
// unset, it returns a nil logger and the caller runs with logging disabled.
func openTraceFile(role string) (*slog.Logger, io.Closer, error) {
	if os.Getenv("RUDP_LOG") != "1" {
		return nil, nil, nil
	}
	name := role + "_log.txt"
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("rudp: opening trace log %q: %w", name, err)
	}
	h := NewTraceHandler(f, internal.LevelTrace)
	return slog.New(h), f, nil
}
