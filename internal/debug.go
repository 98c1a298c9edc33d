package internal

import (
	"context"
	"log/slog"
)

// LevelTrace is a logging level finer than [slog.LevelDebug], used for
// per-segment send/receive/retransmit tracing that would otherwise drown out
// ordinary debug output.
const LevelTrace slog.Level = slog.LevelDebug - 2

// LogEnabled reports whether l would emit a record at lvl, treating a nil
// logger as disabled.
func LogEnabled(l *slog.Logger, lvl slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), lvl)
}

// LogAttrs is the single entry point every package logger in this module
// funnels through, so that a nil *slog.Logger is always a safe no-op.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
