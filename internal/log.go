package internal

import (
	"context"
	"log/slog"
)

// LevelTrace is a logging level below [slog.LevelDebug] used for per-segment
// event logging.
const LevelTrace slog.Level = slog.LevelDebug - 2

// LogEnabled reports whether l would emit a record at lvl. A nil logger never emits.
func LogEnabled(l *slog.Logger, lvl slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), lvl)
}

// LogAttrs is the logging helper used by all package loggers. A nil logger is
// a no-op so hot paths need no nil checks at call sites.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
