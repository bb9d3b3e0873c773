package stream

import (
	"log/slog"

	"github.com/teserk/rudp/internal"
)

type logger struct {
	log *slog.Logger
}

func (l logger) logenabled(lvl slog.Level) bool {
	return internal.LogEnabled(l.log, lvl)
}

func (l logger) error(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelError, msg, attrs...)
}
func (l logger) info(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelInfo, msg, attrs...)
}
func (l logger) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...)
}
func (l logger) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, internal.LevelTrace, msg, attrs...)
}

func (e *Endpoint) traceCounters(msg string) {
	if e.logenabled(internal.LevelTrace) {
		e.trace(msg,
			slog.Uint64("sent", e.sentBytes),
			slog.Uint64("confirmed", e.confirmedBytes),
			slog.Uint64("received", e.receivedBytes),
			slog.Int("inflight", e.sendWindow.Len()),
			slog.Int("pending", e.recvWindow.Len()),
		)
	}
}
