// Package logging supplies the process-wide structured logger used by every
// other package. It wraps log/slog the way els0r/goProbe's pkg/logging does,
// but routes its default output to syslog instead of stdout, per the
// "nDPId" identifier convention described in spec.md.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Level aliases give callers a stable name independent of slog's own type.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// L is a thin wrapper around *slog.Logger that adds printf-style helpers,
// mirroring goProbe's pkg/logging.L.
type L struct {
	*slog.Logger
}

func newL(logger *slog.Logger) *L {
	return &L{Logger: logger}
}

// Debugf logs a formatted debug message.
func (l *L) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Infof logs a formatted info message.
func (l *L) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warnf logs a formatted warning message.
func (l *L) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Errorf logs a formatted error message.
func (l *L) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// logf hands the record straight to the handler (rather than through
// slog.Logger.Log) so callerHandler's fixed frame skip lands on the
// caller of the printf-style helper.
func (l *L) logf(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !l.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, fmt.Sprintf(format, args...), 0)
	_ = l.Handler().Handle(ctx, r)
}
