package logging

import (
	"context"
	"fmt"
	"log/slog"
	"log/syslog"
)

// syslogHandler writes records to the local syslog daemon under the
// "nDPId" identifier required by spec.md §6. It is the
// default (and, absent "-l", only) destination for runtime diagnostics.
//
// Grounded on els0r-goProbe's pkg/goDB/SyslogDBWriter.go, which dials a
// *syslog.Writer for a different purpose (writing aggregated flow rows).
type syslogHandler struct {
	w     *syslog.Writer
	level slog.Level
	attrs []slog.Attr
}

func newSyslogHandler(tag string, level slog.Level) (*syslogHandler, error) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_NOTICE, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to open syslog connection: %w", err)
	}
	return &syslogHandler{w: w, level: level}, nil
}

func (s *syslogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= s.level
}

func (s *syslogHandler) Handle(_ context.Context, r slog.Record) error {
	msg := r.Message
	for _, a := range s.attrs {
		msg += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		msg += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		return true
	})

	switch {
	case r.Level >= LevelError:
		return s.w.Err(msg)
	case r.Level >= LevelWarn:
		return s.w.Warning(msg)
	case r.Level >= LevelInfo:
		return s.w.Info(msg)
	default:
		return s.w.Debug(msg)
	}
}

func (s *syslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, s.attrs...), attrs...)
	return &syslogHandler{w: s.w, level: s.level, attrs: merged}
}

func (s *syslogHandler) WithGroup(_ string) slog.Handler { return s }

// Close releases the underlying syslog connection.
func (s *syslogHandler) Close() error {
	return s.w.Close()
}
