package logging

import (
	"context"
	"log/slog"
	"os"
)

var global *L

// Init wires up the global logger: syslog under the "nDPId" identifier,
// additionally teed to stderr when logToStderr is set (the "-l" flag),
// matching goProbe's pkg/logging.Init which assigns the configured
// logger as slog's default.
func Init(level slog.Level, logToStderr bool) error {
	sh, err := newSyslogHandler("nDPId", level)
	if err != nil {
		return err
	}

	var handler slog.Handler = sh
	if logToStderr {
		handler = newTeeHandler(sh, newPlainHandler(os.Stderr, level))
	}
	handler = &callerHandler{next: handler}

	global = newL(slog.New(handler))
	slog.SetDefault(global.Logger)
	return nil
}

// Logger returns the global logger. Before Init has run it returns a
// fresh logger writing to stderr at info level.
func Logger() *L {
	if global == nil {
		return newL(slog.New(newPlainHandler(os.Stderr, LevelInfo)))
	}
	return global
}

type fieldsKeyType int

const fieldsKey fieldsKeyType = 0

// WithFields returns a context carrying additional structured fields,
// mirroring goProbe's pkg/logging.WithFields. Fields added across
// calls accumulate in order.
func WithFields(ctx context.Context, args ...any) context.Context {
	attrs := argsToAttrs(args)
	if existing, ok := ctx.Value(fieldsKey).([]any); ok {
		attrs = append(append([]any{}, existing...), attrs...)
	}
	return context.WithValue(ctx, fieldsKey, attrs)
}

// FromContext returns the global logger enriched with any fields stashed
// by WithFields, mirroring goProbe's pkg/logging.FromContext.
func FromContext(ctx context.Context) *L {
	l := Logger()
	if ctx == nil {
		return l
	}
	if attrs, ok := ctx.Value(fieldsKey).([]any); ok && len(attrs) > 0 {
		return &L{Logger: l.Logger.With(attrs...)}
	}
	return l
}

func argsToAttrs(args []any) []any {
	out := make([]any, len(args))
	copy(out, args)
	return out
}
