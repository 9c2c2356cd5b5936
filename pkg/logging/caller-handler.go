package logging

import (
	"context"
	"log/slog"
	"runtime"
)

// callerHandler injects the caller's program counter into every record so
// that AddSource-aware handlers can report file:line of the log call site
// rather than of this package's own helper methods.
type callerHandler struct {
	next slog.Handler
}

func (c *callerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return c.next.Enabled(ctx, level)
}

func (c *callerHandler) Handle(ctx context.Context, r slog.Record) error {
	var pcs [1]uintptr
	runtime.Callers(4, pcs[:]) // skip Callers, Handle, logf, L.<level>f
	r.PC = pcs[0]
	return c.next.Handle(ctx, r)
}

func (c *callerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &callerHandler{next: c.next.WithAttrs(attrs)}
}

func (c *callerHandler) WithGroup(group string) slog.Handler {
	return &callerHandler{next: c.next.WithGroup(group)}
}
