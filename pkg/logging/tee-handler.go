package logging

import (
	"context"
	"log/slog"
)

// teeHandler fans a record out to two handlers, generalizing goProbe's
// levelSplitHandler (which routes by level) into routing to both, each
// branch still applying its own level filter. It backs the "-l" flag:
// diagnostics always go to syslog, and optionally also to stderr.
type teeHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func newTeeHandler(primary, secondary slog.Handler) *teeHandler {
	return &teeHandler{primary: primary, secondary: secondary}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.primary.Enabled(ctx, level) || t.secondary.Enabled(ctx, level)
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	if t.primary.Enabled(ctx, r.Level) {
		if err := t.primary.Handle(ctx, r.Clone()); err != nil {
			firstErr = err
		}
	}
	if t.secondary.Enabled(ctx, r.Level) {
		if err := t.secondary.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{primary: t.primary.WithAttrs(attrs), secondary: t.secondary.WithAttrs(attrs)}
}

func (t *teeHandler) WithGroup(group string) slog.Handler {
	return &teeHandler{primary: t.primary.WithGroup(group), secondary: t.secondary.WithGroup(group)}
}
