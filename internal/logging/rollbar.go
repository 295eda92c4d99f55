package logging

import (
	"context"
	"log/slog"

	"github.com/rollbar/rollbar-go"
)

// EnableRollbar wraps the default logger so ERROR records are also reported
// to Rollbar. The returned func flushes queued items and belongs in a defer
// in main. An empty token leaves logging untouched.
func EnableRollbar(token, environment string) (flush func()) {
	if token == "" {
		return func() {}
	}

	rollbar.SetToken(token)
	rollbar.SetEnvironment(environment)
	rollbar.SetCodeVersion(version())

	slog.SetDefault(slog.New(&rollbarHandler{
		next:   slog.Default().Handler(),
		report: rollbar.Error,
	}))

	return rollbar.Wait
}

// rollbarHandler forwards records at or above slog.LevelError.
type rollbarHandler struct {
	next   slog.Handler
	attrs  []slog.Attr
	report func(...interface{})
}

func (h *rollbarHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *rollbarHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		h.forward(ctx, r)
	}
	return h.next.Handle(ctx, r)
}

func (h *rollbarHandler) forward(ctx context.Context, r slog.Record) {
	extras := make(map[string]interface{}, len(h.attrs)+r.NumAttrs()+1)
	var cause error

	collect := func(a slog.Attr) bool {
		if err, ok := a.Value.Any().(error); ok && cause == nil {
			cause = err
		}
		extras[a.Key] = a.Value.String()
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	if reqID := requestID(ctx); reqID != "" {
		extras["request_id"] = reqID
	}

	if cause != nil {
		extras["message"] = r.Message
		h.report(cause, extras)
		return
	}
	h.report(r.Message, extras)
}

func (h *rollbarHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &rollbarHandler{next: h.next.WithAttrs(attrs), attrs: merged, report: h.report}
}

func (h *rollbarHandler) WithGroup(name string) slog.Handler {
	return &rollbarHandler{next: h.next.WithGroup(name), attrs: h.attrs, report: h.report}
}
