package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// RunIDKey is the attribute key that marks a log record as belonging to an
// ingestion run. Workers log through logger.With(RunIDKey, runID) and every
// record below that point is captured.
const RunIDKey = "run_id"

// Sink receives captured run log lines. Implementations must be safe for
// concurrent use and should be fast; Append is called inline from the
// logging hot path and its errors are dropped.
type Sink interface {
	Append(ctx context.Context, runID int64, at time.Time, level slog.Level, message string)
}

// RunCapture is a slog.Handler wrapper that tees records carrying a run_id
// attribute into a Sink while always delegating to the base handler. The
// sink is attached after construction (the logger exists before the
// database does); until then records pass through uncaptured.
type RunCapture struct {
	base  slog.Handler
	sink  *atomic.Pointer[Sink]
	runID int64 // non-zero when run_id arrived via WithAttrs
	attrs []slog.Attr
}

// NewRunCapture wraps base. Attach a sink with SetSink once storage is up.
func NewRunCapture(base slog.Handler) *RunCapture {
	return &RunCapture{
		base: base,
		sink: &atomic.Pointer[Sink]{},
	}
}

// SetSink attaches the destination for captured records.
func (h *RunCapture) SetSink(s Sink) {
	h.sink.Store(&s)
}

// Enabled implements slog.Handler.
func (h *RunCapture) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle implements slog.Handler. Capture failures never affect the base
// handler's output.
func (h *RunCapture) Handle(ctx context.Context, r slog.Record) error {
	if sp := h.sink.Load(); sp != nil {
		runID := h.runID
		var extra []slog.Attr
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == RunIDKey {
				if id, ok := attrInt64(a.Value); ok {
					runID = id
				}
				return true
			}
			extra = append(extra, a)
			return true
		})
		if runID != 0 {
			(*sp).Append(ctx, runID, r.Time, r.Level, renderMessage(r.Message, h.attrs, extra))
		}
	}
	return h.base.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *RunCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.base = h.base.WithAttrs(attrs)
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if a.Key == RunIDKey {
			if id, ok := attrInt64(a.Value); ok {
				clone.runID = id
			}
			continue
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

// WithGroup implements slog.Handler. Groups are delegated to the base
// handler; captured messages render grouped attrs flat, which is fine for a
// debugging channel.
func (h *RunCapture) WithGroup(name string) slog.Handler {
	clone := *h
	clone.base = h.base.WithGroup(name)
	return &clone
}

// renderMessage flattens the message and its attrs to a single logfmt-ish
// line for storage.
func renderMessage(msg string, chains ...[]slog.Attr) string {
	var b strings.Builder
	b.WriteString(msg)
	for _, attrs := range chains {
		for _, a := range attrs {
			b.WriteByte(' ')
			b.WriteString(a.Key)
			b.WriteByte('=')
			b.WriteString(a.Value.Resolve().String())
		}
	}
	return b.String()
}

func attrInt64(v slog.Value) (int64, bool) {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	default:
		return 0, false
	}
}
