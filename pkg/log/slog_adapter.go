package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger.
// Useful for development when you want to see the trace in the console.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter creates a SlogAdapter that writes to the given logger at
// Debug level.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of the adapter that logs at level.
func (a *SlogAdapter) WithLevel(level slog.Level) *SlogAdapter {
	return &SlogAdapter{logger: a.logger, level: level}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("run_id", event.RunID),
		slog.String("category", event.Category.String()),
	}
	if event.Test != "" {
		attrs = append(attrs, slog.String("test", event.Test))
	}
	if event.Step > 0 {
		attrs = append(attrs, slog.Int("step", event.Step))
	}

	switch {
	case event.Lifecycle != nil:
		lc := event.Lifecycle
		attrs = append(attrs, slog.String("phase", lc.Phase.String()))
		if lc.Label != "" {
			attrs = append(attrs, slog.String("label", lc.Label))
		}
		if lc.Count > 0 {
			attrs = append(attrs, slog.Int("count", lc.Count))
		}
		if lc.Duration > 0 {
			attrs = append(attrs, slog.Duration("duration", lc.Duration))
		}
		if lc.Warnings > 0 || lc.Errors > 0 {
			attrs = append(attrs,
				slog.Int("warnings", lc.Warnings),
				slog.Int("errors", lc.Errors),
			)
		}
	case event.Payload != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("size", event.Payload.Size),
			slog.String("data", event.Payload.Data),
		)
	case event.AdapterLog != nil:
		attrs = append(attrs,
			slog.String("module", event.AdapterLog.Module),
			slog.String("level", event.AdapterLog.Level),
			slog.String("message", event.AdapterLog.Message),
		)
	case event.Connection != nil:
		attrs = append(attrs,
			slog.String("state", event.Connection.State.String()),
			slog.String("url", event.Connection.URL),
		)
		if event.Connection.Duration > 0 {
			attrs = append(attrs, slog.Duration("duration", event.Connection.Duration))
		}
		if event.Connection.Interval > 0 {
			attrs = append(attrs, slog.Duration("interval", event.Connection.Interval))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), a.level, "trace", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
