package log

// Logger receives trace events.
// Pass NoopLogger to disable tracing.
type Logger interface {
	// Log records a trace event. Implementations must be thread-safe
	// and must not block the run for long.
	Log(event Event)
}

// NoopLogger discards all events. It is the default trace sink.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}

// LoggerFunc adapts a function to the Logger interface.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// Compile-time interface satisfaction check.
var _ Logger = LoggerFunc(nil)
