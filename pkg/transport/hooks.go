package transport

import "time"

// ConnectionHooks observes connection establishment.
//
// For every attempt Connecting is followed by exactly one of Success or
// Failure. A Failure with retry budget left is followed by Retry; Abort is
// emitted once, only when no further attempt will be made.
type ConnectionHooks interface {
	Connecting(url string)
	Success(duration time.Duration)
	Failure(duration time.Duration)
	Retry(interval time.Duration)
	Abort(url string)
}

// NoopConnectionHooks ignores all connection events.
type NoopConnectionHooks struct{}

func (NoopConnectionHooks) Connecting(string)     {}
func (NoopConnectionHooks) Success(time.Duration) {}
func (NoopConnectionHooks) Failure(time.Duration) {}
func (NoopConnectionHooks) Retry(time.Duration)   {}
func (NoopConnectionHooks) Abort(string)          {}

// MultiConnectionHooks fans connection events out to several sinks.
type MultiConnectionHooks []ConnectionHooks

func (m MultiConnectionHooks) Connecting(url string) {
	for _, h := range m {
		h.Connecting(url)
	}
}

func (m MultiConnectionHooks) Success(d time.Duration) {
	for _, h := range m {
		h.Success(d)
	}
}

func (m MultiConnectionHooks) Failure(d time.Duration) {
	for _, h := range m {
		h.Failure(d)
	}
}

func (m MultiConnectionHooks) Retry(interval time.Duration) {
	for _, h := range m {
		h.Retry(interval)
	}
}

func (m MultiConnectionHooks) Abort(url string) {
	for _, h := range m {
		h.Abort(url)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ ConnectionHooks = NoopConnectionHooks{}
	_ ConnectionHooks = MultiConnectionHooks(nil)
)
