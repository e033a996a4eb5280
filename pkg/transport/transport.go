package transport

import (
	"context"
	"errors"
	"fmt"
)

// Transport executes encoded requests against the device under test.
type Transport interface {
	// Start establishes the connection or prepares the backend.
	Start(ctx context.Context) error

	// Execute sends request and returns the payloads received for it.
	Execute(ctx context.Context, request string) ([]string, error)

	// Stop releases the connection and any launched process.
	Stop() error
}

// State is the connection state of a transport.
type State int32

const (
	// StateStopped indicates no connection.
	StateStopped State = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateClosing indicates close in progress.
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Transport errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionClosed = errors.New("connection closed")
)

// ConnectError is returned by Start when the retry budget is exhausted or
// the context ends before a connection is established.
type ConnectError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: giving up after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
