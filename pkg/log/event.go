package log

import (
	"time"

	"github.com/google/uuid"

	"github.com/matter-conformance/yamltests/pkg/wire"
)

// Event represents one trace event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// RunID uniquely identifies the run (UUID).
	RunID string `cbor:"2,keyasint"`

	// Test is the name of the test the event belongs to, if any.
	Test string `cbor:"3,keyasint,omitempty"`

	// Step is the 1-based step number, 0 outside a step.
	Step int `cbor:"4,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Direction indicates payload flow.
	Direction Direction `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Lifecycle  *LifecycleEvent  `cbor:"10,keyasint,omitempty"`
	Payload    *PayloadEvent    `cbor:"11,keyasint,omitempty"`
	AdapterLog *wire.LogRecord  `cbor:"12,keyasint,omitempty"`
	Connection *ConnectionEvent `cbor:"13,keyasint,omitempty"`
	Error      *ErrorEventData  `cbor:"14,keyasint,omitempty"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Direction indicates the direction of payload flow.
type Direction uint8

const (
	// DirectionNone is used by events that carry no payload.
	DirectionNone Direction = 0
	// DirectionOut indicates a request sent to the device.
	DirectionOut Direction = 1
	// DirectionIn indicates a response received from the device.
	DirectionIn Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "-"
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryLifecycle indicates a run, test or step transition.
	CategoryLifecycle Category = 0
	// CategoryPayload indicates a request or response payload.
	CategoryPayload Category = 1
	// CategoryAdapterLog indicates a backend log record.
	CategoryAdapterLog Category = 2
	// CategoryConnection indicates a transport connection event.
	CategoryConnection Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryLifecycle:
		return "LIFECYCLE"
	case CategoryPayload:
		return "PAYLOAD"
	case CategoryAdapterLog:
		return "ADAPTER_LOG"
	case CategoryConnection:
		return "CONNECTION"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name as returned by String.
func ParseCategory(s string) (Category, bool) {
	for c := CategoryLifecycle; c <= CategoryError; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// Phase identifies a lifecycle transition.
type Phase uint8

const (
	PhaseRunStart Phase = iota
	PhaseRunStop
	PhaseTestStart
	PhaseTestStop
	PhaseStepSkipped
	PhaseStepStart
	PhaseStepSuccess
	PhaseStepFailure
	PhaseStepUnknown
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseRunStart:
		return "RUN_START"
	case PhaseRunStop:
		return "RUN_STOP"
	case PhaseTestStart:
		return "TEST_START"
	case PhaseTestStop:
		return "TEST_STOP"
	case PhaseStepSkipped:
		return "STEP_SKIPPED"
	case PhaseStepStart:
		return "STEP_START"
	case PhaseStepSuccess:
		return "STEP_SUCCESS"
	case PhaseStepFailure:
		return "STEP_FAILURE"
	case PhaseStepUnknown:
		return "STEP_UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// LifecycleEvent captures a run, test or step transition.
type LifecycleEvent struct {
	Phase Phase `cbor:"1,keyasint"`

	// Label is the step label or test name.
	Label string `cbor:"2,keyasint,omitempty"`

	// Count is the number of tests (run start) or steps (test start).
	Count int `cbor:"3,keyasint,omitempty"`

	// Duration of the finished unit. Stored as nanoseconds.
	Duration time.Duration `cbor:"4,keyasint,omitempty"`

	// Outcome counters of a finished step.
	Successes int `cbor:"5,keyasint,omitempty"`
	Warnings  int `cbor:"6,keyasint,omitempty"`
	Errors    int `cbor:"7,keyasint,omitempty"`

	// Messages lists the non-success outcome entries of a failed step.
	Messages []string `cbor:"8,keyasint,omitempty"`
}

// PayloadEvent captures an encoded request or a raw response.
type PayloadEvent struct {
	// Size is the payload size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the payload text (may be truncated for large payloads).
	Data string `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxPayloadData bounds the payload text stored in a trace event.
const MaxPayloadData = 64 * 1024

// NewPayloadEvent builds a PayloadEvent, truncating large payloads.
func NewPayloadEvent(data string) *PayloadEvent {
	p := &PayloadEvent{Size: len(data), Data: data}
	if len(data) > MaxPayloadData {
		p.Data = data[:MaxPayloadData]
		p.Truncated = true
	}
	return p
}

// ConnectionState is the state reported by a connection event.
type ConnectionState uint8

const (
	ConnectionConnecting ConnectionState = iota
	ConnectionSuccess
	ConnectionFailure
	ConnectionRetry
	ConnectionAbort
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionConnecting:
		return "CONNECTING"
	case ConnectionSuccess:
		return "SUCCESS"
	case ConnectionFailure:
		return "FAILURE"
	case ConnectionRetry:
		return "RETRY"
	case ConnectionAbort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// ConnectionEvent captures a transport connection attempt.
type ConnectionEvent struct {
	State ConnectionState `cbor:"1,keyasint"`

	// URL is the endpoint being connected to.
	URL string `cbor:"2,keyasint,omitempty"`

	// Duration of the attempt (success and failure).
	Duration time.Duration `cbor:"3,keyasint,omitempty"`

	// Interval before the next attempt (retry).
	Interval time.Duration `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
