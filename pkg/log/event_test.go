package log

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/matter-conformance/yamltests/pkg/wire"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		c    Category
		want string
	}{
		{CategoryLifecycle, "LIFECYCLE"},
		{CategoryPayload, "PAYLOAD"},
		{CategoryAdapterLog, "ADAPTER_LOG"},
		{CategoryConnection, "CONNECTION"},
		{CategoryError, "ERROR"},
		{Category(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("PAYLOAD")
	if !ok || c != CategoryPayload {
		t.Errorf("ParseCategory(PAYLOAD) = %v, %v", c, ok)
	}
	if _, ok := ParseCategory("payload"); ok {
		t.Error("ParseCategory should be case sensitive")
	}
}

func TestPhaseString(t *testing.T) {
	if got := PhaseStepFailure.String(); got != "STEP_FAILURE" {
		t.Errorf("PhaseStepFailure.String() = %q", got)
	}
	if got := Phase(200).String(); got != "UNKNOWN" {
		t.Errorf("Phase(200).String() = %q", got)
	}
}

func TestNewRunIDIsUUID(t *testing.T) {
	id := NewRunID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("NewRunID() = %q is not a UUID: %v", id, err)
	}
	if NewRunID() == id {
		t.Error("NewRunID returned the same id twice")
	}
}

func TestNewPayloadEventTruncates(t *testing.T) {
	small := NewPayloadEvent(`{"a":1}`)
	if small.Truncated || small.Size != 7 {
		t.Errorf("small payload = %+v", small)
	}

	big := strings.Repeat("x", MaxPayloadData+10)
	p := NewPayloadEvent(big)
	if !p.Truncated {
		t.Error("large payload should be truncated")
	}
	if p.Size != MaxPayloadData+10 {
		t.Errorf("Size = %d, want original size", p.Size)
	}
	if len(p.Data) != MaxPayloadData {
		t.Errorf("len(Data) = %d, want %d", len(p.Data), MaxPayloadData)
	}
}

func TestEventRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	events := []Event{
		{
			Timestamp: ts, RunID: "run-1", Test: "Test_TC_OO_1_1", Step: 3,
			Category: CategoryLifecycle,
			Lifecycle: &LifecycleEvent{
				Phase: PhaseStepFailure, Label: "Read attribute", Duration: 15 * time.Millisecond,
				Successes: 1, Errors: 2, Messages: []string{"value mismatch"},
			},
		},
		{
			Timestamp: ts, RunID: "run-1", Category: CategoryPayload, Direction: DirectionOut,
			Payload: NewPayloadEvent(`json:{"cluster":"onoff"}`),
		},
		{
			Timestamp: ts, RunID: "run-1", Category: CategoryAdapterLog,
			AdapterLog: &wire.LogRecord{Module: "DMG", Level: "info", Message: "hello"},
		},
		{
			Timestamp: ts, RunID: "run-1", Category: CategoryConnection,
			Connection: &ConnectionEvent{State: ConnectionRetry, URL: "ws://localhost:9002", Interval: time.Second},
		},
		{
			Timestamp: ts, RunID: "run-1", Category: CategoryError,
			Error: &ErrorEventData{Message: "boom", Context: "execute"},
		},
	}

	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("EncodeEvent failed: %v", err)
		}
		got, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		if !got.Timestamp.Equal(ev.Timestamp) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, ev.Timestamp)
		}
		if got.Category != ev.Category || got.RunID != ev.RunID || got.Step != ev.Step {
			t.Errorf("header mismatch: got %+v, want %+v", got, ev)
		}
		switch ev.Category {
		case CategoryLifecycle:
			if got.Lifecycle == nil || got.Lifecycle.Phase != PhaseStepFailure || got.Lifecycle.Errors != 2 ||
				len(got.Lifecycle.Messages) != 1 || got.Lifecycle.Duration != 15*time.Millisecond {
				t.Errorf("Lifecycle = %+v", got.Lifecycle)
			}
		case CategoryPayload:
			if got.Payload == nil || got.Payload.Data != ev.Payload.Data || got.Direction != DirectionOut {
				t.Errorf("Payload = %+v", got.Payload)
			}
		case CategoryAdapterLog:
			if got.AdapterLog == nil || *got.AdapterLog != *ev.AdapterLog {
				t.Errorf("AdapterLog = %+v", got.AdapterLog)
			}
		case CategoryConnection:
			if got.Connection == nil || *got.Connection != *ev.Connection {
				t.Errorf("Connection = %+v", got.Connection)
			}
		case CategoryError:
			if got.Error == nil || *got.Error != *ev.Error {
				t.Errorf("Error = %+v", got.Error)
			}
		}
	}
}
