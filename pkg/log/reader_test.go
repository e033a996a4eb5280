package log

import (
	"testing"
	"time"
)

func TestReaderFilter(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, RunID: "r1", Test: "A", Category: CategoryLifecycle, Lifecycle: &LifecycleEvent{Phase: PhaseTestStart}},
		{Timestamp: base.Add(time.Second), RunID: "r1", Test: "A", Category: CategoryPayload, Direction: DirectionOut, Payload: NewPayloadEvent("req")},
		{Timestamp: base.Add(2 * time.Second), RunID: "r1", Test: "A", Category: CategoryPayload, Direction: DirectionIn, Payload: NewPayloadEvent("resp")},
		{Timestamp: base.Add(3 * time.Second), RunID: "r1", Test: "B", Category: CategoryLifecycle, Lifecycle: &LifecycleEvent{Phase: PhaseTestStart}},
		{Timestamp: base.Add(4 * time.Second), RunID: "r2", Test: "A", Category: CategoryError, Error: &ErrorEventData{Message: "x"}},
	}
	path := createTestTraceFile(t, events)

	payload := CategoryPayload
	in := DirectionIn
	start := base.Add(time.Second)
	end := base.Add(4 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 5},
		{"run", Filter{RunID: "r1"}, 4},
		{"test", Filter{Test: "A"}, 4},
		{"category", Filter{Category: &payload}, 2},
		{"direction", Filter{Category: &payload, Direction: &in}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 3},
		{"combined", Filter{RunID: "r1", Test: "B"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer r.Close()
			got, err := r.All()
			if err != nil {
				t.Fatalf("All failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader("/nonexistent/trace.ylog"); err == nil {
		t.Error("expected error for missing file")
	}
}
