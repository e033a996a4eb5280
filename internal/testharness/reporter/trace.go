package reporter

import (
	"sync"
	"time"

	"github.com/matter-conformance/yamltests/internal/testharness/assertions"
	"github.com/matter-conformance/yamltests/internal/testharness/engine"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/log"
	"github.com/matter-conformance/yamltests/pkg/transport"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// TraceHooks records run lifecycle and connection events to a trace
// logger. Use the runner's RunID so that lifecycle events correlate with
// the payload events the runner records.
type TraceHooks struct {
	logger log.Logger
	runID  string

	mu   sync.Mutex
	test string
	step int
	url  string
}

// NewTraceHooks creates trace hooks.
func NewTraceHooks(logger log.Logger, runID string) *TraceHooks {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &TraceHooks{logger: logger, runID: runID}
}

func (h *TraceHooks) lifecycle(lc *log.LifecycleEvent) {
	h.logger.Log(log.Event{
		Timestamp: time.Now(),
		RunID:     h.runID,
		Test:      h.test,
		Step:      h.step,
		Category:  log.CategoryLifecycle,
		Lifecycle: lc,
	})
}

func (h *TraceHooks) connection(ce *log.ConnectionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Log(log.Event{
		Timestamp:  time.Now(),
		RunID:      h.runID,
		Test:       h.test,
		Category:   log.CategoryConnection,
		Connection: ce,
	})
}

func (h *TraceHooks) Start(count int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.test, h.step = "", 0
	h.lifecycle(&log.LifecycleEvent{Phase: log.PhaseRunStart, Count: count})
}

func (h *TraceHooks) Stop(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.test, h.step = "", 0
	h.lifecycle(&log.LifecycleEvent{Phase: log.PhaseRunStop, Duration: d})
}

func (h *TraceHooks) TestStart(name string, count int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.test, h.step = name, 0
	h.lifecycle(&log.LifecycleEvent{Phase: log.PhaseTestStart, Label: name, Count: count})
}

func (h *TraceHooks) TestStop(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.step = 0
	h.lifecycle(&log.LifecycleEvent{Phase: log.PhaseTestStop, Label: h.test, Duration: d})
}

func (h *TraceHooks) StepSkipped(step *loader.Step) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.step = step.Index + 1
	h.lifecycle(&log.LifecycleEvent{Phase: log.PhaseStepSkipped, Label: StepTitle(step)})
}

func (h *TraceHooks) StepStart(step *loader.Step) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.step = step.Index + 1
	h.lifecycle(&log.LifecycleEvent{Phase: log.PhaseStepStart, Label: StepTitle(step)})
}

func (h *TraceHooks) StepSuccess(outcome *assertions.Outcome, _ []wire.LogRecord, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lifecycle(&log.LifecycleEvent{
		Phase:     log.PhaseStepSuccess,
		Duration:  d,
		Successes: outcome.Successes(),
		Warnings:  outcome.Warnings(),
		Messages:  outcome.Messages(assertions.SeverityWarning),
	})
}

func (h *TraceHooks) StepFailure(outcome *assertions.Outcome, _ []wire.LogRecord, d time.Duration, _ []*loader.ExpectedResponse, _ []wire.Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	messages := append(outcome.Messages(assertions.SeverityError), outcome.Messages(assertions.SeverityWarning)...)
	h.lifecycle(&log.LifecycleEvent{
		Phase:     log.PhaseStepFailure,
		Duration:  d,
		Successes: outcome.Successes(),
		Warnings:  outcome.Warnings(),
		Errors:    outcome.Errors(),
		Messages:  messages,
	})
}

func (h *TraceHooks) StepUnknown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lifecycle(&log.LifecycleEvent{Phase: log.PhaseStepUnknown})
}

func (h *TraceHooks) Connecting(url string) {
	h.mu.Lock()
	h.url = url
	h.mu.Unlock()
	h.connection(&log.ConnectionEvent{State: log.ConnectionConnecting, URL: url})
}

func (h *TraceHooks) Success(d time.Duration) {
	h.connection(&log.ConnectionEvent{State: log.ConnectionSuccess, URL: h.currentURL(), Duration: d})
}

func (h *TraceHooks) Failure(d time.Duration) {
	h.connection(&log.ConnectionEvent{State: log.ConnectionFailure, URL: h.currentURL(), Duration: d})
}

func (h *TraceHooks) Retry(interval time.Duration) {
	h.connection(&log.ConnectionEvent{State: log.ConnectionRetry, URL: h.currentURL(), Interval: interval})
}

func (h *TraceHooks) Abort(url string) {
	h.connection(&log.ConnectionEvent{State: log.ConnectionAbort, URL: url})
}

func (h *TraceHooks) currentURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// Compile-time interface satisfaction checks.
var (
	_ engine.Hooks              = (*TraceHooks)(nil)
	_ transport.ConnectionHooks = (*TraceHooks)(nil)
)
