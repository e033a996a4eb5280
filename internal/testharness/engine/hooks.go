package engine

import (
	"time"

	"github.com/matter-conformance/yamltests/internal/testharness/assertions"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// Hooks observes a run.
//
// Start and Stop bracket the run. Every test is bracketed by TestStart and
// TestStop. Each visited step produces StepSkipped, or StepStart followed
// by exactly one of StepSuccess, StepFailure or StepUnknown.
type Hooks interface {
	Start(count int)
	Stop(duration time.Duration)
	TestStart(name string, count int)
	TestStop(duration time.Duration)
	StepSkipped(step *loader.Step)
	StepStart(step *loader.Step)
	StepSuccess(outcome *assertions.Outcome, logs []wire.LogRecord, duration time.Duration)
	StepFailure(outcome *assertions.Outcome, logs []wire.LogRecord, duration time.Duration, expected []*loader.ExpectedResponse, received []wire.Response)
	StepUnknown()
}

// TestErrorHooks is implemented by hooks that want the error that ended a
// test early. It is called right before TestStop, also when the test
// never reached a step.
type TestErrorHooks interface {
	TestError(err error)
}

// NoopHooks ignores all run events. Embed it to implement a subset of Hooks.
type NoopHooks struct{}

func (NoopHooks) Start(int)                {}
func (NoopHooks) Stop(time.Duration)       {}
func (NoopHooks) TestStart(string, int)    {}
func (NoopHooks) TestStop(time.Duration)   {}
func (NoopHooks) StepSkipped(*loader.Step) {}
func (NoopHooks) StepStart(*loader.Step)   {}
func (NoopHooks) StepUnknown()             {}

func (NoopHooks) StepSuccess(*assertions.Outcome, []wire.LogRecord, time.Duration) {}

func (NoopHooks) StepFailure(*assertions.Outcome, []wire.LogRecord, time.Duration, []*loader.ExpectedResponse, []wire.Response) {
}

// MultiHooks fans run events out to several sinks in order.
type MultiHooks []Hooks

func (m MultiHooks) Start(count int) {
	for _, h := range m {
		h.Start(count)
	}
}

func (m MultiHooks) Stop(d time.Duration) {
	for _, h := range m {
		h.Stop(d)
	}
}

func (m MultiHooks) TestStart(name string, count int) {
	for _, h := range m {
		h.TestStart(name, count)
	}
}

func (m MultiHooks) TestStop(d time.Duration) {
	for _, h := range m {
		h.TestStop(d)
	}
}

func (m MultiHooks) TestError(err error) {
	for _, h := range m {
		if eh, ok := h.(TestErrorHooks); ok {
			eh.TestError(err)
		}
	}
}

func (m MultiHooks) StepSkipped(step *loader.Step) {
	for _, h := range m {
		h.StepSkipped(step)
	}
}

func (m MultiHooks) StepStart(step *loader.Step) {
	for _, h := range m {
		h.StepStart(step)
	}
}

func (m MultiHooks) StepSuccess(outcome *assertions.Outcome, logs []wire.LogRecord, d time.Duration) {
	for _, h := range m {
		h.StepSuccess(outcome, logs, d)
	}
}

func (m MultiHooks) StepFailure(outcome *assertions.Outcome, logs []wire.LogRecord, d time.Duration, expected []*loader.ExpectedResponse, received []wire.Response) {
	for _, h := range m {
		h.StepFailure(outcome, logs, d, expected, received)
	}
}

func (m MultiHooks) StepUnknown() {
	for _, h := range m {
		h.StepUnknown()
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Hooks = NoopHooks{}
	_ Hooks          = MultiHooks(nil)
	_ TestErrorHooks = MultiHooks(nil)
)
