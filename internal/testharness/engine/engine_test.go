package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/matter-conformance/yamltests/internal/testharness/assertions"
	"github.com/matter-conformance/yamltests/internal/testharness/engine"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/log"
	"github.com/matter-conformance/yamltests/pkg/value"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// ---------------------------------------------------------------------------
// stubTransport
// ---------------------------------------------------------------------------

type stubTransport struct{ mock.Mock }

func (s *stubTransport) Start(ctx context.Context) error { return s.Called().Error(0) }
func (s *stubTransport) Stop() error                     { return s.Called().Error(0) }

func (s *stubTransport) Execute(ctx context.Context, request string) ([]string, error) {
	ret := s.Called(request)
	var payloads []string
	if ret.Get(0) != nil {
		payloads = ret.Get(0).([]string)
	}
	return payloads, ret.Error(1)
}

func newTransport() *stubTransport {
	tr := &stubTransport{}
	tr.On("Start").Return(nil)
	tr.On("Stop").Return(nil)
	return tr
}

// ---------------------------------------------------------------------------
// labelAdapter encodes a step as its label. Payloads decode as:
// "ok" success, "fail" FAILURE status, "value:N" success with value N.
// ---------------------------------------------------------------------------

type labelAdapter struct {
	encoded []*loader.Step
}

func (a *labelAdapter) Encode(step *loader.Step) (string, error) {
	a.encoded = append(a.encoded, step)
	return step.Label, nil
}

func (a *labelAdapter) Decode(payloads []string) ([]wire.Response, []wire.LogRecord, error) {
	var out []wire.Response
	for _, p := range payloads {
		switch {
		case p == "ok":
			out = append(out, wire.Response{})
		case p == "fail":
			out = append(out, wire.Response{Error: "FAILURE"})
		case strings.HasPrefix(p, "value:"):
			n, err := strconv.ParseInt(strings.TrimPrefix(p, "value:"), 10, 64)
			if err != nil {
				return nil, nil, err
			}
			var r wire.Response
			r.SetValue(value.Int(n))
			out = append(out, r)
		default:
			return nil, nil, fmt.Errorf("unexpected payload %q", p)
		}
	}
	return out, []wire.LogRecord{{Module: "DMG", Level: "info", Message: "decoded"}}, nil
}

// ---------------------------------------------------------------------------
// recordingHooks
// ---------------------------------------------------------------------------

type recordingHooks struct {
	events []string
}

func (h *recordingHooks) add(format string, args ...any) {
	h.events = append(h.events, fmt.Sprintf(format, args...))
}

func (h *recordingHooks) Start(count int)                  { h.add("start %d", count) }
func (h *recordingHooks) Stop(time.Duration)               { h.add("stop") }
func (h *recordingHooks) TestStart(name string, count int) { h.add("test_start %s %d", name, count) }
func (h *recordingHooks) TestStop(time.Duration)           { h.add("test_stop") }
func (h *recordingHooks) StepSkipped(step *loader.Step)    { h.add("step_skipped %s", step.Label) }
func (h *recordingHooks) StepStart(step *loader.Step)      { h.add("step_start %s", step.Label) }
func (h *recordingHooks) StepUnknown()                     { h.add("step_unknown") }

func (h *recordingHooks) StepSuccess(*assertions.Outcome, []wire.LogRecord, time.Duration) {
	h.add("step_success")
}

func (h *recordingHooks) StepFailure(outcome *assertions.Outcome, _ []wire.LogRecord, _ time.Duration, _ []*loader.ExpectedResponse, _ []wire.Response) {
	h.add("step_failure %s", strings.Join(outcome.Messages(assertions.SeverityError), "; "))
}

// ---------------------------------------------------------------------------
// stubPseudo
// ---------------------------------------------------------------------------

type stubPseudo struct {
	calls int
	block bool
}

func (p *stubPseudo) Name() string                 { return "DelayCommands" }
func (p *stubPseudo) Supports(command string) bool { return command == "WaitForMs" }

func (p *stubPseudo) Execute(ctx context.Context, step *loader.Step) ([]wire.Response, []wire.LogRecord, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return []wire.Response{{}}, nil, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func testFile(name string, n int) *loader.TestFile {
	tf := &loader.TestFile{Name: name}
	for i := range n {
		tf.Steps = append(tf.Steps, &loader.Step{
			Index:   i,
			Label:   fmt.Sprintf("step %d", i+1),
			Cluster: "OnOff",
			Command: "On",
			Enabled: true,
		})
	}
	return tf
}

func newRunner(opts engine.Options, tr *stubTransport, hooks engine.Hooks) (*engine.Runner, *labelAdapter) {
	adapter := &labelAdapter{}
	r := engine.New(&engine.Config{
		Options:   opts,
		Adapter:   adapter,
		Transport: tr,
		Hooks:     hooks,
	})
	return r, adapter
}

func TestRunTestStopOnError(t *testing.T) {
	tr := newTransport()
	tr.On("Execute", "step 1").Return([]string{"ok"}, nil).Once()
	tr.On("Execute", "step 2").Return([]string{"fail"}, nil).Once()

	r, _ := newRunner(engine.DefaultOptions(), tr, nil)
	res := r.RunTest(context.Background(), testFile("policy", 3))

	assert.Equal(t, engine.StateAborted, res.State)
	assert.True(t, res.Halted)
	assert.False(t, res.Passed)
	assert.NoError(t, res.Err)
	assert.Len(t, res.Steps, 2)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Successes)
	tr.AssertExpectations(t)
	tr.AssertNotCalled(t, "Execute", "step 3")
}

func TestRunTestContinueOnError(t *testing.T) {
	tr := newTransport()
	tr.On("Execute", "step 1").Return([]string{"ok"}, nil).Once()
	tr.On("Execute", "step 2").Return([]string{"fail"}, nil).Once()
	tr.On("Execute", "step 3").Return([]string{"ok"}, nil).Once()

	opts := engine.DefaultOptions()
	opts.StopOnError = false
	r, _ := newRunner(opts, tr, nil)
	res := r.RunTest(context.Background(), testFile("policy", 3))

	assert.Equal(t, engine.StateCompleted, res.State)
	assert.False(t, res.Halted)
	assert.False(t, res.Passed)
	assert.Len(t, res.Steps, 3)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 2, res.Successes)
	assert.Equal(t, engine.StepFailed, res.Steps[1].Status)
	tr.AssertExpectations(t)
}

func TestRunHookOrder(t *testing.T) {
	tr := newTransport()
	tr.On("Execute", "step 1").Return([]string{"ok"}, nil).Once()
	tr.On("Execute", "step 2").Return([]string{"fail"}, nil).Once()

	hooks := &recordingHooks{}
	r, _ := newRunner(engine.DefaultOptions(), tr, hooks)
	res := r.Run(context.Background(), engine.Files(testFile("first", 2), testFile("second", 1)))

	assert.Equal(t, []string{
		"start 2",
		"test_start first 2",
		"step_start step 1",
		"step_success",
		"step_start step 2",
		"step_failure expected status SUCCESS, got FAILURE",
		"test_stop",
		"stop",
	}, hooks.events)
	require.Len(t, res.Tests, 1)
	assert.False(t, res.Passed())
	assert.Equal(t, 1, res.Failed())
}

func TestRunDryRun(t *testing.T) {
	tr := &stubTransport{}
	hooks := &recordingHooks{}
	r := engine.New(&engine.Config{Options: engine.DefaultOptions(), Transport: tr, Hooks: hooks})

	tf := testFile("dry", 2)
	tf.Steps[1].Enabled = false
	res := r.RunTest(context.Background(), tf)

	assert.Equal(t, []string{
		"test_start dry 2",
		"step_start step 1",
		"step_unknown",
		"step_skipped step 2",
		"test_stop",
	}, hooks.events)
	assert.Equal(t, engine.StateCompleted, res.State)
	assert.True(t, res.Passed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, engine.StepUnknown, res.Steps[0].Status)
	tr.AssertNotCalled(t, "Start")
}

func TestRunTestSkippedStep(t *testing.T) {
	tr := newTransport()
	tr.On("Execute", "step 2").Return([]string{"ok"}, nil).Once()

	hooks := &recordingHooks{}
	r, _ := newRunner(engine.DefaultOptions(), tr, hooks)
	tf := testFile("gated", 2)
	tf.Steps[0].Enabled = false
	res := r.RunTest(context.Background(), tf)

	assert.Contains(t, hooks.events, "step_skipped step 1")
	assert.True(t, res.Passed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Successes)
	tr.AssertExpectations(t)
}

func TestRunTestPseudoCluster(t *testing.T) {
	tr := newTransport()
	tr.On("Execute", "step 2").Return([]string{"ok"}, nil).Once()

	r, _ := newRunner(engine.DefaultOptions(), tr, nil)
	pseudo := &stubPseudo{}
	r.RegisterPseudoCluster(pseudo)

	tf := testFile("pseudo", 2)
	tf.Steps[0].Cluster = "DelayCommands"
	tf.Steps[0].Command = "WaitForMs"
	res := r.RunTest(context.Background(), tf)

	assert.True(t, res.Passed)
	assert.Equal(t, 1, pseudo.calls)
	tr.AssertNotCalled(t, "Execute", "step 1")
	tr.AssertExpectations(t)
}

func TestRunTestPseudoClusterUnsupportedCommand(t *testing.T) {
	tr := newTransport()
	tr.On("Execute", "step 1").Return([]string{"ok"}, nil).Once()

	r, _ := newRunner(engine.DefaultOptions(), tr, nil)
	pseudo := &stubPseudo{}
	r.RegisterPseudoCluster(pseudo)

	tf := testFile("pseudo", 1)
	tf.Steps[0].Cluster = "DelayCommands"
	tf.Steps[0].Command = "WaitForCommissionee"
	res := r.RunTest(context.Background(), tf)

	assert.True(t, res.Passed)
	assert.Zero(t, pseudo.calls)
	tr.AssertExpectations(t)
}

func TestRunStopAtNumber(t *testing.T) {
	tr := newTransport()
	tr.On("Execute", "step 1").Return([]string{"ok"}, nil).Twice()

	opts := engine.DefaultOptions()
	opts.StopAtNumber = 1
	r, _ := newRunner(opts, tr, nil)
	res := r.Run(context.Background(), engine.Files(testFile("a", 3), testFile("b", 3)))

	require.Len(t, res.Tests, 2)
	for _, tres := range res.Tests {
		assert.Equal(t, engine.StateAborted, tres.State)
		assert.False(t, tres.Halted)
		assert.True(t, tres.Passed)
		assert.Len(t, tres.Steps, 1)
	}
	assert.True(t, res.Passed())
	tr.AssertExpectations(t)
}

func TestRunStopOnWarning(t *testing.T) {
	tests := []struct {
		name          string
		stopOnWarning bool
		steps         int
		state         engine.State
	}{
		{"stop", true, 1, engine.StateAborted},
		{"continue", false, 2, engine.StateCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTransport()
			tr.On("Execute", "step 1").Return([]string{"ok", "ok"}, nil).Once()
			tr.On("Execute", "step 2").Return([]string{"ok"}, nil).Maybe()

			opts := engine.DefaultOptions()
			opts.StopOnWarning = tt.stopOnWarning
			r, _ := newRunner(opts, tr, nil)
			res := r.RunTest(context.Background(), testFile("warn", 2))

			assert.Equal(t, tt.state, res.State)
			assert.Equal(t, tt.stopOnWarning, res.Halted)
			assert.True(t, res.Passed)
			assert.Equal(t, 1, res.Warnings)
			assert.Len(t, res.Steps, tt.steps)
		})
	}
}

func TestRunTransportError(t *testing.T) {
	tr := newTransport()
	boom := errors.New("boom")
	tr.On("Execute", "step 1").Return(nil, boom).Once()

	hooks := &recordingHooks{}
	opts := engine.DefaultOptions()
	opts.StopOnError = false
	r, _ := newRunner(opts, tr, hooks)
	res := r.Run(context.Background(), engine.Files(testFile("broken", 2), testFile("never", 1)))

	require.Len(t, res.Tests, 1)
	tres := res.Tests[0]
	assert.ErrorIs(t, tres.Err, boom)
	assert.EqualError(t, tres.Err, "step 1 (step 1): execute: boom")
	assert.Equal(t, engine.StateAborted, tres.State)
	assert.False(t, tres.Passed)
	assert.Equal(t, []string{
		"start 2",
		"test_start broken 2",
		"step_start step 1",
		"step_failure execute: boom",
		"test_stop",
		"stop",
	}, hooks.events)
	tr.AssertNumberOfCalls(t, "Stop", 1)
}

func TestRunTestTransportStartError(t *testing.T) {
	tr := &stubTransport{}
	refused := errors.New("connection refused")
	tr.On("Start").Return(refused)

	hooks := &recordingHooks{}
	r, _ := newRunner(engine.DefaultOptions(), tr, hooks)
	res := r.RunTest(context.Background(), testFile("offline", 1))

	assert.ErrorIs(t, res.Err, refused)
	assert.Equal(t, engine.StateAborted, res.State)
	assert.Empty(t, res.Steps)
	assert.Equal(t, []string{"test_start offline 1", "test_stop"}, hooks.events)
	tr.AssertNotCalled(t, "Stop")
}

type errorHooks struct {
	recordingHooks
}

func (h *errorHooks) TestError(err error) { h.add("test_error %v", err) }

func TestRunTestTransportStartErrorReported(t *testing.T) {
	tr := &stubTransport{}
	tr.On("Start").Return(errors.New("connection refused"))

	hooks := &errorHooks{}
	r, _ := newRunner(engine.DefaultOptions(), tr, engine.MultiHooks{hooks})
	r.RunTest(context.Background(), testFile("offline", 1))

	assert.Equal(t, []string{
		"test_start offline 1",
		"test_error start transport: connection refused",
		"test_stop",
	}, hooks.events)
}

func TestRunTestSaveAsSubstitution(t *testing.T) {
	tr := newTransport()
	tr.On("Execute", "step 1").Return([]string{"value:42"}, nil).Once()
	tr.On("Execute", "step 2").Return([]string{"ok"}, nil).Once()

	r, adapter := newRunner(engine.DefaultOptions(), tr, nil)
	tf := testFile("vars", 2)
	tf.Steps[0].Responses = []*loader.ExpectedResponse{{
		Values: []*loader.ExpectedValue{{SaveAs: "level"}},
	}}
	tf.Steps[1].Arguments = []loader.Argument{{Name: "level", Value: value.String("level")}}

	res := r.RunTest(context.Background(), tf)
	require.True(t, res.Passed)
	require.Len(t, adapter.encoded, 2)
	got, ok := adapter.encoded[1].Argument("level")
	require.True(t, ok)
	assert.True(t, value.Equal(value.Int(42), got), "got %s", got)

	// The parsed file is left untouched.
	orig, _ := tf.Steps[1].Argument("level")
	assert.Equal(t, value.KindString, orig.Kind())
}

func TestRunTestStepTimeout(t *testing.T) {
	tr := newTransport()
	r, _ := newRunner(engine.DefaultOptions(), tr, nil)
	r.RegisterPseudoCluster(&stubPseudo{block: true})

	tf := testFile("slow", 1)
	tf.Steps[0].Cluster = "DelayCommands"
	tf.Steps[0].Command = "WaitForMs"
	tf.Steps[0].Timeout = 10 * time.Millisecond

	res := r.RunTest(context.Background(), tf)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, engine.StateAborted, res.State)
}

func TestRunCanceledContext(t *testing.T) {
	tr := newTransport()
	hooks := &recordingHooks{}
	r, _ := newRunner(engine.DefaultOptions(), tr, hooks)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Run(ctx, engine.Files(testFile("canceled", 1)))

	assert.Empty(t, res.Tests)
	assert.Equal(t, []string{"start 1", "stop"}, hooks.events)
}

func TestRunTestTrace(t *testing.T) {
	tr := newTransport()
	tr.On("Execute", "step 1").Return([]string{"ok"}, nil).Once()

	var events []log.Event
	r := engine.New(&engine.Config{
		Options:   engine.DefaultOptions(),
		Adapter:   &labelAdapter{},
		Transport: tr,
		Trace:     log.LoggerFunc(func(ev log.Event) { events = append(events, ev) }),
		RunID:     "run-1",
	})
	assert.Equal(t, "run-1", r.RunID())
	r.RunTest(context.Background(), testFile("traced", 1))

	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, "run-1", ev.RunID)
		assert.Equal(t, "traced", ev.Test)
		assert.Equal(t, 1, ev.Step)
	}
	assert.Equal(t, log.DirectionOut, events[0].Direction)
	assert.Equal(t, "step 1", events[0].Payload.Data)
	assert.Equal(t, log.DirectionIn, events[1].Direction)
	assert.Equal(t, "ok", events[1].Payload.Data)
	assert.Equal(t, log.CategoryAdapterLog, events[2].Category)
	assert.Equal(t, "decoded", events[2].AdapterLog.Message)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", engine.StateIdle.String())
	assert.Equal(t, "ABORTED", engine.StateAborted.String())
	assert.Equal(t, "skipped", engine.StepSkipped.String())
}

func TestMultiHooks(t *testing.T) {
	a, b := &recordingHooks{}, &recordingHooks{}
	m := engine.MultiHooks{a, b, engine.NoopHooks{}}
	m.Start(1)
	m.StepUnknown()
	m.Stop(0)

	want := []string{"start 1", "step_unknown", "stop"}
	assert.Equal(t, want, a.events)
	assert.Equal(t, want, b.events)
}
