package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/matter-conformance/yamltests/internal/testharness/assertions"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/log"
	"github.com/matter-conformance/yamltests/pkg/transport"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// ErrNoTransport is returned when a step needs the device but no transport
// is configured.
var ErrNoTransport = errors.New("no transport configured")

// Adapter converts steps to backend requests and backend payloads to
// responses.
type Adapter interface {
	// Encode builds the request for step. An empty request means the
	// step only waits for an unsolicited report.
	Encode(step *loader.Step) (string, error)

	// Decode parses the payloads received for one request.
	Decode(payloads []string) ([]wire.Response, []wire.LogRecord, error)
}

// PseudoCluster executes steps locally without a transport.
type PseudoCluster interface {
	// Name is the cluster name steps use to address it.
	Name() string

	// Supports reports whether command is handled.
	Supports(command string) bool

	// Execute runs the step.
	Execute(ctx context.Context, step *loader.Step) ([]wire.Response, []wire.LogRecord, error)
}

// Source provides the test files of a run.
type Source interface {
	// Count returns the number of files the run is expected to visit.
	Count() int

	// Files yields the parsed files in order.
	Files(ctx context.Context) iter.Seq[*loader.TestFile]
}

// Config configures a Runner.
type Config struct {
	// Options is the run policy.
	Options Options

	// Adapter encodes and decodes steps. Nil selects dry-run mode where
	// every enabled step is reported as unknown.
	Adapter Adapter

	// Transport executes encoded requests. It is started before and
	// stopped after every test file.
	Transport transport.Transport

	// Hooks receives run events. Nil means NoopHooks.
	Hooks Hooks

	// Trace receives payload, adapter log and error events.
	Trace log.Logger

	// RunID correlates trace events. Empty selects a fresh id.
	RunID string
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() *Config {
	return &Config{
		Options: DefaultOptions(),
		Hooks:   NoopHooks{},
		Trace:   log.NoopLogger{},
	}
}

// Runner executes test files step by step.
type Runner struct {
	config *Config
	pseudo map[string]PseudoCluster
	mu     sync.RWMutex
}

// New creates a Runner. A nil config selects DefaultConfig.
func New(config *Config) *Runner {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Hooks == nil {
		config.Hooks = NoopHooks{}
	}
	if config.Trace == nil {
		config.Trace = log.NoopLogger{}
	}
	if config.RunID == "" {
		config.RunID = log.NewRunID()
	}
	return &Runner{
		config: config,
		pseudo: make(map[string]PseudoCluster),
	}
}

// RunID returns the id attached to trace events.
func (r *Runner) RunID() string {
	return r.config.RunID
}

// RegisterPseudoCluster registers a local cluster. A later registration
// with the same name replaces the earlier one.
func (r *Runner) RegisterPseudoCluster(pc PseudoCluster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pseudo[pc.Name()] = pc
}

func (r *Runner) pseudoCluster(step *loader.Step) PseudoCluster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pc, ok := r.pseudo[step.Cluster]
	if !ok || step.Command == "" || !pc.Supports(step.Command) {
		return nil
	}
	return pc
}

// Run executes the files of src in order. The run ends early when a test
// is halted by a stop policy or ends with an error. Start and Stop are always emitted.
func (r *Runner) Run(ctx context.Context, src Source) *RunResult {
	result := &RunResult{}
	hooks := r.config.Hooks

	start := time.Now()
	hooks.Start(src.Count())
	defer func() {
		result.Duration = time.Since(start)
		hooks.Stop(result.Duration)
	}()

	for tf := range src.Files(ctx) {
		tr := r.RunTest(ctx, tf)
		result.Tests = append(result.Tests, tr)
		if tr.Err != nil || tr.Halted {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return result
}

// RunTest executes the steps of one file. TestStart and TestStop are always
// emitted.
func (r *Runner) RunTest(ctx context.Context, tf *loader.TestFile) *TestResult {
	result := &TestResult{
		Name:  tf.Name,
		Path:  tf.Path,
		State: StateIdle,
	}
	hooks := r.config.Hooks

	hooks.TestStart(tf.Name, tf.Count())
	defer func() {
		result.Passed = result.Errors == 0 && result.Err == nil
		if eh, ok := hooks.(TestErrorHooks); ok && result.Err != nil {
			eh.TestError(result.Err)
		}
		hooks.TestStop(result.Duration)
	}()
	result.State = StateRunning

	if t := r.config.Transport; t != nil && r.config.Adapter != nil {
		if err := t.Start(ctx); err != nil {
			result.Err = fmt.Errorf("start transport: %w", err)
			result.State = StateAborted
			r.traceError(tf.Name, 0, result.Err, "transport start")
			return result
		}
		defer func() {
			if err := t.Stop(); err != nil {
				r.traceError(tf.Name, 0, err, "transport stop")
			}
		}()
	}

	opts := r.config.Options
	vars := loader.NewVariables(tf.Config)

	for i, step := range tf.Steps {
		if err := ctx.Err(); err != nil {
			result.Err = err
			result.State = StateAborted
			break
		}

		sr := r.runStep(ctx, tf.Name, step, vars)
		result.Steps = append(result.Steps, sr)
		result.Duration += sr.Duration

		switch sr.Status {
		case StepPassed:
			result.Successes++
		case StepFailed:
			result.Errors++
		case StepSkipped:
			result.Skipped++
		}
		warned := sr.Outcome != nil && sr.Outcome.Warnings() > 0
		if warned {
			result.Warnings++
		}

		if sr.Err != nil {
			result.Err = fmt.Errorf("step %d (%s): %w", i+1, step.Label, sr.Err)
			result.State = StateAborted
			break
		}
		if (sr.Status == StepFailed && opts.StopOnError) || (warned && opts.StopOnWarning) {
			result.Halted = true
			result.State = StateAborted
			break
		}
		if i+1 == opts.StopAtNumber {
			result.State = StateAborted
			break
		}
	}
	if result.State == StateRunning {
		result.State = StateCompleted
	}
	return result
}

func (r *Runner) runStep(ctx context.Context, test string, step *loader.Step, vars loader.Variables) *StepResult {
	hooks := r.config.Hooks
	result := &StepResult{Step: step}

	if !step.Enabled {
		result.Status = StepSkipped
		hooks.StepSkipped(step)
		return result
	}
	if r.config.Adapter == nil {
		result.Status = StepUnknown
		hooks.StepStart(step)
		hooks.StepUnknown()
		return result
	}

	resolved := step.Resolve(vars)
	result.Step = resolved
	hooks.StepStart(resolved)

	start := time.Now()
	received, logs, err := r.execute(ctx, test, resolved)
	var outcome *assertions.Outcome
	if err != nil {
		outcome = assertions.NewOutcome()
		outcome.Error(assertions.CategoryExecution, err.Error())
		r.traceError(test, resolved.Index+1, err, resolved.Label)
	} else {
		outcome = assertions.CheckResponses(resolved, received, vars)
	}
	result.Duration = time.Since(start)

	result.Outcome = outcome
	result.Received = received
	result.Logs = logs
	result.Err = err

	if outcome.Passed() {
		result.Status = StepPassed
		hooks.StepSuccess(outcome, logs, result.Duration)
	} else {
		result.Status = StepFailed
		hooks.StepFailure(outcome, logs, result.Duration, resolved.Responses, received)
	}
	return result
}

func (r *Runner) execute(ctx context.Context, test string, step *loader.Step) ([]wire.Response, []wire.LogRecord, error) {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = r.config.Options.StepTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if pc := r.pseudoCluster(step); pc != nil {
		responses, logs, err := pc.Execute(ctx, step)
		if err != nil {
			return nil, logs, fmt.Errorf("%s.%s: %w", step.Cluster, step.Command, err)
		}
		r.traceLogs(test, step.Index+1, logs)
		return responses, logs, nil
	}

	if r.config.Transport == nil {
		return nil, nil, ErrNoTransport
	}

	request, err := r.config.Adapter.Encode(step)
	if err != nil {
		return nil, nil, fmt.Errorf("encode: %w", err)
	}
	if request != "" {
		r.tracePayload(test, step.Index+1, log.DirectionOut, request)
	}

	payloads, err := r.config.Transport.Execute(ctx, request)
	if err != nil {
		return nil, nil, fmt.Errorf("execute: %w", err)
	}
	for _, p := range payloads {
		r.tracePayload(test, step.Index+1, log.DirectionIn, p)
	}

	responses, logs, err := r.config.Adapter.Decode(payloads)
	if err != nil {
		return nil, logs, fmt.Errorf("decode: %w", err)
	}
	r.traceLogs(test, step.Index+1, logs)
	return responses, logs, nil
}

func (r *Runner) event(test string, step int, category log.Category) log.Event {
	return log.Event{
		Timestamp: time.Now(),
		RunID:     r.config.RunID,
		Test:      test,
		Step:      step,
		Category:  category,
	}
}

func (r *Runner) tracePayload(test string, step int, dir log.Direction, data string) {
	ev := r.event(test, step, log.CategoryPayload)
	ev.Direction = dir
	ev.Payload = log.NewPayloadEvent(data)
	r.config.Trace.Log(ev)
}

func (r *Runner) traceLogs(test string, step int, logs []wire.LogRecord) {
	for i := range logs {
		ev := r.event(test, step, log.CategoryAdapterLog)
		ev.Direction = log.DirectionIn
		ev.AdapterLog = &logs[i]
		r.config.Trace.Log(ev)
	}
}

func (r *Runner) traceError(test string, step int, err error, what string) {
	ev := r.event(test, step, log.CategoryError)
	ev.Error = &log.ErrorEventData{Message: err.Error(), Context: what}
	r.config.Trace.Log(ev)
}

// Files adapts already parsed files to a Source.
func Files(files ...*loader.TestFile) Source {
	return fileSource(files)
}

type fileSource []*loader.TestFile

func (s fileSource) Count() int {
	return len(s)
}

func (s fileSource) Files(ctx context.Context) iter.Seq[*loader.TestFile] {
	return func(yield func(*loader.TestFile) bool) {
		for _, f := range s {
			if ctx.Err() != nil || !yield(f) {
				return
			}
		}
	}
}

// Compile-time interface satisfaction check.
var _ Source = (*loader.Builder)(nil)
