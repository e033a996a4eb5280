// Package engine orchestrates the steps of parsed test files: gating,
// adapter and transport calls, response checks, stop policies and hook
// notifications.
package engine

import (
	"time"

	"github.com/matter-conformance/yamltests/internal/testharness/assertions"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// State is the execution state of a single test file.
type State int

const (
	// StateIdle means the test has not started.
	StateIdle State = iota

	// StateRunning means steps are being executed.
	StateRunning

	// StateCompleted means every step was visited.
	StateCompleted

	// StateAborted means a stop policy or an error ended the test early.
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// StepStatus is the terminal status of a single step.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepFailed
	StepSkipped
	StepUnknown
)

// String returns the status name.
func (s StepStatus) String() string {
	switch s {
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "skipped"
	case StepUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Options is the run policy. It is immutable for the duration of a run.
type Options struct {
	// StopOnError ends a test at the first step with errors.
	StopOnError bool

	// StopOnWarning ends a test at the first step with warnings.
	StopOnWarning bool

	// StopAtNumber ends a test after the step with this 1-based number.
	// A value below 1 disables it.
	StopAtNumber int

	// StepTimeout bounds a step that does not set its own timeout.
	// Zero means no bound beyond the run context.
	StepTimeout time.Duration
}

// DefaultOptions returns the default run policy.
func DefaultOptions() Options {
	return Options{
		StopOnError:   true,
		StopOnWarning: false,
		StopAtNumber:  -1,
		StepTimeout:   60 * time.Second,
	}
}

// StepResult represents the outcome of a single step.
type StepResult struct {
	// Step is the resolved step that was executed.
	Step *loader.Step

	// Status is the terminal status of the step.
	Status StepStatus

	// Outcome holds the check entries. Nil for skipped and unknown steps.
	Outcome *assertions.Outcome

	// Received are the decoded responses.
	Received []wire.Response

	// Logs are the adapter log records collected for the step.
	Logs []wire.LogRecord

	// Err is the error that ended the step, if any.
	Err error

	// Duration covers encode, execute, decode and checks.
	Duration time.Duration
}

// TestResult represents the outcome of one test file.
type TestResult struct {
	// Name is the test name.
	Name string

	// Path is the file the test was loaded from.
	Path string

	// State is the final state of the test.
	State State

	// Passed is true when no step failed and no error occurred.
	Passed bool

	// Err is the error that aborted the test, if any.
	Err error

	// Halted reports that a stop-on-error or stop-on-warning policy
	// ended the test. A halted test also ends the run.
	Halted bool

	// Steps holds one result per visited step.
	Steps []*StepResult

	// Duration is the sum of the step durations.
	Duration time.Duration

	// Step counters.
	Successes int
	Warnings  int
	Errors    int
	Skipped   int
}

// RunResult represents the outcome of a run over several test files.
type RunResult struct {
	// Tests holds one result per executed test file.
	Tests []*TestResult

	// Duration is the wall-clock duration of the run.
	Duration time.Duration
}

// Passed reports whether every test passed.
func (r *RunResult) Passed() bool {
	for _, t := range r.Tests {
		if !t.Passed {
			return false
		}
	}
	return true
}

// Failed returns the number of tests that did not pass.
func (r *RunResult) Failed() int {
	n := 0
	for _, t := range r.Tests {
		if !t.Passed {
			n++
		}
	}
	return n
}
