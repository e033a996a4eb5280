package reporter_test

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matter-conformance/yamltests/internal/testharness/assertions"
	"github.com/matter-conformance/yamltests/internal/testharness/engine"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/internal/testharness/reporter"
	"github.com/matter-conformance/yamltests/pkg/log"
	"github.com/matter-conformance/yamltests/pkg/value"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

func outcome(errs ...string) *assertions.Outcome {
	o := assertions.NewOutcome()
	o.Success(assertions.CategoryStatus, "status is SUCCESS")
	for _, e := range errs {
		o.Error(assertions.CategoryValue, e)
	}
	return o
}

func createRunResult() *engine.RunResult {
	passing := &engine.TestResult{
		Name:      "Test_TC_OO_1_1",
		Path:      "tests/Test_TC_OO_1_1.yaml",
		State:     engine.StateCompleted,
		Passed:    true,
		Duration:  40 * time.Millisecond,
		Successes: 1,
		Skipped:   1,
		Steps: []*engine.StepResult{
			{Step: &loader.Step{Index: 0, Label: "Read OnOff"}, Status: engine.StepPassed, Outcome: outcome(), Duration: 40 * time.Millisecond},
			{Step: &loader.Step{Index: 1, Label: "Read LightingFeature", PICS: "OO.S.F00"}, Status: engine.StepSkipped},
		},
	}
	failing := &engine.TestResult{
		Name:     "Test_TC_LVL_2_1",
		State:    engine.StateAborted,
		Halted:   true,
		Duration: 25 * time.Millisecond,
		Errors:   1,
		Steps: []*engine.StepResult{
			{
				Step:     &loader.Step{Index: 0, Cluster: "LevelControl", Command: "readAttribute", Attribute: "CurrentLevel"},
				Status:   engine.StepFailed,
				Outcome:  outcome("value 254 != 10"),
				Duration: 25 * time.Millisecond,
			},
		},
	}
	return &engine.RunResult{Tests: []*engine.TestResult{passing, failing}, Duration: 70 * time.Millisecond}
}

func TestNewReporter(t *testing.T) {
	var buf bytes.Buffer
	for _, format := range []string{"", "text", "json", "junit"} {
		r, err := reporter.New(format, &buf, false)
		require.NoError(t, err, format)
		assert.NotNil(t, r)
	}
	_, err := reporter.New("html", &buf, false)
	assert.ErrorContains(t, err, "html")
}

func TestTextReporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporter.NewTextReporter(&buf, true).ReportRun(createRunResult()))

	out := buf.String()
	assert.Contains(t, out, "[PASS] Test_TC_OO_1_1 (40ms) 1 ok, 0 warnings, 0 errors, 1 skipped")
	assert.Contains(t, out, "[FAIL] Test_TC_LVL_2_1")
	assert.Contains(t, out, "[skipped] Step 2: Read LightingFeature")
	assert.Contains(t, out, "[failed] Step 1: readAttribute LevelControl.CurrentLevel")
	assert.Contains(t, out, "error: value 254 != 10")
	assert.Contains(t, out, "Total:    2")
	assert.Contains(t, out, "Failed:   1")
}

func TestTextReporterTestError(t *testing.T) {
	var buf bytes.Buffer
	tr := &engine.TestResult{Name: "broken", Err: errors.New("start transport: refused")}
	require.NoError(t, reporter.NewTextReporter(&buf, false).ReportTest(tr))
	assert.Contains(t, buf.String(), "Error: start transport: refused")
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporter.NewJSONReporter(&buf, true).ReportRun(createRunResult()))

	var jr reporter.JSONRunResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &jr))
	assert.Equal(t, 2, jr.Total)
	assert.Equal(t, 1, jr.Passed)
	assert.Equal(t, 1, jr.Failed)
	require.Len(t, jr.Tests, 2)

	failing := jr.Tests[1]
	assert.Equal(t, "failed", failing.Status)
	assert.Equal(t, "ABORTED", failing.State)
	require.Len(t, failing.Steps, 1)
	assert.Equal(t, 1, failing.Steps[0].Number)
	assert.Equal(t, "failed", failing.Steps[0].Status)
	require.Len(t, failing.Steps[0].Entries, 2)
	assert.Equal(t, reporter.JSONEntry{Category: "value", Severity: "error", Message: "value 254 != 10"}, failing.Steps[0].Entries[1])
}

func TestJUnitReporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporter.NewJUnitReporter(&buf).ReportRun(createRunResult()))
	require.True(t, strings.HasPrefix(buf.String(), xml.Header))

	var suite struct {
		Tests    int `xml:"tests,attr"`
		Failures int `xml:"failures,attr"`
		Skipped  int `xml:"skipped,attr"`
		Cases    []struct {
			Name    string `xml:"name,attr"`
			Failure *struct {
				Message string `xml:"message,attr"`
			} `xml:"failure"`
		} `xml:"testcase"`
	}
	require.NoError(t, xml.Unmarshal(buf.Bytes()[len(xml.Header):], &suite))
	assert.Equal(t, 3, suite.Tests)
	assert.Equal(t, 1, suite.Failures)
	assert.Equal(t, 1, suite.Skipped)
	require.NotNil(t, suite.Cases[2].Failure)
	assert.Equal(t, "value 254 != 10", suite.Cases[2].Failure.Message)
}

func TestJUnitReporterSetupError(t *testing.T) {
	var buf bytes.Buffer
	tr := &engine.TestResult{Name: "Test_TC_X", Err: errors.New("start transport: refused")}
	require.NoError(t, reporter.NewJUnitReporter(&buf).ReportTest(tr))
	assert.Contains(t, buf.String(), `name="setup"`)
	assert.Contains(t, buf.String(), `message="start transport: refused"`)
}

func TestConsoleHooks(t *testing.T) {
	var buf bytes.Buffer
	h := reporter.NewConsoleHooks(&buf, reporter.DefaultConsoleOptions())

	readStep := &loader.Step{Label: "Read OnOff"}
	writeStep := &loader.Step{Label: "Write OnTime"}
	logs := []wire.LogRecord{{Module: "DMG", Level: "info", Message: "ReportDataMessage"}}

	h.Start(1)
	h.TestStart("Test_TC_OO_2_1", 4)
	h.StepSkipped(&loader.Step{Label: "Feature step", PICS: "OO.S.F00"})
	h.StepStart(readStep)
	h.StepSuccess(outcome(), logs, 12*time.Millisecond)
	h.StepStart(writeStep)
	h.StepFailure(outcome("status UNSUPPORTED_WRITE"), logs, 3*time.Millisecond,
		[]*loader.ExpectedResponse{{Error: "SUCCESS"}},
		[]wire.Response{{Error: "UNSUPPORTED_WRITE"}})
	h.StepStart(&loader.Step{Cluster: "OnOff", Command: "Toggle"})
	h.StepUnknown()
	h.TestStop(15 * time.Millisecond)
	h.Stop(20 * time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "Running 1 test")
	assert.Contains(t, out, "Test_TC_OO_2_1")
	assert.Contains(t, out, "(4 steps)")
	assert.Contains(t, out, "Feature step")
	assert.Contains(t, out, "(skipped: OO.S.F00)")
	assert.Contains(t, out, "Read OnOff")
	assert.Contains(t, out, "status UNSUPPORTED_WRITE")
	assert.Contains(t, out, "expected[0]: error=SUCCESS")
	assert.Contains(t, out, "received[0]: error=UNSUPPORTED_WRITE")
	assert.Contains(t, out, "OnOff.Toggle")
	assert.Contains(t, out, "1 skipped, 1 not executed")
	assert.Contains(t, out, "Ran 1 test in 20ms")

	// Adapter logs only for the failed step by default.
	assert.Equal(t, 1, strings.Count(out, "ReportDataMessage"))
}

func TestConsoleHooksShowAdapterLogs(t *testing.T) {
	var buf bytes.Buffer
	h := reporter.NewConsoleHooks(&buf, reporter.ConsoleOptions{ShowAdapterLogs: true})

	h.StepStart(&loader.Step{Label: "Read"})
	o := outcome()
	o.Warning(assertions.CategoryResponse, "received 2 responses, expected 1")
	h.StepSuccess(o, []wire.LogRecord{{Module: "DMG", Level: "info", Message: "report"}}, time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "[DMG] info: report")
	assert.Contains(t, out, "received 2 responses, expected 1")
}

func TestConsoleParserHooks(t *testing.T) {
	var buf bytes.Buffer
	h := reporter.NewConsoleParserHooks(&buf)

	h.Start(2)
	h.TestStart("a.yaml")
	h.TestSuccess(time.Millisecond)
	h.TestStart("b.yaml")
	h.TestFailure(errors.New("line 3: unknown key"), time.Millisecond)
	h.Stop(5 * time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "Parsing 2 files")
	assert.Contains(t, out, "a.yaml")
	assert.Contains(t, out, "line 3: unknown key")
	assert.Contains(t, out, "1 file failed to parse")
}

func TestConsoleConnectionHooks(t *testing.T) {
	var buf bytes.Buffer
	h := reporter.NewConsoleConnectionHooks(&buf)

	h.Connecting("ws://localhost:9002")
	h.Failure(time.Millisecond)
	h.Retry(time.Second)
	h.Abort("ws://localhost:9002")

	out := buf.String()
	assert.Contains(t, out, "Connecting to ws://localhost:9002")
	assert.Contains(t, out, "retrying in 1s")
	assert.Contains(t, out, "giving up on ws://localhost:9002")
}

func TestStepTitle(t *testing.T) {
	tests := []struct {
		step *loader.Step
		want string
	}{
		{&loader.Step{Label: "Turn on"}, "Turn on"},
		{&loader.Step{Cluster: "OnOff", Command: "On"}, "OnOff.On"},
		{&loader.Step{Cluster: "OnOff", Command: "readAttribute", Attribute: "OnOff"}, "readAttribute OnOff.OnOff"},
		{&loader.Step{Cluster: "Switch", Command: "readEvent", Event: "InitialPress"}, "readEvent Switch.InitialPress"},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reporter.StepTitle(tt.step))
	}
}

func TestTraceHooks(t *testing.T) {
	var events []log.Event
	h := reporter.NewTraceHooks(log.LoggerFunc(func(e log.Event) { events = append(events, e) }), "run-7")

	h.Start(1)
	h.Connecting("ws://localhost:9002")
	h.Success(2 * time.Millisecond)
	h.TestStart("Test_TC_OO_1_1", 2)
	h.StepStart(&loader.Step{Index: 0, Label: "Read"})
	h.StepFailure(outcome("value mismatch"), nil, time.Millisecond, nil, nil)
	h.StepSkipped(&loader.Step{Index: 1, Label: "Skip"})
	h.TestStop(time.Millisecond)
	h.Stop(time.Millisecond)

	require.Len(t, events, 9)
	for _, e := range events {
		assert.Equal(t, "run-7", e.RunID)
	}

	assert.Equal(t, log.CategoryConnection, events[1].Category)
	assert.Equal(t, "ws://localhost:9002", events[2].Connection.URL)

	failure := events[5]
	assert.Equal(t, log.PhaseStepFailure, failure.Lifecycle.Phase)
	assert.Equal(t, "Test_TC_OO_1_1", failure.Test)
	assert.Equal(t, 1, failure.Step)
	assert.Equal(t, 1, failure.Lifecycle.Errors)
	assert.Equal(t, []string{"value mismatch"}, failure.Lifecycle.Messages)

	assert.Equal(t, 2, events[6].Step)
	assert.Equal(t, log.PhaseRunStop, events[8].Lifecycle.Phase)
	assert.Empty(t, events[8].Test)
}

func TestFormatValues(t *testing.T) {
	var buf bytes.Buffer
	h := reporter.NewConsoleHooks(&buf, reporter.ConsoleOptions{})
	h.StepStart(&loader.Step{Label: "Read"})

	received := wire.Response{}
	received.SetValue(value.Uint(254))
	h.StepFailure(outcome("mismatch"), nil, 0,
		[]*loader.ExpectedResponse{{Values: []*loader.ExpectedValue{{Value: value.Uint(10), HasValue: true}}}},
		[]wire.Response{received})

	out := buf.String()
	assert.Contains(t, out, "expected[0]: value=10")
	assert.Contains(t, out, "received[0]: value=254")
}
