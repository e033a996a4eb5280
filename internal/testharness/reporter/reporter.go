// Package reporter renders run progress and results: console and trace
// hooks during the run, text, JSON and JUnit summaries afterwards.
package reporter

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/matter-conformance/yamltests/internal/testharness/assertions"
	"github.com/matter-conformance/yamltests/internal/testharness/engine"
)

// Reporter writes the summary of a finished run.
type Reporter interface {
	// ReportRun reports the results of a run.
	ReportRun(result *engine.RunResult) error

	// ReportTest reports the results of a single test.
	ReportTest(result *engine.TestResult) error
}

// New returns the reporter for format: "text", "json" or "junit".
func New(format string, w io.Writer, verbose bool) (Reporter, error) {
	switch format {
	case "", "text":
		return NewTextReporter(w, verbose), nil
	case "json":
		return NewJSONReporter(w, verbose), nil
	case "junit":
		return NewJUnitReporter(w), nil
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

func testStatus(t *engine.TestResult) string {
	if t.Passed {
		return "passed"
	}
	return "failed"
}

// TextReporter writes a plain text summary.
type TextReporter struct {
	w       io.Writer
	verbose bool
}

// NewTextReporter creates a text reporter. Verbose reports list every
// step.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{w: w, verbose: verbose}
}

func (r *TextReporter) ReportRun(result *engine.RunResult) error {
	fmt.Fprintf(r.w, "\n--- Summary ---\n")
	for _, t := range result.Tests {
		if err := r.ReportTest(t); err != nil {
			return err
		}
	}
	passed := len(result.Tests) - result.Failed()
	fmt.Fprintf(r.w, "\nTotal:    %d\n", len(result.Tests))
	fmt.Fprintf(r.w, "Passed:   %d\n", passed)
	fmt.Fprintf(r.w, "Failed:   %d\n", result.Failed())
	_, err := fmt.Fprintf(r.w, "Duration: %s\n", round(result.Duration))
	return err
}

func (r *TextReporter) ReportTest(t *engine.TestResult) error {
	mark := "PASS"
	if !t.Passed {
		mark = "FAIL"
	}
	fmt.Fprintf(r.w, "[%s] %s (%s) %d ok, %d warnings, %d errors, %d skipped\n",
		mark, t.Name, round(t.Duration), t.Successes, t.Warnings, t.Errors, t.Skipped)
	if t.Err != nil {
		fmt.Fprintf(r.w, "       Error: %v\n", t.Err)
	}
	if !r.verbose {
		return nil
	}
	for _, sr := range t.Steps {
		_, err := fmt.Fprintf(r.w, "    [%s] Step %d: %s (%s)\n",
			sr.Status, sr.Step.Index+1, StepTitle(sr.Step), round(sr.Duration))
		if err != nil {
			return err
		}
		if sr.Outcome == nil {
			continue
		}
		for _, e := range sr.Outcome.Entries {
			if e.Severity != assertions.SeveritySuccess {
				fmt.Fprintf(r.w, "           %s: %s\n", e.Severity, e.Message)
			}
		}
	}
	return nil
}

// JSONReporter writes a JSON summary.
type JSONReporter struct {
	w      io.Writer
	pretty bool
}

// NewJSONReporter creates a JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{w: w, pretty: pretty}
}

// JSONRunResult is the JSON form of a run.
type JSONRunResult struct {
	Duration string           `json:"duration"`
	Total    int              `json:"total"`
	Passed   int              `json:"passed"`
	Failed   int              `json:"failed"`
	Tests    []JSONTestResult `json:"tests"`
}

// JSONTestResult is the JSON form of a test.
type JSONTestResult struct {
	Name      string           `json:"name"`
	Path      string           `json:"path,omitempty"`
	Status    string           `json:"status"`
	State     string           `json:"state"`
	Duration  string           `json:"duration"`
	Successes int              `json:"successes"`
	Warnings  int              `json:"warnings"`
	Errors    int              `json:"errors"`
	Skipped   int              `json:"skipped"`
	Error     string           `json:"error,omitempty"`
	Steps     []JSONStepResult `json:"steps,omitempty"`
}

// JSONStepResult is the JSON form of a step.
type JSONStepResult struct {
	Number   int         `json:"number"`
	Label    string      `json:"label"`
	Status   string      `json:"status"`
	Duration string      `json:"duration"`
	Error    string      `json:"error,omitempty"`
	Entries  []JSONEntry `json:"entries,omitempty"`
}

// JSONEntry is the JSON form of an outcome entry.
type JSONEntry struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func (r *JSONReporter) ReportRun(result *engine.RunResult) error {
	jr := JSONRunResult{
		Duration: round(result.Duration).String(),
		Total:    len(result.Tests),
		Passed:   len(result.Tests) - result.Failed(),
		Failed:   result.Failed(),
		Tests:    make([]JSONTestResult, 0, len(result.Tests)),
	}
	for _, t := range result.Tests {
		jr.Tests = append(jr.Tests, testToJSON(t))
	}
	return r.write(jr)
}

func (r *JSONReporter) ReportTest(t *engine.TestResult) error {
	return r.write(testToJSON(t))
}

func testToJSON(t *engine.TestResult) JSONTestResult {
	jt := JSONTestResult{
		Name:      t.Name,
		Path:      t.Path,
		Status:    testStatus(t),
		State:     t.State.String(),
		Duration:  round(t.Duration).String(),
		Successes: t.Successes,
		Warnings:  t.Warnings,
		Errors:    t.Errors,
		Skipped:   t.Skipped,
	}
	if t.Err != nil {
		jt.Error = t.Err.Error()
	}
	for _, sr := range t.Steps {
		js := JSONStepResult{
			Number:   sr.Step.Index + 1,
			Label:    StepTitle(sr.Step),
			Status:   sr.Status.String(),
			Duration: round(sr.Duration).String(),
		}
		if sr.Err != nil {
			js.Error = sr.Err.Error()
		}
		if sr.Outcome != nil {
			for _, e := range sr.Outcome.Entries {
				js.Entries = append(js.Entries, JSONEntry{
					Category: string(e.Category),
					Severity: e.Severity.String(),
					Message:  e.Message,
				})
			}
		}
		jt.Steps = append(jt.Steps, js)
	}
	return jt
}

func (r *JSONReporter) write(v any) error {
	enc := json.NewEncoder(r.w)
	if r.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// JUnitReporter writes JUnit XML for CI systems.
type JUnitReporter struct {
	w io.Writer
}

// NewJUnitReporter creates a JUnit reporter.
func NewJUnitReporter(w io.Writer) *JUnitReporter {
	return &JUnitReporter{w: w}
}

type junitSuite struct {
	XMLName  xml.Name    `xml:"testsuite"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Skipped   *junitSkipped `xml:"skipped"`
	Failure   *junitFailure `xml:"failure"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

func (r *JUnitReporter) ReportRun(result *engine.RunResult) error {
	return r.write("yamltests", result.Tests, result.Duration)
}

func (r *JUnitReporter) ReportTest(t *engine.TestResult) error {
	return r.write(t.Name, []*engine.TestResult{t}, t.Duration)
}

// write emits one testcase per step so that CI systems show where a test
// failed.
func (r *JUnitReporter) write(name string, tests []*engine.TestResult, d time.Duration) error {
	suite := junitSuite{Name: name, Time: seconds(d)}
	for _, t := range tests {
		for _, sr := range t.Steps {
			c := junitCase{
				Name:      fmt.Sprintf("%d: %s", sr.Step.Index+1, StepTitle(sr.Step)),
				Classname: t.Name,
				Time:      seconds(sr.Duration),
			}
			switch sr.Status {
			case engine.StepSkipped:
				c.Skipped = &junitSkipped{Message: "PICS " + sr.Step.PICS}
				suite.Skipped++
			case engine.StepUnknown:
				c.Skipped = &junitSkipped{Message: "not executed"}
				suite.Skipped++
			case engine.StepFailed:
				c.Failure = stepFailure(sr)
				suite.Failures++
			}
			suite.Cases = append(suite.Cases, c)
		}
		// A test aborted outside a step still reports its error.
		if t.Err != nil && (len(t.Steps) == 0 || t.Steps[len(t.Steps)-1].Err == nil) {
			suite.Cases = append(suite.Cases, junitCase{
				Name:      "setup",
				Classname: t.Name,
				Time:      seconds(0),
				Failure:   &junitFailure{Message: t.Err.Error()},
			})
			suite.Failures++
		}
	}
	suite.Tests = len(suite.Cases)

	if _, err := io.WriteString(r.w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(r.w)
	enc.Indent("", "  ")
	if err := enc.Encode(suite); err != nil {
		return err
	}
	_, err := io.WriteString(r.w, "\n")
	return err
}

func stepFailure(sr *engine.StepResult) *junitFailure {
	f := &junitFailure{}
	if sr.Err != nil {
		f.Message = sr.Err.Error()
	}
	if sr.Outcome != nil {
		msgs := sr.Outcome.Messages(assertions.SeverityError)
		if f.Message == "" && len(msgs) > 0 {
			f.Message = msgs[0]
		}
		for _, m := range msgs {
			f.Body += m + "\n"
		}
	}
	return f
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// Compile-time interface satisfaction checks.
var (
	_ Reporter = (*TextReporter)(nil)
	_ Reporter = (*JSONReporter)(nil)
	_ Reporter = (*JUnitReporter)(nil)
)
