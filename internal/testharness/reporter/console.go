package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/matter-conformance/yamltests/internal/testharness/assertions"
	"github.com/matter-conformance/yamltests/internal/testharness/engine"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/transport"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// Status marks.
const (
	markSuccess = "✓"
	markFailure = "✗"
	markWarning = "!"
	markSkipped = "-"
	markUnknown = "?"
)

type styles struct {
	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	dim     lipgloss.Style
	title   lipgloss.Style
}

// newStyles binds the palette to w so that colors are only emitted when
// w is a color terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		success: r.NewStyle().Foreground(lipgloss.Color("42")),
		failure: r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("214")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("240")),
		title:   r.NewStyle().Bold(true),
	}
}

// ConsoleOptions configures the console hooks.
type ConsoleOptions struct {
	// ShowAdapterLogs prints the adapter logs of every step.
	ShowAdapterLogs bool

	// ShowAdapterLogsOnError prints the adapter logs of failed steps.
	ShowAdapterLogsOnError bool
}

// DefaultConsoleOptions returns the default console options.
func DefaultConsoleOptions() ConsoleOptions {
	return ConsoleOptions{
		ShowAdapterLogs:        false,
		ShowAdapterLogsOnError: true,
	}
}

// ConsoleHooks prints run progress.
type ConsoleHooks struct {
	w       io.Writer
	options ConsoleOptions
	st      styles

	mu      sync.Mutex
	step    *loader.Step
	tests   int
	skipped int
	unknown int
}

// NewConsoleHooks creates console run hooks writing to w.
func NewConsoleHooks(w io.Writer, options ConsoleOptions) *ConsoleHooks {
	return &ConsoleHooks{w: w, options: options, st: newStyles(w)}
}

func (h *ConsoleHooks) Start(count int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tests = 0
	fmt.Fprintf(h.w, "Running %s\n", plural(count, "test"))
}

func (h *ConsoleHooks) Stop(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.w, "\nRan %s in %s\n", plural(h.tests, "test"), round(d))
}

func (h *ConsoleHooks) TestStart(name string, count int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tests++
	h.skipped, h.unknown = 0, 0
	fmt.Fprintf(h.w, "\n%s %s\n", h.st.title.Render(name), h.st.dim.Render("("+plural(count, "step")+")"))
}

func (h *ConsoleHooks) TestStop(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	summary := fmt.Sprintf("  completed in %s", round(d))
	if h.skipped > 0 {
		summary += fmt.Sprintf(", %d skipped", h.skipped)
	}
	if h.unknown > 0 {
		summary += fmt.Sprintf(", %d not executed", h.unknown)
	}
	fmt.Fprintln(h.w, h.st.dim.Render(summary))
}

func (h *ConsoleHooks) StepSkipped(step *loader.Step) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.skipped++
	fmt.Fprintf(h.w, "  %s %s %s\n", h.st.dim.Render(markSkipped), StepTitle(step),
		h.st.dim.Render("(skipped: "+step.PICS+")"))
}

func (h *ConsoleHooks) StepStart(step *loader.Step) {
	h.mu.Lock()
	h.step = step
	h.mu.Unlock()
}

func (h *ConsoleHooks) StepSuccess(outcome *assertions.Outcome, logs []wire.LogRecord, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mark := h.st.success.Render(markSuccess)
	if outcome.Warnings() > 0 {
		mark = h.st.warning.Render(markWarning)
	}
	fmt.Fprintf(h.w, "  %s %s %s\n", mark, StepTitle(h.step), h.st.dim.Render(round(d).String()))
	for _, msg := range outcome.Messages(assertions.SeverityWarning) {
		fmt.Fprintf(h.w, "      %s %s\n", h.st.warning.Render("warning:"), msg)
	}
	if h.options.ShowAdapterLogs {
		h.printLogs(logs)
	}
}

func (h *ConsoleHooks) StepFailure(outcome *assertions.Outcome, logs []wire.LogRecord, d time.Duration, expected []*loader.ExpectedResponse, received []wire.Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.w, "  %s %s %s\n", h.st.failure.Render(markFailure), StepTitle(h.step), h.st.dim.Render(round(d).String()))
	for _, msg := range outcome.Messages(assertions.SeverityError) {
		fmt.Fprintf(h.w, "      %s %s\n", h.st.failure.Render("error:"), msg)
	}
	for _, msg := range outcome.Messages(assertions.SeverityWarning) {
		fmt.Fprintf(h.w, "      %s %s\n", h.st.warning.Render("warning:"), msg)
	}
	for i, exp := range expected {
		fmt.Fprintf(h.w, "      expected[%d]: %s\n", i, formatExpected(exp))
	}
	for i, r := range received {
		fmt.Fprintf(h.w, "      received[%d]: %s\n", i, formatResponse(r))
	}
	if h.options.ShowAdapterLogs || h.options.ShowAdapterLogsOnError {
		h.printLogs(logs)
	}
}

func (h *ConsoleHooks) StepUnknown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unknown++
	fmt.Fprintf(h.w, "  %s %s\n", h.st.dim.Render(markUnknown), StepTitle(h.step))
}

func (h *ConsoleHooks) printLogs(logs []wire.LogRecord) {
	for _, rec := range logs {
		fmt.Fprintln(h.w, h.st.dim.Render(fmt.Sprintf("      [%s] %s: %s", rec.Module, rec.Level, rec.Message)))
	}
}

// ConsoleParserHooks prints parsing progress.
type ConsoleParserHooks struct {
	w  io.Writer
	st styles

	mu     sync.Mutex
	path   string
	failed int
}

// NewConsoleParserHooks creates console parser hooks writing to w.
func NewConsoleParserHooks(w io.Writer) *ConsoleParserHooks {
	return &ConsoleParserHooks{w: w, st: newStyles(w)}
}

func (h *ConsoleParserHooks) Start(count int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = 0
	fmt.Fprintf(h.w, "Parsing %s\n", plural(count, "file"))
}

func (h *ConsoleParserHooks) Stop(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failed > 0 {
		fmt.Fprintf(h.w, "%s in %s\n", h.st.failure.Render(plural(h.failed, "file")+" failed to parse"), round(d))
		return
	}
	fmt.Fprintf(h.w, "Parsed in %s\n", round(d))
}

func (h *ConsoleParserHooks) TestStart(path string) {
	h.mu.Lock()
	h.path = path
	h.mu.Unlock()
}

func (h *ConsoleParserHooks) TestFailure(err error, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed++
	fmt.Fprintf(h.w, "  %s %s %s\n", h.st.failure.Render(markFailure), h.path, h.st.dim.Render(round(d).String()))
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(h.w, "      %s\n", line)
	}
}

func (h *ConsoleParserHooks) TestSuccess(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.w, "  %s %s %s\n", h.st.success.Render(markSuccess), h.path, h.st.dim.Render(round(d).String()))
}

// ConsoleConnectionHooks prints transport connection attempts.
type ConsoleConnectionHooks struct {
	w  io.Writer
	st styles
}

// NewConsoleConnectionHooks creates console connection hooks writing to w.
func NewConsoleConnectionHooks(w io.Writer) *ConsoleConnectionHooks {
	return &ConsoleConnectionHooks{w: w, st: newStyles(w)}
}

func (h *ConsoleConnectionHooks) Connecting(url string) {
	fmt.Fprintf(h.w, "Connecting to %s\n", url)
}

func (h *ConsoleConnectionHooks) Success(d time.Duration) {
	fmt.Fprintf(h.w, "  %s connected %s\n", h.st.success.Render(markSuccess), h.st.dim.Render(round(d).String()))
}

func (h *ConsoleConnectionHooks) Failure(d time.Duration) {
	fmt.Fprintf(h.w, "  %s connection failed %s\n", h.st.failure.Render(markFailure), h.st.dim.Render(round(d).String()))
}

func (h *ConsoleConnectionHooks) Retry(interval time.Duration) {
	fmt.Fprintf(h.w, "  retrying in %s\n", interval)
}

func (h *ConsoleConnectionHooks) Abort(url string) {
	fmt.Fprintf(h.w, "  %s giving up on %s\n", h.st.failure.Render(markFailure), url)
}

// StepTitle returns the label of a step, or its interaction when the
// step has no label.
func StepTitle(step *loader.Step) string {
	if step == nil {
		return ""
	}
	if step.Label != "" {
		return step.Label
	}
	switch {
	case step.Attribute != "":
		return fmt.Sprintf("%s %s.%s", step.Command, step.Cluster, step.Attribute)
	case step.Event != "":
		return fmt.Sprintf("%s %s.%s", step.Command, step.Cluster, step.Event)
	default:
		return step.Cluster + "." + step.Command
	}
}

func formatExpected(exp *loader.ExpectedResponse) string {
	var parts []string
	if exp.Error != "" {
		parts = append(parts, "error="+exp.Error)
	}
	for _, v := range exp.Values {
		if !v.HasValue {
			continue
		}
		if v.Name != "" {
			parts = append(parts, v.Name+"="+v.Value.String())
		} else {
			parts = append(parts, "value="+v.Value.String())
		}
	}
	if len(parts) == 0 {
		return "success"
	}
	return strings.Join(parts, " ")
}

func formatResponse(r wire.Response) string {
	var parts []string
	if r.Error != "" {
		parts = append(parts, "error="+r.Error)
	}
	if r.HasValue {
		parts = append(parts, "value="+r.Value.String())
	}
	if len(parts) == 0 {
		return "success"
	}
	return strings.Join(parts, " ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

// Compile-time interface satisfaction checks.
var (
	_ engine.Hooks              = (*ConsoleHooks)(nil)
	_ loader.ParserHooks        = (*ConsoleParserHooks)(nil)
	_ transport.ConnectionHooks = (*ConsoleConnectionHooks)(nil)
)
