package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matter-conformance/yamltests/pkg/log"
)

const timestampFormat = "2006-01-02T15:04:05.000000Z"

type traceFilter struct {
	run       string
	test      string
	category  string
	direction string
}

func (f *traceFilter) addFlags(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.run, "run", "", "Only show events of this run id")
	fl.StringVar(&f.test, "test", "", "Only show events of this test")
	fl.StringVar(&f.category, "category", "", "Only show LIFECYCLE, PAYLOAD, ADAPTER_LOG, CONNECTION or ERROR events")
	fl.StringVar(&f.direction, "direction", "", "Only show IN or OUT payloads")
}

func (f *traceFilter) build() (log.Filter, error) {
	filter := log.Filter{RunID: f.run, Test: f.test}
	if f.category != "" {
		c, ok := log.ParseCategory(strings.ToUpper(f.category))
		if !ok {
			return filter, fmt.Errorf("invalid category: %s", f.category)
		}
		filter.Category = &c
	}
	if f.direction != "" {
		d, err := parseDirection(f.direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	return filter, nil
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect trace files written with --trace",
	}
	cmd.AddCommand(newTraceViewCmd(), newTraceExportCmd(), newTraceStatsCmd())
	return cmd
}

func newTraceViewCmd() *cobra.Command {
	f := &traceFilter{}
	cmd := &cobra.Command{
		Use:   "view <file" + log.FileExtension + ">",
		Short: "Print the events of a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := f.build()
			if err != nil {
				return err
			}
			return eachEvent(args[0], filter, func(e log.Event) error {
				formatEvent(cmd.OutOrStdout(), e)
				return nil
			})
		},
	}
	f.addFlags(cmd)
	return cmd
}

func newTraceExportCmd() *cobra.Command {
	f := &traceFilter{}
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <file" + log.FileExtension + ">",
		Short: "Convert a trace to JSON lines or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := f.build()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				w = file
			}
			switch format {
			case "jsonl":
				enc := json.NewEncoder(w)
				return eachEvent(args[0], filter, func(e log.Event) error {
					return enc.Encode(e)
				})
			case "csv":
				return exportCSV(args[0], filter, w)
			default:
				return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
			}
		},
	}
	f.addFlags(cmd)
	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format: jsonl or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func newTraceStatsCmd() *cobra.Command {
	f := &traceFilter{}
	cmd := &cobra.Command{
		Use:   "stats <file" + log.FileExtension + ">",
		Short: "Summarize a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := f.build()
			if err != nil {
				return err
			}
			stats := newTraceStats()
			if err := eachEvent(args[0], filter, func(e log.Event) error {
				stats.add(e)
				return nil
			}); err != nil {
				return err
			}
			stats.print(cmd.OutOrStdout())
			return nil
		},
	}
	f.addFlags(cmd)
	return cmd
}

// eachEvent calls fn for every event of the trace at path that matches
// filter.
func eachEvent(path string, filter log.Filter, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer reader.Close()

	for event, err := range reader.Events() {
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, e log.Event) {
	fmt.Fprintf(w, "%s [run:%s] %-3s %s", e.Timestamp.UTC().Format(timestampFormat), shortID(e.RunID), e.Direction, e.Category)
	if e.Test != "" {
		fmt.Fprintf(w, " %s", e.Test)
		if e.Step > 0 {
			fmt.Fprintf(w, "#%d", e.Step)
		}
	}
	fmt.Fprintln(w)

	switch {
	case e.Lifecycle != nil:
		l := e.Lifecycle
		fmt.Fprintf(w, "  %s", l.Phase)
		if l.Label != "" {
			fmt.Fprintf(w, " %q", l.Label)
		}
		if l.Count > 0 {
			fmt.Fprintf(w, " count=%d", l.Count)
		}
		if l.Duration > 0 {
			fmt.Fprintf(w, " duration=%s", formatDuration(l.Duration))
		}
		if l.Successes+l.Warnings+l.Errors > 0 {
			fmt.Fprintf(w, " ok=%d warnings=%d errors=%d", l.Successes, l.Warnings, l.Errors)
		}
		fmt.Fprintln(w)
		for _, m := range l.Messages {
			fmt.Fprintf(w, "  - %s\n", m)
		}
	case e.Payload != nil:
		fmt.Fprintf(w, "  Size: %d bytes\n", e.Payload.Size)
		if e.Payload.Data != "" {
			fmt.Fprintf(w, "  Data: %s", e.Payload.Data)
			if e.Payload.Truncated {
				fmt.Fprint(w, " (truncated)")
			}
			fmt.Fprintln(w)
		}
	case e.AdapterLog != nil:
		fmt.Fprintf(w, "  [%s] %s: %s\n", e.AdapterLog.Module, e.AdapterLog.Level, e.AdapterLog.Message)
	case e.Connection != nil:
		c := e.Connection
		fmt.Fprintf(w, "  %s", c.State)
		if c.URL != "" {
			fmt.Fprintf(w, " %s", c.URL)
		}
		if c.Duration > 0 {
			fmt.Fprintf(w, " after %s", formatDuration(c.Duration))
		}
		if c.Interval > 0 {
			fmt.Fprintf(w, " next in %s", formatDuration(c.Interval))
		}
		fmt.Fprintln(w)
	case e.Error != nil:
		fmt.Fprintf(w, "  Message: %s\n", e.Error.Message)
		if e.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", e.Error.Context)
		}
	}
	fmt.Fprintln(w)
}

func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func exportCSV(path string, filter log.Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"timestamp", "run_id", "test", "step", "category", "direction", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	err := eachEvent(path, filter, func(e log.Event) error {
		step := ""
		if e.Step > 0 {
			step = strconv.Itoa(e.Step)
		}
		row := []string{
			e.Timestamp.UTC().Format(timestampFormat),
			e.RunID,
			e.Test,
			step,
			e.Category.String(),
			e.Direction.String(),
			eventDetail(e),
		}
		return cw.Write(row)
	})
	cw.Flush()
	if err != nil {
		return err
	}
	return cw.Error()
}

// eventDetail returns a one-line summary of the event payload.
func eventDetail(e log.Event) string {
	switch {
	case e.Lifecycle != nil:
		return e.Lifecycle.Phase.String()
	case e.Payload != nil:
		return e.Payload.Data
	case e.AdapterLog != nil:
		return e.AdapterLog.Module + " " + e.AdapterLog.Level + ": " + e.AdapterLog.Message
	case e.Connection != nil:
		return e.Connection.State.String()
	case e.Error != nil:
		return e.Error.Message
	}
	return ""
}

// traceStats holds aggregate statistics about a trace.
type traceStats struct {
	total      int
	byCategory map[log.Category]int
	byPhase    map[log.Phase]int
	tests      map[string]*testStats
	errors     int
	start, end time.Time
}

type testStats struct {
	first  time.Time
	steps  int
	failed int
}

func newTraceStats() *traceStats {
	return &traceStats{
		byCategory: make(map[log.Category]int),
		byPhase:    make(map[log.Phase]int),
		tests:      make(map[string]*testStats),
	}
}

func (s *traceStats) add(e log.Event) {
	s.total++
	s.byCategory[e.Category]++
	if s.start.IsZero() || e.Timestamp.Before(s.start) {
		s.start = e.Timestamp
	}
	if e.Timestamp.After(s.end) {
		s.end = e.Timestamp
	}
	if e.Error != nil {
		s.errors++
	}
	if e.Lifecycle == nil {
		return
	}
	s.byPhase[e.Lifecycle.Phase]++
	if e.Test == "" {
		return
	}
	ts, ok := s.tests[e.Test]
	if !ok {
		ts = &testStats{first: e.Timestamp}
		s.tests[e.Test] = ts
	}
	switch e.Lifecycle.Phase {
	case log.PhaseStepStart:
		ts.steps++
	case log.PhaseStepFailure:
		ts.failed++
	}
}

func (s *traceStats) print(w io.Writer) {
	fmt.Fprintln(w, "=== Trace Statistics ===")
	fmt.Fprintln(w)

	if s.total > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n", s.start.Format(time.RFC3339), s.end.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", s.end.Sub(s.start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total Events: %d\n", s.total)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for c := log.CategoryLifecycle; c <= log.CategoryError; c++ {
		if n := s.byCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", c.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	if len(s.byPhase) > 0 {
		fmt.Fprintln(w, "Lifecycle:")
		for p := log.PhaseRunStart; p <= log.PhaseStepUnknown; p++ {
			if n := s.byPhase[p]; n > 0 {
				fmt.Fprintf(w, "  %-14s %d\n", p.String()+":", n)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Tests: %d\n", len(s.tests))
	names := make([]string, 0, len(s.tests))
	for name := range s.tests {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return s.tests[names[i]].first.Before(s.tests[names[j]].first)
	})
	for _, name := range names {
		ts := s.tests[name]
		fmt.Fprintf(w, "  %s: %d steps, %d failed\n", name, ts.steps, ts.failed)
	}

	if s.errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", s.errors)
	}
}
