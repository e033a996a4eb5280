// Package log provides the structured run trace of the test harness.
//
// This package defines the Logger interface and Event types for capturing
// what happened during a run: test and step lifecycle, request and
// response payloads, adapter log lines and transport connection attempts.
// It is separate from operational logging (slog). The trace is a
// machine-readable record meant for debugging and later analysis.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For CI: write to binary file
//	logger, _ := log.NewFileLogger("run.ylog")
//
//	// Both: use MultiLogger
//	logger := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Every event carries the run id and, inside a test, the test name and
// step number. The payload is one of:
//   - Lifecycle: run, test and step transitions with outcome counters
//   - Payload: encoded requests and raw responses
//   - AdapterLog: log records emitted by the adapter's backend
//   - Connection: transport connection attempts and retries
//   - Error: errors at any layer
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events with the .ylog
// extension. The yamltest trace command reads and filters them.
package log
