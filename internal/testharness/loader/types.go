// Package loader parses YAML test files into ordered step descriptors.
package loader

import (
	"strconv"
	"time"

	"github.com/matter-conformance/yamltests/pkg/value"
)

// Default identity and endpoint applied when neither the step nor the
// config section sets one.
const (
	DefaultIdentity = "alpha"
	DefaultEndpoint = 1
)

// TestFile is one parsed test file.
type TestFile struct {
	// Name is the human-readable name from the file's name key.
	Name string

	// Path is the file the test was loaded from (empty for in-memory data).
	Path string

	// PICS is the file-level gate expression.
	PICS string

	// Config holds config variables after CLI overrides, in file order.
	Config *value.Map

	// Steps are the enabled and disabled-by-PICS steps, in file order.
	// Steps marked disabled are dropped while parsing.
	Steps []*Step
}

// Count returns the number of steps.
func (f *TestFile) Count() int {
	return len(f.Steps)
}

// Argument is one named command argument.
type Argument struct {
	Name  string
	Value value.Value
}

// Step is one test step descriptor.
type Step struct {
	// Index is the 0-based position in the file after disabled steps are dropped.
	Index int

	Label    string
	Identity string
	NodeID   uint64
	GroupID  uint16

	Cluster   string
	Command   string
	Attribute string
	Event     string
	Endpoint  uint16

	// Arguments holds command arguments, or a single "value" entry for
	// attribute writes.
	Arguments []Argument

	// PICS is the raw gate expression; Enabled is its evaluation against
	// the feature table at parse time.
	PICS    string
	Enabled bool

	// Responses are the expected responses, in order.
	Responses []*ExpectedResponse

	MinInterval               *uint64
	MaxInterval               *uint64
	TimedInteractionTimeoutMs *uint64
	BusyWaitMs                *uint64
	FabricFiltered            *bool

	// Timeout bounds the step (0 = runner default).
	Timeout time.Duration
}

// IsAttribute reports whether the step is an attribute interaction.
func (s *Step) IsAttribute() bool {
	return s.Attribute != ""
}

// IsEvent reports whether the step is an event interaction.
func (s *Step) IsEvent() bool {
	return s.Event != ""
}

// Argument returns the argument with the given name.
func (s *Step) Argument(name string) (value.Value, bool) {
	for _, a := range s.Arguments {
		if a.Name == name {
			return a.Value, true
		}
	}
	return value.Value{}, false
}

// ExpectedResponse is one expected response of a step.
type ExpectedResponse struct {
	// Values are the expected values. For attribute and event steps
	// there is a single unnamed entry; for commands each entry names a
	// response field.
	Values []*ExpectedValue

	// Error is the expected status name, empty for success.
	Error string

	// ClusterError is the expected cluster-specific status.
	ClusterError *uint8
}

// ExpectedValue is one expected value with optional constraints.
type ExpectedValue struct {
	// Name is the response field name, empty for attribute values.
	Name string

	Value    value.Value
	HasValue bool

	// Constraints are checked in declaration order.
	Constraints *value.Map

	// SaveAs stores the received value under this variable name.
	SaveAs string
}

// LoadError provides details about a test file loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Line is the line number where the error occurred (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	switch {
	case e.File != "" && e.Line > 0:
		return e.File + ":" + strconv.Itoa(e.Line) + ": " + msg
	case e.File != "":
		return e.File + ": " + msg
	case e.Line > 0:
		return "line " + strconv.Itoa(e.Line) + ": " + msg
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
