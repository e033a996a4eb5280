package wire

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/matter-conformance/yamltests/pkg/value"
)

// Terminal markers ending the payload stream of one request.
const (
	MarkerSuccess = "success"
	MarkerFailure = "failure"
)

// IsTerminal reports whether payload is a terminal marker.
func IsTerminal(payload string) bool {
	return payload == MarkerSuccess || payload == MarkerFailure
}

// Response is one decoded step result.
type Response struct {
	Cluster   string
	Endpoint  *uint16
	Command   string
	Attribute string
	Event     string

	Value    value.Value
	HasValue bool

	// Error is the interaction status name, empty on success.
	Error        string
	ClusterError *uint8
}

// SetValue stores v as the response value.
func (r *Response) SetValue(v value.Value) {
	r.Value = v
	r.HasValue = true
}

// IsError reports whether the response carries a non-success status.
func (r *Response) IsError() bool {
	return r.Error != "" && r.Error != StatusSuccess.String()
}

// ToValue renders the response as an ordered map for display and traces.
func (r *Response) ToValue() value.Value {
	m := value.NewMap()
	if r.Cluster != "" {
		m.Set("cluster", value.String(r.Cluster))
	}
	if r.Endpoint != nil {
		m.Set("endpoint", value.Uint(uint64(*r.Endpoint)))
	}
	switch {
	case r.Command != "":
		m.Set("command", value.String(r.Command))
	case r.Attribute != "":
		m.Set("attribute", value.String(r.Attribute))
	case r.Event != "":
		m.Set("event", value.String(r.Event))
	}
	if r.HasValue {
		m.Set("value", r.Value)
	}
	if r.Error != "" {
		m.Set("error", value.String(r.Error))
	}
	if r.ClusterError != nil {
		m.Set("clusterError", value.Uint(uint64(*r.ClusterError)))
	}
	return value.FromMap(m)
}

// LogRecord is one log line emitted by the adapter's backend.
type LogRecord struct {
	Module  string `cbor:"1,keyasint" json:"module"`
	Level   string `cbor:"2,keyasint" json:"level"`
	Message string `cbor:"3,keyasint" json:"message"`
}

// DecodeLogRecord builds a LogRecord from its wire form, where the message
// is base64-encoded UTF-8 text.
func DecodeLogRecord(module, level, encoded string) (LogRecord, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return LogRecord{}, fmt.Errorf("log message of module %s: %w", module, err)
	}
	if !utf8.Valid(raw) {
		return LogRecord{}, fmt.Errorf("log message of module %s is not valid UTF-8", module)
	}
	return LogRecord{Module: module, Level: level, Message: string(raw)}, nil
}

// String formats the record as "[module] level: message".
func (l LogRecord) String() string {
	return fmt.Sprintf("[%s] %s: %s", l.Module, l.Level, l.Message)
}
