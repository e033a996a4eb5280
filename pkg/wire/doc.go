// Package wire defines the records exchanged with a device-under-test
// adapter and the CBOR helpers used to persist them.
//
// # Responses
//
// A Response is one decoded result of a step: the cluster and endpoint it
// came from, the command, attribute or event it refers to, and either a
// value or an error status. Values are value.Value trees; after decoding
// through the codec they carry symbolic field names.
//
// # Terminal Markers
//
// Streaming transports end the payloads of one request with a literal
// "success" or "failure" marker. See IsTerminal.
//
// # Nullable vs Absent
//
// A Response distinguishes a missing value (HasValue false) from an
// explicit null value (HasValue true, Value null).
package wire
