// Package transport carries encoded step requests to the device under test
// and returns the raw response payloads.
//
// Two implementations are provided:
//   - WebSocket: a persistent connection to an interactive server, optionally
//     launched by the transport itself, established with a bounded retry
//     budget and reported through ConnectionHooks
//   - Subprocess: one command invocation per request, each output line
//     being one payload
//
// # Request Protocol
//
// A request is an opaque string produced by an adapter. The exchange is
// strictly send-then-receive:
//
//	request != ""  send, then receive until a payload equals "success" or "failure"
//	request == ""  send nothing, return after the first payload
//
// The second form waits for an unsolicited report. Only one request is in
// flight at a time.
package transport
