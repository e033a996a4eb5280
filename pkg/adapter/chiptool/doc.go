// Package chiptool implements the reference adapter for a controller CLI
// that accepts JSON-framed commands and reports results as JSON.
//
// # Requests
//
// A step is encoded as a single line:
//
//	json:{ "cluster": "onoff", "command": "read", "arguments" : "base64:...", "command_specifier": "on-off" }
//
// The arguments are a JSON object, base64-encoded, holding the destination
// node or group, the endpoint and the step's command arguments. Cluster
// and command names are rewritten into the CLI's kebab-case vocabulary.
//
// # Responses
//
// Each payload carries a JSON envelope:
//
//	{"results": [{"clusterId": 6, "endpointId": 1, "attributeId": 0, "value": true}], "logs": [...]}
//
// Numeric identifiers are translated into names through the definitions
// registry and values are converted into their symbolic shape with the
// codec. Log messages are base64-encoded UTF-8.
package chiptool
