// Package pics loads PICS (Protocol Implementation Conformance Statement)
// tables and evaluates the gating expressions attached to test steps.
//
// A PICS table maps feature codes to an enabled flag. The harness uses it
// to decide whether a step applies to the device under test.
//
// # Table Formats
//
// The key=value format has one entry per line:
//
//	# OnOff server
//	OO.S=1
//	OO.S.A0000=1
//	OO.S.F00=0
//
// Every control character and every space is removed from a line before
// parsing, and the line is lowercased. Lines starting with '#' are
// comments. An entry is enabled only when its value is exactly "1".
//
// The YAML format carries the same entries under an items mapping:
//
//	items:
//	  OO.S: 1
//	  OO.S.F00: false
//
// # Expressions
//
// Expressions combine codes with '&&', '||', '!' and parentheses:
//
//	OO.S.F00 && !(OO.S.A4003 || OO.S.A4001)
//
// Binary operators are evaluated left to right with no precedence between
// them. A '!' negates everything that follows it up to the closing
// parenthesis of the enclosing group. Codes are looked up
// case-insensitively and a code missing from the table is disabled, so a
// table may list enabled features only.
//
// A single '&' or '|' does not form an operator. It stays part of the
// surrounding code, so "A&B" is one code and "A&B&&C" reads as the codes
// "A&B" and "C".
package pics
