// Package assertions compares received step responses against the
// expectations of a test file and records the findings in an Outcome.
package assertions

import (
	"fmt"

	"github.com/matter-conformance/yamltests/pkg/value"
)

// Result represents the outcome of a single assertion.
type Result struct {
	// Passed indicates if the assertion passed.
	Passed bool

	// Message describes the assertion result.
	Message string

	// Expected is the expected value (for error messages).
	Expected value.Value

	// Actual is the actual value (for error messages).
	Actual value.Value
}

// Pass creates a passing result.
func Pass(message string) *Result {
	return &Result{Passed: true, Message: message}
}

// Fail creates a failing result.
func Fail(message string, expected, actual value.Value) *Result {
	return &Result{
		Passed:   false,
		Message:  message,
		Expected: expected,
		Actual:   actual,
	}
}

// Equal asserts that actual matches expected. Maps match when every
// expected key is present in actual with a matching value; extra keys in
// actual are allowed. Lists must have the same length and match element
// by element. Numbers compare by numeric value. A string expected where
// a byte string was received compares as its UTF-8 encoding.
func Equal(expected, actual value.Value) *Result {
	if ok, msg := match(expected, actual, ""); !ok {
		return Fail(msg, expected, actual)
	}
	return Pass(fmt.Sprintf("value is %s", expected))
}

func match(expected, actual value.Value, path string) (bool, string) {
	switch expected.Kind() {
	case value.KindMap:
		em, _ := expected.AsMap()
		am, ok := actual.AsMap()
		if !ok {
			return false, fmt.Sprintf("%sexpected a struct, got %s", at(path), actual)
		}
		for _, k := range em.Keys() {
			ev, _ := em.Get(k)
			av, has := am.Get(k)
			if !has {
				return false, fmt.Sprintf("%smissing field %q", at(path), k)
			}
			if ok, msg := match(ev, av, path+"."+k); !ok {
				return false, msg
			}
		}
		return true, ""
	case value.KindList:
		el, _ := expected.AsList()
		al, ok := actual.AsList()
		if !ok {
			return false, fmt.Sprintf("%sexpected a list, got %s", at(path), actual)
		}
		if len(el) != len(al) {
			return false, fmt.Sprintf("%sexpected %d items, got %d", at(path), len(el), len(al))
		}
		for i := range el {
			if ok, msg := match(el[i], al[i], fmt.Sprintf("%s[%d]", path, i)); !ok {
				return false, msg
			}
		}
		return true, ""
	}
	if !scalarEqual(expected, actual) {
		return false, fmt.Sprintf("%sexpected %s, got %s", at(path), expected, actual)
	}
	return true, ""
}

// scalarEqual is value.Equal, except that test files write octet strings
// as plain strings.
func scalarEqual(expected, actual value.Value) bool {
	if s, ok := expected.AsString(); ok && actual.Kind() == value.KindBytes {
		expected = value.Bytes([]byte(s))
	}
	return value.Equal(expected, actual)
}

func at(path string) string {
	if path == "" {
		return ""
	}
	return path + ": "
}

// NotEqual asserts that actual does not match expected.
func NotEqual(expected, actual value.Value) *Result {
	if r := Equal(expected, actual); r.Passed {
		return Fail(fmt.Sprintf("value should not be %s", expected), expected, actual)
	}
	return Pass(fmt.Sprintf("value is not %s", expected))
}

// InRange asserts that a numeric value is within [min, max]. A null
// bound is open.
func InRange(v, min, max value.Value) *Result {
	f, ok := v.AsFloat()
	if !ok {
		return Fail(fmt.Sprintf("%s is not numeric", v), min, v)
	}
	if lo, ok := min.AsFloat(); ok && f < lo {
		return Fail(fmt.Sprintf("%s is below the minimum %s", v, min), min, v)
	}
	if hi, ok := max.AsFloat(); ok && f > hi {
		return Fail(fmt.Sprintf("%s is above the maximum %s", v, max), max, v)
	}
	return Pass(fmt.Sprintf("%s is in range", v))
}

// Contains asserts that a list contains element.
func Contains(list, element value.Value) *Result {
	elems, ok := list.AsList()
	if !ok {
		return Fail("value is not a list", element, list)
	}
	for _, e := range elems {
		if scalarEqual(element, e) {
			return Pass(fmt.Sprintf("list contains %s", element))
		}
	}
	return Fail(fmt.Sprintf("list does not contain %s", element), element, list)
}

// Excludes asserts that a list does not contain element.
func Excludes(list, element value.Value) *Result {
	if r := Contains(list, element); r.Passed {
		return Fail(fmt.Sprintf("list should not contain %s", element), element, list)
	}
	return Pass(fmt.Sprintf("list does not contain %s", element))
}

// Len asserts that a string, byte string or list length is within
// [min, max]. A negative bound is open.
func Len(v value.Value, min, max int) *Result {
	switch v.Kind() {
	case value.KindString, value.KindBytes, value.KindList:
	default:
		return Fail(fmt.Sprintf("%s has no length", v), value.Null(), v)
	}
	n := v.Len()
	if min >= 0 && n < min {
		return Fail(fmt.Sprintf("length %d is below the minimum %d", n, min), value.Int(int64(min)), value.Int(int64(n)))
	}
	if max >= 0 && n > max {
		return Fail(fmt.Sprintf("length %d is above the maximum %d", n, max), value.Int(int64(max)), value.Int(int64(n)))
	}
	return Pass(fmt.Sprintf("length is %d", n))
}
