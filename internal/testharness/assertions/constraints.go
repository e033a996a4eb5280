package assertions

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/value"
)

// Constraint names accepted under a response value's constraints key.
const (
	ConstraintHasValue      = "hasValue"
	ConstraintType          = "type"
	ConstraintMinLength     = "minLength"
	ConstraintMaxLength     = "maxLength"
	ConstraintIsHexString   = "isHexString"
	ConstraintStartsWith    = "startsWith"
	ConstraintEndsWith      = "endsWith"
	ConstraintIsUpperCase   = "isUpperCase"
	ConstraintIsLowerCase   = "isLowerCase"
	ConstraintMinValue      = "minValue"
	ConstraintMaxValue      = "maxValue"
	ConstraintNotValue      = "notValue"
	ConstraintContains      = "contains"
	ConstraintExcludes      = "excludes"
	ConstraintHasMasksSet   = "hasMasksSet"
	ConstraintHasMasksClear = "hasMasksClear"
	ConstraintAnyOf         = "anyOf"
	ConstraintExpression    = "expression"
)

// CheckConstraints evaluates every constraint in declaration order against
// the received value. has reports whether the value was present at all.
// A null value satisfies the range, length and string constraints; a
// nullable field that is null has nothing to measure.
func CheckConstraints(constraints *value.Map, received value.Value, has bool, vars loader.Variables) []*Result {
	if constraints == nil {
		return nil
	}
	var results []*Result
	for _, name := range constraints.Keys() {
		arg, _ := constraints.Get(name)
		results = append(results, checkConstraint(name, arg, received, has, vars))
	}
	return results
}

func checkConstraint(name string, arg, v value.Value, has bool, vars loader.Variables) *Result {
	if name == ConstraintHasValue {
		want, ok := arg.AsBool()
		if !ok {
			return Fail(fmt.Sprintf("%s expects a boolean, got %s", name, arg), arg, v)
		}
		if want != has {
			return Fail(fmt.Sprintf("hasValue: expected %t, got %t", want, has), arg, value.Bool(has))
		}
		return Pass(fmt.Sprintf("hasValue is %t", has))
	}
	if !has {
		return Fail(fmt.Sprintf("%s: no value received", name), arg, v)
	}

	switch name {
	case ConstraintType:
		typeName, _ := arg.AsString()
		if !hasType(typeName, v) {
			return Fail(fmt.Sprintf("type: %s is not of type %s", v, typeName), arg, v)
		}
		return Pass(fmt.Sprintf("value is of type %s", typeName))

	case ConstraintNotValue:
		return NotEqual(arg, v)

	case ConstraintAnyOf:
		options, ok := arg.AsList()
		if !ok {
			return Fail(fmt.Sprintf("%s expects a list, got %s", name, arg), arg, v)
		}
		for _, o := range options {
			if scalarEqual(o, v) {
				return Pass(fmt.Sprintf("value %s is one of %s", v, arg))
			}
		}
		return Fail(fmt.Sprintf("anyOf: %s is not one of %s", v, arg), arg, v)

	case ConstraintExpression:
		return checkExpression(arg, v, vars)
	}

	if v.IsNull() {
		return Pass(fmt.Sprintf("%s: null value", name))
	}

	switch name {
	case ConstraintMinLength, ConstraintMaxLength:
		n, ok := arg.AsInt()
		if !ok {
			return Fail(fmt.Sprintf("%s expects an integer, got %s", name, arg), arg, v)
		}
		if name == ConstraintMinLength {
			return Len(v, int(n), -1)
		}
		return Len(v, -1, int(n))

	case ConstraintMinValue:
		return InRange(v, arg, value.Null())

	case ConstraintMaxValue:
		return InRange(v, value.Null(), arg)

	case ConstraintIsHexString, ConstraintIsUpperCase, ConstraintIsLowerCase:
		want, ok := arg.AsBool()
		if !ok {
			return Fail(fmt.Sprintf("%s expects a boolean, got %s", name, arg), arg, v)
		}
		s, ok := v.AsString()
		if !ok {
			return Fail(fmt.Sprintf("%s: %s is not a string", name, v), arg, v)
		}
		var got bool
		switch name {
		case ConstraintIsHexString:
			_, err := hex.DecodeString(s)
			got = err == nil
		case ConstraintIsUpperCase:
			got = s == strings.ToUpper(s)
		case ConstraintIsLowerCase:
			got = s == strings.ToLower(s)
		}
		if got != want {
			return Fail(fmt.Sprintf("%s: expected %t for %s", name, want, v), arg, v)
		}
		return Pass(fmt.Sprintf("%s is %t", name, want))

	case ConstraintStartsWith, ConstraintEndsWith:
		affix, ok := arg.AsString()
		if !ok {
			return Fail(fmt.Sprintf("%s expects a string, got %s", name, arg), arg, v)
		}
		s, ok := v.AsString()
		if !ok {
			return Fail(fmt.Sprintf("%s: %s is not a string", name, v), arg, v)
		}
		if (name == ConstraintStartsWith && !strings.HasPrefix(s, affix)) ||
			(name == ConstraintEndsWith && !strings.HasSuffix(s, affix)) {
			return Fail(fmt.Sprintf("%s: %s does not match %s", name, v, arg), arg, v)
		}
		return Pass(fmt.Sprintf("%s %s", name, arg))

	case ConstraintContains, ConstraintExcludes:
		elems, ok := arg.AsList()
		if !ok {
			elems = []value.Value{arg}
		}
		for _, e := range elems {
			var r *Result
			if name == ConstraintContains {
				r = Contains(v, e)
			} else {
				r = Excludes(v, e)
			}
			if !r.Passed {
				return r
			}
		}
		return Pass(fmt.Sprintf("%s %s", name, arg))

	case ConstraintHasMasksSet, ConstraintHasMasksClear:
		return checkMasks(name, arg, v)
	}

	return Fail(fmt.Sprintf("unknown constraint %q", name), arg, v)
}

func checkMasks(name string, arg, v value.Value) *Result {
	bits, ok := v.AsUint()
	if !ok {
		return Fail(fmt.Sprintf("%s: %s is not a bitmap", name, v), arg, v)
	}
	masks, ok := arg.AsList()
	if !ok {
		masks = []value.Value{arg}
	}
	for _, m := range masks {
		mask, ok := m.AsUint()
		if !ok {
			return Fail(fmt.Sprintf("%s: mask %s is not an unsigned integer", name, m), arg, v)
		}
		set := bits&mask == mask
		cleared := bits&mask == 0
		if (name == ConstraintHasMasksSet && !set) || (name == ConstraintHasMasksClear && !cleared) {
			return Fail(fmt.Sprintf("%s: mask 0x%x does not hold for 0x%x", name, mask, bits), arg, v)
		}
	}
	return Pass(fmt.Sprintf("%s %s", name, arg))
}

// checkExpression evaluates a boolean expression in which "value" is the
// received value and saved variables are available by name.
func checkExpression(arg, v value.Value, vars loader.Variables) *Result {
	src, ok := arg.AsString()
	if !ok {
		return Fail(fmt.Sprintf("expression must be a string, got %s", arg), arg, v)
	}
	env := make(map[string]any, len(vars)+1)
	for k, vv := range vars {
		env[k] = value.ToAny(vv)
	}
	env["value"] = value.ToAny(v)

	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return Fail(fmt.Sprintf("compile expression %q: %v", src, err), arg, v)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return Fail(fmt.Sprintf("eval expression %q: %v", src, err), arg, v)
	}
	if ok, _ := out.(bool); !ok {
		return Fail(fmt.Sprintf("expression %q is false for %s", src, v), arg, v)
	}
	return Pass(fmt.Sprintf("expression %q holds", src))
}

// hasType checks v against a data type name. Integer types are checked for
// range; unknown type names are accepted.
func hasType(typeName string, v value.Value) bool {
	t := strings.ToLower(typeName)
	if v.IsNull() {
		return true
	}
	switch t {
	case "boolean":
		return v.Kind() == value.KindBool
	case "char_string", "long_char_string":
		return v.Kind() == value.KindString
	case "octet_string", "long_octet_string":
		return v.Kind() == value.KindBytes
	case "list":
		return v.IsList()
	case "single", "double":
		return v.IsNumber()
	}
	if strings.HasSuffix(t, "struct") {
		return v.IsMap()
	}
	if bits, signed, ok := integerType(t); ok {
		return inIntegerRange(v, bits, signed)
	}
	return true
}

// integerType maps integer-like type names to their width.
func integerType(t string) (bits int, signed, ok bool) {
	for _, p := range []string{"enum", "bitmap"} {
		if rest, found := strings.CutPrefix(t, p); found {
			n, err := strconv.Atoi(rest)
			return n, false, err == nil
		}
	}
	rest, found := strings.CutPrefix(t, "int")
	if !found || len(rest) < 2 {
		return 0, false, false
	}
	suffix := rest[len(rest)-1]
	n, err := strconv.Atoi(rest[:len(rest)-1])
	if err != nil || (suffix != 'u' && suffix != 's') {
		return 0, false, false
	}
	return n, suffix == 's', true
}

func inIntegerRange(v value.Value, bits int, signed bool) bool {
	if bits <= 0 || bits > 64 {
		return false
	}
	if signed {
		i, ok := v.AsInt()
		if !ok {
			return false
		}
		if bits == 64 {
			return true
		}
		limit := int64(1) << (bits - 1)
		return i >= -limit && i < limit
	}
	u, ok := v.AsUint()
	if !ok {
		return false
	}
	if bits == 64 {
		return true
	}
	return u <= uint64(math.MaxUint64)>>(64-bits)
}
