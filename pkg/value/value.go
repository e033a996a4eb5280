// Package value defines the dynamically-typed value tree exchanged between
// the wire side (numeric field codes) and the symbolic side (field names).
//
// A Value is a tagged union. Scalars are null, bool, signed and unsigned
// integers, floats, strings and byte strings. Containers are ordered lists
// and ordered maps with string keys. On the wire side map keys are field
// codes rendered in decimal ("0", "254"); on the symbolic side they are
// field names.
package value

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a node of the value tree. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	raw  []byte
	list []Value
	m    *Map
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a signed integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Uint returns an unsigned integer value.
func Uint(u uint64) Value { return Value{kind: KindUint, u: u} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes returns a byte string value. A nil slice is stored as empty bytes.
func Bytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBytes, raw: b}
}

// List returns a list value holding the given elements.
func List(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindList, list: elems}
}

// FromMap wraps an ordered map. A nil map becomes an empty map.
func FromMap(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsList reports whether v is a list.
func (v Value) IsList() bool { return v.kind == KindList }

// IsMap reports whether v is a map.
func (v Value) IsMap() bool { return v.kind == KindMap }

// IsNumber reports whether v is an integer or a float.
func (v Value) IsNumber() bool {
	return v.kind == KindInt || v.kind == KindUint || v.kind == KindFloat
}

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBytes returns the byte string held by v.
func (v Value) AsBytes() ([]byte, bool) { return v.raw, v.kind == KindBytes }

// AsList returns the elements of a list value. The slice is shared.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the map of a map value. The map is shared.
func (v Value) AsMap() (*Map, bool) { return v.m, v.kind == KindMap }

// AsInt returns v as int64 when it is an integer that fits.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindUint:
		if v.u > math.MaxInt64 {
			return 0, false
		}
		return int64(v.u), true
	case KindFloat:
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f <= math.MaxInt64 {
			return int64(v.f), true
		}
	}
	return 0, false
}

// AsUint returns v as uint64 when it is a non-negative integer.
func (v Value) AsUint() (uint64, bool) {
	switch v.kind {
	case KindUint:
		return v.u, true
	case KindInt:
		if v.i < 0 {
			return 0, false
		}
		return uint64(v.i), true
	case KindFloat:
		if v.f >= 0 && v.f == math.Trunc(v.f) && v.f <= math.MaxUint64 {
			return uint64(v.f), true
		}
	}
	return 0, false
}

// AsFloat returns any numeric value as float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindUint:
		return float64(v.u), true
	}
	return 0, false
}

// Len returns the number of elements of a list or map, or the length of a
// string or byte string. Other kinds have length 0.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return v.m.Len()
	case KindString:
		return len(v.s)
	case KindBytes:
		return len(v.raw)
	}
	return 0
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindBytes:
		return Bytes(bytes.Clone(v.raw))
	case KindList:
		out := make([]Value, len(v.list))
		for i, e := range v.list {
			out[i] = e.Clone()
		}
		return List(out...)
	case KindMap:
		return FromMap(v.m.Clone())
	}
	return v
}

// Equal reports whether a and b hold the same tree. Numbers compare by
// numeric value regardless of their integer or float representation.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return numericEqual(a, b)
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindBytes:
		return bytes.Equal(a.raw, b.raw)
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if a.m.Len() != b.m.Len() {
			return false
		}
		for _, k := range a.m.Keys() {
			bv, ok := b.m.Get(k)
			if !ok {
				return false
			}
			av, _ := a.m.Get(k)
			if !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

func numericEqual(a, b Value) bool {
	if a.kind == KindFloat || b.kind == KindFloat {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		return af == bf
	}
	if ai, ok := a.AsInt(); ok {
		bi, ok := b.AsInt()
		return ok && ai == bi
	}
	au, _ := a.AsUint()
	bu, ok := b.AsUint()
	return ok && au == bu
}

// String renders v in a compact JSON-like form for messages.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindBytes:
		return fmt.Sprintf("hex:%x", v.raw)
	case KindList:
		var sb bytes.Buffer
		sb.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.String())
		}
		sb.WriteByte(']')
		return sb.String()
	case KindMap:
		var sb bytes.Buffer
		sb.WriteByte('{')
		for i, k := range v.m.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			e, _ := v.m.Get(k)
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(": ")
			sb.WriteString(e.String())
		}
		sb.WriteByte('}')
		return sb.String()
	}
	return "?"
}
