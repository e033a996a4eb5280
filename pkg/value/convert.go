package value

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// HexPrefix marks a string that carries a hex-encoded byte string.
const HexPrefix = "hex:"

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	cborEncMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic("value: failed to create CBOR encoder: " + err.Error())
	}
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("value: failed to create CBOR decoder: " + err.Error())
	}
}

// FromAny converts a generic Go tree, as produced by encoding/json,
// yaml.v3 or cbor, into a Value. Maps with unordered keys are sorted by
// key. Unknown types are rendered with fmt.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Map:
		return FromMap(t)
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Uint(uint64(t))
	case uint8:
		return Uint(uint64(t))
	case uint16:
		return Uint(uint64(t))
	case uint32:
		return Uint(uint64(t))
	case uint64:
		return Uint(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case json.Number:
		return fromNumber(string(t))
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case []Value:
		return List(t...)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromAny(e)
		}
		return List(out...)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, FromAny(t[k]))
		}
		return FromMap(m)
	case map[any]any:
		keys := make([]string, 0, len(t))
		byKey := make(map[string]any, len(t))
		for k, e := range t {
			ks := fmt.Sprint(k)
			keys = append(keys, ks)
			byKey[ks] = e
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, FromAny(byKey[k]))
		}
		return FromMap(m)
	}
	return String(fmt.Sprint(x))
}

func fromNumber(s string) Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Uint(u)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return String(s)
	}
	return Float(f)
}

// ToAny converts v into a generic Go tree. Maps become map[string]any and
// lose their ordering.
func ToAny(v Value) any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.raw
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = ToAny(e)
		}
		return out
	case KindMap:
		out := make(map[string]any, v.m.Len())
		for _, k := range v.m.keys {
			out[k] = ToAny(v.m.items[k])
		}
		return out
	}
	return nil
}

// FromYAML converts a yaml.v3 node into a Value, keeping mapping order.
// Scalars are resolved with the YAML core schema. A string tagged !!binary
// becomes bytes.
func FromYAML(node *yaml.Node) (Value, error) {
	if node == nil {
		return Null(), nil
	}
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Null(), nil
		}
		return FromYAML(node.Content[0])
	case yaml.AliasNode:
		return FromYAML(node.Alias)
	case yaml.SequenceNode:
		out := make([]Value, 0, len(node.Content))
		for _, c := range node.Content {
			e, err := FromYAML(c)
			if err != nil {
				return Value{}, err
			}
			out = append(out, e)
		}
		return List(out...), nil
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(node.Content); i += 2 {
			k := node.Content[i].Value
			e, err := FromYAML(node.Content[i+1])
			if err != nil {
				return Value{}, err
			}
			m.Set(k, e)
		}
		return FromMap(m), nil
	case yaml.ScalarNode:
		return fromYAMLScalar(node)
	}
	return Value{}, fmt.Errorf("line %d: unsupported YAML node kind %d", node.Line, node.Kind)
}

func fromYAMLScalar(node *yaml.Node) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := node.Decode(&i); err == nil {
			return Int(i), nil
		}
		var u uint64
		if err := node.Decode(&u); err != nil {
			return Value{}, err
		}
		return Uint(u), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case "!!binary":
		var b []byte
		if err := node.Decode(&b); err != nil {
			return Value{}, err
		}
		return Bytes(b), nil
	}
	return String(node.Value), nil
}

// MarshalJSON renders v as JSON with map keys in insertion order. Byte
// strings are rendered as "hex:" prefixed strings.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindUint:
		buf.WriteString(strconv.FormatUint(v.u, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return fmt.Errorf("value: cannot encode %v as JSON", v.f)
		}
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindBytes:
		buf.WriteString(strconv.Quote(HexPrefix + hex.EncodeToString(v.raw)))
	case KindList:
		buf.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeJSON(buf, v.m.items[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON parses JSON into v keeping object key order. Integral
// numbers become Int (or Uint when they exceed int64), other numbers Float.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeJSON(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("value: trailing data after JSON value")
	}
	*v = out
	return nil
}

// ParseJSON parses a JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	var v Value
	err := v.UnmarshalJSON(data)
	return v, err
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			elems := []Value{}
			for dec.More() {
				e, err := decodeJSON(dec)
				if err != nil {
					return Value{}, err
				}
				elems = append(elems, e)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(elems...), nil
		case '{':
			m := NewMap()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				k, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("value: object key %v is not a string", kt)
				}
				e, err := decodeJSON(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(k, e)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return FromMap(m), nil
		}
		return Value{}, fmt.Errorf("value: unexpected delimiter %v", t)
	case json.Number:
		return fromNumber(string(t)), nil
	}
	return FromAny(tok), nil
}

// MarshalCBOR encodes v with canonical map key ordering.
func (v Value) MarshalCBOR() ([]byte, error) {
	return cborEncMode.Marshal(ToAny(v))
}

// UnmarshalCBOR decodes a CBOR item into v.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var x any
	if err := cborDecMode.Unmarshal(data, &x); err != nil {
		return err
	}
	*v = FromAny(x)
	return nil
}

// DecodeHex parses a "hex:" prefixed string into bytes. The second result
// is false when s does not carry the prefix.
func DecodeHex(s string) ([]byte, bool, error) {
	rest, ok := strings.CutPrefix(s, HexPrefix)
	if !ok {
		return nil, false, nil
	}
	b, err := hex.DecodeString(rest)
	if err != nil {
		return nil, true, fmt.Errorf("value: invalid hex string %q: %w", s, err)
	}
	return b, true, nil
}
