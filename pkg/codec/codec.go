// Package codec converts value trees between their wire shape, keyed by
// numeric field codes, and their symbolic shape, keyed by field names.
//
// Conversion is driven by the definition tree: the codec resolves the
// struct for a (cluster, type) pair and walks it field by field. Types the
// registry does not know pass through unchanged.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/matter-conformance/yamltests/pkg/definitions"
	"github.com/matter-conformance/yamltests/pkg/value"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// Base64Prefix frames octet strings on the wire.
const Base64Prefix = "base64:"

// ErrUnsupportedField is returned when a mapping carries a key that has
// no field in the resolved struct.
var ErrUnsupportedField = errors.New("unsupported field")

// UnsupportedFieldError identifies the struct and the offending key.
type UnsupportedFieldError struct {
	Cluster string
	Type    string
	Key     string
}

func (e *UnsupportedFieldError) Error() string {
	return fmt.Sprintf("%s: field %q is not part of %s.%s", ErrUnsupportedField, e.Key, e.Cluster, e.Type)
}

// Unwrap returns ErrUnsupportedField.
func (e *UnsupportedFieldError) Unwrap() error {
	return ErrUnsupportedField
}

type direction int

const (
	toSymbolic direction = iota
	toWire
)

// Codec converts value trees using a definitions registry.
type Codec struct {
	reg definitions.Registry
}

// New creates a codec over the given registry.
func New(reg definitions.Registry) *Codec {
	return &Codec{reg: reg}
}

// Registry returns the registry the codec resolves types with.
func (c *Codec) Registry() definitions.Registry {
	return c.reg
}

// ToSymbolic converts a wire-shaped value of the given type into its
// symbolic shape. Single-precision floats are normalized and octet strings
// are decoded into bytes. The input is not modified.
func (c *Codec) ToSymbolic(v value.Value, cluster, typeName string, isList bool) (value.Value, error) {
	return c.convert(toSymbolic, v, cluster, typeName, isList)
}

// ToWire converts a symbolic value of the given type into its wire shape.
// Byte strings of octet string fields are framed with the base64 prefix.
// The input is not modified.
func (c *Codec) ToWire(v value.Value, cluster, typeName string, isList bool) (value.Value, error) {
	return c.convert(toWire, v, cluster, typeName, isList)
}

// ConvertResponse rewrites r.Value into its symbolic shape according to
// the kind of the response. A command response uses the response type, an
// attribute report the attribute type, an event report the event type.
// Responses without a value or cluster are left alone, as are responses
// whose item is unknown to the registry.
func (c *Codec) ConvertResponse(r *wire.Response) error {
	if !r.HasValue || r.Cluster == "" {
		return nil
	}

	var (
		typeName string
		isList   bool
	)
	switch {
	case r.Command != "":
		resp, ok := c.reg.ResponseByName(r.Cluster, r.Command)
		if !ok {
			return nil
		}
		typeName = resp.Name
	case r.Attribute != "":
		attr, ok := c.reg.AttributeByName(r.Cluster, r.Attribute)
		if !ok {
			return nil
		}
		typeName = attr.Field.TypeName
		isList = attr.Field.IsList
	case r.Event != "":
		ev, ok := c.reg.EventByName(r.Cluster, r.Event)
		if !ok {
			return nil
		}
		typeName = ev.Name
	default:
		return nil
	}

	out, err := c.ToSymbolic(r.Value, r.Cluster, typeName, isList)
	if err != nil {
		return err
	}
	r.Value = out
	return nil
}

func (c *Codec) convert(dir direction, v value.Value, cluster, typeName string, isList bool) (value.Value, error) {
	if isList {
		if elems, ok := v.AsList(); ok {
			out := make([]value.Value, len(elems))
			for i, e := range elems {
				ce, err := c.convert(dir, e, cluster, typeName, false)
				if err != nil {
					return value.Value{}, err
				}
				out[i] = ce
			}
			return value.List(out...), nil
		}
	} else if m, ok := v.AsMap(); ok {
		def := c.resolveStruct(cluster, typeName)
		if def == nil {
			return v, nil
		}
		return c.convertStruct(dir, m, cluster, def)
	}
	return convertScalar(dir, v, typeName)
}

// resolveStruct finds the field set for a type name. Structs are tried
// first, then events, then command responses and command arguments.
func (c *Codec) resolveStruct(cluster, typeName string) *definitions.Struct {
	if s, ok := c.reg.StructByName(cluster, typeName); ok {
		return s
	}
	if e, ok := c.reg.EventByName(cluster, typeName); ok {
		return &e.Struct
	}
	if r, ok := c.reg.ResponseByName(cluster, typeName); ok {
		return &r.Struct
	}
	if cmd, ok := c.reg.CommandByName(cluster, typeName); ok {
		return &cmd.Struct
	}
	return nil
}

func (c *Codec) convertStruct(dir direction, in *value.Map, cluster string, def *definitions.Struct) (value.Value, error) {
	fields := def.AllFields()
	byCode := make(map[string]definitions.Field, len(fields))
	byName := make(map[string]definitions.Field, len(fields))
	for _, f := range fields {
		byCode[strconv.FormatUint(uint64(f.Code), 10)] = f
		byName[f.Name] = f
	}

	// The source key set depends on the direction; the other key set is
	// accepted as already converted.
	src, dst := byCode, byName
	if dir == toWire {
		src, dst = byName, byCode
	}

	out := value.NewMap()
	present := make(map[string]bool, len(fields))
	for _, k := range in.Keys() {
		f, ok := src[k]
		if !ok {
			f, ok = dst[k]
		}
		if !ok {
			return value.Value{}, &UnsupportedFieldError{Cluster: cluster, Type: def.Name, Key: k}
		}
		// The same field given by code and by name is ambiguous.
		if present[f.Name] {
			return value.Value{}, &UnsupportedFieldError{Cluster: cluster, Type: def.Name, Key: k}
		}
		e, _ := in.Get(k)
		ce, err := c.convert(dir, e, cluster, f.TypeName, f.IsList)
		if err != nil {
			return value.Value{}, err
		}
		out.Set(outKey(dir, f), ce)
		present[f.Name] = true
	}

	// Nullable fields are omitted from the wire encoding when null, so the
	// symbolic side restores them explicitly.
	if dir == toSymbolic {
		for _, f := range fields {
			if f.IsNullable && !present[f.Name] {
				out.Set(f.Name, value.Null())
			}
		}
	}
	return value.FromMap(out), nil
}

func outKey(dir direction, f definitions.Field) string {
	if dir == toWire {
		return strconv.FormatUint(uint64(f.Code), 10)
	}
	return f.Name
}

func convertScalar(dir direction, v value.Value, typeName string) (value.Value, error) {
	switch strings.ToLower(typeName) {
	case "single":
		if dir == toSymbolic && v.IsNumber() {
			f, _ := v.AsFloat()
			return value.Float(RoundSingle(f)), nil
		}
	case "octet_string", "long_octet_string":
		if dir == toSymbolic {
			return decodeOctetString(v)
		}
		return encodeOctetString(v), nil
	}
	return v, nil
}

// RoundSingle trims a widened single-precision float to six significant
// digits so that it compares equal to the value a test author wrote.
func RoundSingle(f float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'g', 6, 64), 64)
	if err != nil {
		return f
	}
	return r
}

func decodeOctetString(v value.Value) (value.Value, error) {
	s, ok := v.AsString()
	if !ok {
		return v, nil
	}
	if s == "" {
		return value.Bytes([]byte{}), nil
	}
	payload, ok := strings.CutPrefix(s, Base64Prefix)
	if !ok {
		return v, nil
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return value.Value{}, fmt.Errorf("invalid base64 octet string %q: %w", s, err)
	}
	return value.Bytes(b), nil
}

func encodeOctetString(v value.Value) value.Value {
	b, ok := v.AsBytes()
	if !ok {
		return v
	}
	if len(b) == 0 {
		return value.String("")
	}
	return value.String(Base64Prefix + base64.StdEncoding.EncodeToString(b))
}
