package codec_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matter-conformance/yamltests/pkg/codec"
	"github.com/matter-conformance/yamltests/pkg/definitions"
	"github.com/matter-conformance/yamltests/pkg/value"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

const cluster = "UnitTesting"

func testRegistry() *definitions.Definitions {
	return definitions.New(&definitions.Cluster{
		Code: 0xFFF1FC05,
		Name: cluster,
		Structs: []*definitions.Struct{
			{
				Name: "SimpleStruct",
				Fields: []definitions.Field{
					{Code: 0, Name: "a", TypeName: "int8u"},
					{Code: 1, Name: "b", TypeName: "boolean"},
					{Code: 3, Name: "d", TypeName: "octet_string"},
					{Code: 6, Name: "g", TypeName: "single"},
				},
			},
			{
				Name: "NullablesStruct",
				Fields: []definitions.Field{
					{Code: 0, Name: "NullableInt", TypeName: "int16u", IsNullable: true},
					{Code: 1, Name: "OptionalInt", TypeName: "int16u", IsOptional: true},
				},
			},
			{
				Name: "NestedStructList",
				Fields: []definitions.Field{
					{Code: 0, Name: "a", TypeName: "int8u"},
					{Code: 1, Name: "c", TypeName: "SimpleStruct"},
					{Code: 2, Name: "d", TypeName: "SimpleStruct", IsList: true},
				},
			},
			{
				Name:         "TestFabricScoped",
				FabricScoped: true,
				Fields: []definitions.Field{
					{Code: 1, Name: "fabricSensitiveInt8u", TypeName: "int8u"},
				},
			},
		},
		Attributes: []*definitions.Attribute{
			{Code: 0x18, Name: "float_single", Field: definitions.Field{Code: 0x18, Name: "float_single", TypeName: "single"}},
			{Code: 0x19, Name: "octet_string", Field: definitions.Field{Code: 0x19, Name: "octet_string", TypeName: "octet_string"}},
			{Code: 0x29, Name: "list_fabric_scoped", Field: definitions.Field{Code: 0x29, Name: "list_fabric_scoped", TypeName: "TestFabricScoped", IsList: true}},
		},
		Responses: []*definitions.Response{
			{Code: 1, Struct: definitions.Struct{Name: "TestAddArgumentsResponse", Fields: []definitions.Field{
				{Code: 0, Name: "returnValue", TypeName: "int8u"},
			}}},
		},
		Events: []*definitions.Event{
			{Code: 1, Struct: definitions.Struct{Name: "TestEvent", Fields: []definitions.Field{
				{Code: 1, Name: "arg1", TypeName: "int8u"},
				{Code: 4, Name: "arg4", TypeName: "SimpleStruct"},
			}}},
		},
	})
}

func wireMap(pairs ...any) value.Value { return value.FromMap(value.MapOf(pairs...)) }

func TestToSymbolicRenamesFields(t *testing.T) {
	c := codec.New(testRegistry())

	in := wireMap("0", 7, "1", true, "3", "base64:AQI=", "6", 0.1)
	out, err := c.ToSymbolic(in, cluster, "SimpleStruct", false)
	require.NoError(t, err)

	m, ok := out.AsMap()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "d", "g"}, m.Keys())

	d, _ := m.Get("d")
	b, ok := d.AsBytes()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, b)

	// Input untouched.
	im, _ := in.AsMap()
	assert.Equal(t, []string{"0", "1", "3", "6"}, im.Keys())
}

func TestRoundTrip(t *testing.T) {
	c := codec.New(testRegistry())

	wireValue := wireMap(
		"0", 1,
		"1", wireMap("0", 2, "1", false, "3", "base64:AQ==", "6", 1.5),
		"2", value.List(
			wireMap("0", 3, "1", true, "3", "", "6", 2.5),
			wireMap("0", 4, "1", false, "3", "base64:/w==", "6", 0.5),
		),
	)

	symbolic, err := c.ToSymbolic(wireValue, cluster, "NestedStructList", false)
	require.NoError(t, err)
	back, err := c.ToWire(symbolic, cluster, "NestedStructList", false)
	require.NoError(t, err)
	assert.True(t, value.Equal(wireValue, back), "round trip mismatch:\n want %s\n got  %s", wireValue, back)

	again, err := c.ToSymbolic(back, cluster, "NestedStructList", false)
	require.NoError(t, err)
	assert.True(t, value.Equal(symbolic, again))
}

func TestSingleFloatIdempotent(t *testing.T) {
	c := codec.New(testRegistry())

	widened := value.Float(float64(float32(0.1)))
	once, err := c.ToSymbolic(widened, cluster, "single", false)
	require.NoError(t, err)
	twice, err := c.ToSymbolic(once, cluster, "single", false)
	require.NoError(t, err)

	f, _ := once.AsFloat()
	assert.Equal(t, 0.1, f)
	assert.True(t, value.Equal(once, twice))

	// Case-insensitive type name; integers become floats.
	out, err := c.ToSymbolic(value.Int(3), cluster, "SINGLE", false)
	require.NoError(t, err)
	assert.Equal(t, value.KindFloat, out.Kind())

	// Null passes through.
	out, err = c.ToSymbolic(value.Null(), cluster, "single", false)
	require.NoError(t, err)
	assert.True(t, out.IsNull())
}

func TestRoundSingle(t *testing.T) {
	assert.Equal(t, 0.1, codec.RoundSingle(float64(float32(0.1))))
	assert.Equal(t, 123457.0, codec.RoundSingle(123456.7))
	assert.Equal(t, 1e-07, codec.RoundSingle(1e-7))
}

func TestOctetStringBoundaries(t *testing.T) {
	c := codec.New(testRegistry())

	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"empty", "", []byte{}},
		{"empty payload", "base64:", []byte{}},
		{"one byte", "base64:AQ==", []byte{0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.ToSymbolic(value.String(tt.in), cluster, "octet_string", false)
			require.NoError(t, err)
			b, ok := out.AsBytes()
			require.True(t, ok, "got %s", out)
			assert.Equal(t, tt.want, b)
		})
	}

	out, err := c.ToSymbolic(value.String("plain"), cluster, "LONG_OCTET_STRING", false)
	require.NoError(t, err)
	s, _ := out.AsString()
	assert.Equal(t, "plain", s)

	_, err = c.ToSymbolic(value.String("base64:!!"), cluster, "octet_string", false)
	assert.Error(t, err)

	enc, err := c.ToWire(value.Bytes([]byte{0x01}), cluster, "octet_string", false)
	require.NoError(t, err)
	s, _ = enc.AsString()
	assert.Equal(t, "base64:AQ==", s)

	enc, err = c.ToWire(value.Bytes(nil), cluster, "octet_string", false)
	require.NoError(t, err)
	s, _ = enc.AsString()
	assert.Equal(t, "", s)
}

func TestFabricScopedInjection(t *testing.T) {
	c := codec.New(testRegistry())

	in := value.List(wireMap("1", 5, "254", 2))
	out, err := c.ToSymbolic(in, cluster, "TestFabricScoped", true)
	require.NoError(t, err)

	elems, _ := out.AsList()
	require.Len(t, elems, 1)
	m, _ := elems[0].AsMap()
	assert.False(t, m.Has("254"))
	fi, ok := m.Get(definitions.FabricIndexName)
	require.True(t, ok)
	assert.True(t, value.Equal(value.Int(2), fi))

	back, err := c.ToWire(out, cluster, "TestFabricScoped", true)
	require.NoError(t, err)
	assert.True(t, value.Equal(in, back))

	// Absent fabric index is not synthesized.
	out, err = c.ToSymbolic(wireMap("1", 5), cluster, "TestFabricScoped", false)
	require.NoError(t, err)
	m, _ = out.AsMap()
	assert.False(t, m.Has(definitions.FabricIndexName))
}

func TestNonFabricScopedRejectsFabricKey(t *testing.T) {
	c := codec.New(testRegistry())

	_, err := c.ToSymbolic(wireMap("0", 1, "254", 1), cluster, "SimpleStruct", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrUnsupportedField))
}

func TestNullableAbsence(t *testing.T) {
	c := codec.New(testRegistry())

	out, err := c.ToSymbolic(wireMap(), cluster, "NullablesStruct", false)
	require.NoError(t, err)
	m, _ := out.AsMap()

	v, ok := m.Get("NullableInt")
	require.True(t, ok)
	assert.True(t, v.IsNull())
	assert.False(t, m.Has("OptionalInt"))
}

func TestUnsupportedField(t *testing.T) {
	c := codec.New(testRegistry())

	out, err := c.ToSymbolic(wireMap("0", 1, "9", 2), cluster, "SimpleStruct", false)
	require.Error(t, err)
	assert.True(t, out.IsNull(), "no partial result expected")

	var ufe *codec.UnsupportedFieldError
	require.True(t, errors.As(err, &ufe))
	assert.Equal(t, "9", ufe.Key)
	assert.Equal(t, "SimpleStruct", ufe.Type)

	_, err = c.ToWire(wireMap("a", 1, "zz", 2), cluster, "SimpleStruct", false)
	assert.True(t, errors.Is(err, codec.ErrUnsupportedField))

	// Nested structs propagate the error.
	_, err = c.ToSymbolic(wireMap("1", wireMap("42", 1)), cluster, "NestedStructList", false)
	assert.True(t, errors.Is(err, codec.ErrUnsupportedField))
}

func TestDuplicateFieldRejected(t *testing.T) {
	c := codec.New(testRegistry())

	out, err := c.ToSymbolic(wireMap("0", 1, "a", 2), cluster, "SimpleStruct", false)
	require.Error(t, err)
	assert.True(t, out.IsNull())
	var ufe *codec.UnsupportedFieldError
	require.True(t, errors.As(err, &ufe))
	assert.Equal(t, "a", ufe.Key)

	_, err = c.ToWire(wireMap("a", 1, "0", 2), cluster, "SimpleStruct", false)
	assert.True(t, errors.Is(err, codec.ErrUnsupportedField))
}

func TestUnknownTypePassesThrough(t *testing.T) {
	c := codec.New(testRegistry())

	in := wireMap("0", 1, "99", "x")
	out, err := c.ToSymbolic(in, cluster, "OpaqueStruct", false)
	require.NoError(t, err)
	assert.True(t, value.Equal(in, out))

	out, err = c.ToSymbolic(in, "NoSuchCluster", "SimpleStruct", false)
	require.NoError(t, err)
	assert.True(t, value.Equal(in, out))
}

func TestListShapeMismatchIsLeftAlone(t *testing.T) {
	c := codec.New(testRegistry())

	in := value.List(wireMap("0", 1))
	out, err := c.ToSymbolic(in, cluster, "SimpleStruct", false)
	require.NoError(t, err)
	assert.True(t, value.Equal(in, out))
}

func TestEventFallback(t *testing.T) {
	c := codec.New(testRegistry())

	out, err := c.ToSymbolic(wireMap("1", 1, "4", wireMap("0", 2, "1", true, "3", "", "6", 1)), cluster, "TestEvent", false)
	require.NoError(t, err)
	m, _ := out.AsMap()
	assert.Equal(t, []string{"arg1", "arg4"}, m.Keys())
}

func TestConvertResponse(t *testing.T) {
	c := codec.New(testRegistry())

	t.Run("command response", func(t *testing.T) {
		r := &wire.Response{Cluster: cluster, Command: "TestAddArgumentsResponse"}
		r.SetValue(wireMap("0", 20))
		require.NoError(t, c.ConvertResponse(r))
		m, _ := r.Value.AsMap()
		assert.Equal(t, []string{"returnValue"}, m.Keys())
	})

	t.Run("attribute", func(t *testing.T) {
		r := &wire.Response{Cluster: cluster, Attribute: "list_fabric_scoped"}
		r.SetValue(value.List(wireMap("1", 1, "254", 1)))
		require.NoError(t, c.ConvertResponse(r))
		elems, _ := r.Value.AsList()
		m, _ := elems[0].AsMap()
		assert.True(t, m.Has("FabricIndex"))
	})

	t.Run("scalar attribute", func(t *testing.T) {
		r := &wire.Response{Cluster: cluster, Attribute: "float_single"}
		r.SetValue(value.Float(float64(float32(0.3))))
		require.NoError(t, c.ConvertResponse(r))
		f, _ := r.Value.AsFloat()
		assert.Equal(t, 0.3, f)
	})

	t.Run("event", func(t *testing.T) {
		r := &wire.Response{Cluster: cluster, Event: "TestEvent"}
		r.SetValue(wireMap("1", 3))
		require.NoError(t, c.ConvertResponse(r))
		m, _ := r.Value.AsMap()
		assert.True(t, m.Has("arg1"))
	})

	t.Run("bare value", func(t *testing.T) {
		r := &wire.Response{Cluster: cluster}
		r.SetValue(wireMap("0", 1))
		require.NoError(t, c.ConvertResponse(r))
		m, _ := r.Value.AsMap()
		assert.True(t, m.Has("0"))
	})

	t.Run("no value", func(t *testing.T) {
		r := &wire.Response{Cluster: cluster, Attribute: "float_single", Error: "UNSUPPORTED_ATTRIBUTE"}
		require.NoError(t, c.ConvertResponse(r))
		assert.False(t, r.HasValue)
	})

	t.Run("unsupported field", func(t *testing.T) {
		r := &wire.Response{Cluster: cluster, Command: "TestAddArgumentsResponse"}
		r.SetValue(wireMap("5", 1))
		err := c.ConvertResponse(r)
		assert.True(t, errors.Is(err, codec.ErrUnsupportedField))
	})
}
