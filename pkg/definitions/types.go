// Package definitions holds the in-memory cluster definition tree and the
// lookup surface the codec, adapters and test parser consume.
//
// Definitions are loaded once per run and are read-only afterwards, so a
// Registry is safe to share between goroutines.
package definitions

// FabricIndexCode is the wire code of the synthetic field carried by every
// fabric-scoped struct.
const FabricIndexCode = 254

// FabricIndexName is the symbolic name of the synthetic fabric field.
const FabricIndexName = "FabricIndex"

// FabricIndexType is the data type of the synthetic fabric field.
const FabricIndexType = "int64u"

// Field describes one member of a struct, command, response or event.
type Field struct {
	Code       uint32
	Name       string
	TypeName   string
	IsList     bool
	IsNullable bool
	IsOptional bool
}

// Struct is an ordered set of fields.
type Struct struct {
	Name         string
	Fields       []Field
	FabricScoped bool
}

// FieldByCode returns the field with the given wire code.
func (s *Struct) FieldByCode(code uint32) (Field, bool) {
	for _, f := range s.Fields {
		if f.Code == code {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByName returns the field with the given symbolic name.
func (s *Struct) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// AllFields returns the declared fields followed by the synthetic fabric
// index field when the struct is fabric-scoped.
func (s *Struct) AllFields() []Field {
	if !s.FabricScoped {
		return s.Fields
	}
	out := make([]Field, 0, len(s.Fields)+1)
	out = append(out, s.Fields...)
	return append(out, Field{
		Code:     FabricIndexCode,
		Name:     FabricIndexName,
		TypeName: FabricIndexType,
	})
}

// Command is a client-to-server command. Its fields are the arguments.
type Command struct {
	Struct
	Code     uint32
	Response string
	Timed    bool
}

// Response is a server-to-client command response.
type Response struct {
	Struct
	Code uint32
}

// Event is an event definition. Its fields are the event payload.
type Event struct {
	Struct
	Code     uint32
	Priority string
}

// Attribute is an attribute definition. Field carries the attribute's data
// type, list-ness and nullability; its Code and Name mirror the attribute's.
type Attribute struct {
	Code     uint32
	Name     string
	Field    Field
	Writable bool
}

// Cluster groups the definitions of one cluster.
type Cluster struct {
	Code       uint32
	Name       string
	Structs    []*Struct
	Attributes []*Attribute
	Commands   []*Command
	Responses  []*Response
	Events     []*Event
}
