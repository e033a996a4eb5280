package definitions

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaName = "definitions.json"

var compiledSchema *jsonschema.Schema

func init() {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		panic("definitions: invalid embedded schema: " + err.Error())
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaName, doc); err != nil {
		panic("definitions: failed to add schema: " + err.Error())
	}
	compiledSchema, err = c.Compile(schemaName)
	if err != nil {
		panic("definitions: failed to compile schema: " + err.Error())
	}
}

// RawField is the YAML form of a field.
type RawField struct {
	Code     uint32 `yaml:"code"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	List     bool   `yaml:"list"`
	Nullable bool   `yaml:"nullable"`
	Optional bool   `yaml:"optional"`
}

// RawStruct is the YAML form of a struct type.
type RawStruct struct {
	Name         string     `yaml:"name"`
	FabricScoped bool       `yaml:"fabricScoped"`
	Fields       []RawField `yaml:"fields"`
}

// RawAttribute is the YAML form of an attribute.
type RawAttribute struct {
	Code     uint32 `yaml:"code"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	List     bool   `yaml:"list"`
	Nullable bool   `yaml:"nullable"`
	Writable bool   `yaml:"writable"`
}

// RawCommand is the YAML form of a command or a command response.
type RawCommand struct {
	Code         uint32     `yaml:"code"`
	Name         string     `yaml:"name"`
	Response     string     `yaml:"response"`
	Timed        bool       `yaml:"timed"`
	FabricScoped bool       `yaml:"fabricScoped"`
	Fields       []RawField `yaml:"fields"`
}

// RawEvent is the YAML form of an event.
type RawEvent struct {
	Code         uint32     `yaml:"code"`
	Name         string     `yaml:"name"`
	Priority     string     `yaml:"priority"`
	FabricScoped bool       `yaml:"fabricScoped"`
	Fields       []RawField `yaml:"fields"`
}

// RawCluster is the YAML form of a cluster.
type RawCluster struct {
	Code       uint32         `yaml:"code"`
	Name       string         `yaml:"name"`
	Structs    []RawStruct    `yaml:"structs"`
	Attributes []RawAttribute `yaml:"attributes"`
	Commands   []RawCommand   `yaml:"commands"`
	Responses  []RawCommand   `yaml:"responses"`
	Events     []RawEvent     `yaml:"events"`
}

// RawDocument is the YAML definitions document.
type RawDocument struct {
	SpecVersion string       `yaml:"specVersion"`
	Clusters    []RawCluster `yaml:"clusters"`
}

// SchemaError reports a definitions document that does not match the
// document schema.
type SchemaError struct {
	File   string
	Issues []string
}

func (e *SchemaError) Error() string {
	prefix := "definitions"
	if e.File != "" {
		prefix = e.File
	}
	return fmt.Sprintf("%s: schema validation failed: %s", prefix, strings.Join(e.Issues, "; "))
}

// Parse parses and validates a YAML definitions document.
func Parse(data []byte) (*Definitions, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	var doc RawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing definitions: %w", err)
	}
	return Build(&doc)
}

// LoadFile loads definitions from a single YAML file.
func LoadFile(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defs, err := Parse(data)
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.File = path
			return nil, se
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// LoadFiles loads and merges several definitions files.
func LoadFiles(paths ...string) (*Definitions, error) {
	var clusters []*Cluster
	for _, p := range paths {
		d, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, d.Clusters()...)
	}
	return New(clusters...), nil
}

func validate(data []byte) error {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("parsing definitions: %w", err)
	}
	if tree == nil {
		return &SchemaError{Issues: []string{"empty document"}}
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("converting definitions to JSON: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("converting definitions to JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return &SchemaError{Issues: []string{err.Error()}}
		}
		var issues []string
		for _, leaf := range flatten(ve) {
			issues = append(issues, fmt.Sprintf("/%s: %v", strings.Join(leaf.InstanceLocation, "/"), leaf.ErrorKind))
		}
		return &SchemaError{Issues: issues}
	}
	return nil
}

func flatten(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}

// Build converts a raw document into an indexed registry. Duplicate names
// within one cluster are rejected.
func Build(doc *RawDocument) (*Definitions, error) {
	clusters := make([]*Cluster, 0, len(doc.Clusters))
	for _, rc := range doc.Clusters {
		c, err := buildCluster(rc)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return New(clusters...), nil
}

func buildCluster(rc RawCluster) (*Cluster, error) {
	c := &Cluster{Code: rc.Code, Name: rc.Name}
	seen := make(map[string]string)
	claim := func(kind, name string) error {
		k := kind + ":" + key(name)
		if _, dup := seen[k]; dup {
			return fmt.Errorf("cluster %s: duplicate %s %q", rc.Name, kind, name)
		}
		seen[k] = name
		return nil
	}

	for _, rs := range rc.Structs {
		if err := claim("struct", rs.Name); err != nil {
			return nil, err
		}
		c.Structs = append(c.Structs, &Struct{
			Name:         rs.Name,
			Fields:       buildFields(rs.Fields),
			FabricScoped: rs.FabricScoped,
		})
	}
	for _, ra := range rc.Attributes {
		if err := claim("attribute", ra.Name); err != nil {
			return nil, err
		}
		c.Attributes = append(c.Attributes, &Attribute{
			Code: ra.Code,
			Name: ra.Name,
			Field: Field{
				Code:       ra.Code,
				Name:       ra.Name,
				TypeName:   ra.Type,
				IsList:     ra.List,
				IsNullable: ra.Nullable,
			},
			Writable: ra.Writable,
		})
	}
	for _, rcmd := range rc.Commands {
		if err := claim("command", rcmd.Name); err != nil {
			return nil, err
		}
		c.Commands = append(c.Commands, &Command{
			Struct:   Struct{Name: rcmd.Name, Fields: buildFields(rcmd.Fields), FabricScoped: rcmd.FabricScoped},
			Code:     rcmd.Code,
			Response: rcmd.Response,
			Timed:    rcmd.Timed,
		})
	}
	for _, rr := range rc.Responses {
		if err := claim("response", rr.Name); err != nil {
			return nil, err
		}
		c.Responses = append(c.Responses, &Response{
			Struct: Struct{Name: rr.Name, Fields: buildFields(rr.Fields), FabricScoped: rr.FabricScoped},
			Code:   rr.Code,
		})
	}
	for _, re := range rc.Events {
		if err := claim("event", re.Name); err != nil {
			return nil, err
		}
		c.Events = append(c.Events, &Event{
			Struct:   Struct{Name: re.Name, Fields: buildFields(re.Fields), FabricScoped: re.FabricScoped},
			Code:     re.Code,
			Priority: re.Priority,
		})
	}
	return c, nil
}

func buildFields(raw []RawField) []Field {
	out := make([]Field, len(raw))
	for i, f := range raw {
		out[i] = Field{
			Code:       f.Code,
			Name:       f.Name,
			TypeName:   f.Type,
			IsList:     f.List,
			IsNullable: f.Nullable,
			IsOptional: f.Optional,
		}
	}
	return out
}
