package loader

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matter-conformance/yamltests/pkg/pics"
	"github.com/matter-conformance/yamltests/pkg/value"
)

// Config configures a Parser.
type Config struct {
	// PICS is the feature table used to evaluate step gates. A nil table
	// disables every gated step.
	PICS *pics.Table

	// ConfigOverride replaces config variables of every parsed file.
	ConfigOverride map[string]value.Value
}

// Parser parses test files. It is safe for concurrent use; the feature
// table is only read.
type Parser struct {
	config  Config
	checker *pics.Checker
}

// NewParser creates a Parser.
func NewParser(config Config) *Parser {
	table := config.PICS
	if table == nil {
		table = pics.NewTable(nil)
	}
	return &Parser{config: config, checker: pics.NewChecker(table)}
}

type rawFile struct {
	Name   string      `yaml:"name"`
	PICS   string      `yaml:"PICS"`
	Config yaml.Node   `yaml:"config"`
	Tests  []yaml.Node `yaml:"tests"`
}

type rawStep struct {
	Label     string `yaml:"label"`
	Identity  string `yaml:"identity"`
	Cluster   string `yaml:"cluster"`
	Command   string `yaml:"command"`
	Attribute string `yaml:"attribute"`
	Event     string `yaml:"event"`
	PICS      string `yaml:"PICS"`
	Disabled  bool   `yaml:"disabled"`

	Endpoint                  yaml.Node `yaml:"endpoint"`
	NodeID                    yaml.Node `yaml:"nodeId"`
	GroupID                   yaml.Node `yaml:"groupId"`
	MinInterval               yaml.Node `yaml:"minInterval"`
	MaxInterval               yaml.Node `yaml:"maxInterval"`
	TimedInteractionTimeoutMs yaml.Node `yaml:"timedInteractionTimeoutMs"`
	BusyWaitMs                yaml.Node `yaml:"busyWaitMs"`
	Timeout                   yaml.Node `yaml:"timeout"`
	FabricFiltered            *bool     `yaml:"fabricFiltered"`

	Arguments yaml.Node `yaml:"arguments"`
	Response  yaml.Node `yaml:"response"`
}

// LoadFile loads and parses a test file from disk.
func (p *Parser) LoadFile(path string) (*TestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	tf, err := p.Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	tf.Path = path
	return tf, nil
}

// Parse parses a test file from YAML bytes.
func (p *Parser) Parse(data []byte) (*TestFile, error) {
	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &LoadError{
			Message: "failed to parse YAML",
			Cause:   err,
		}
	}

	config, err := p.parseConfig(&raw.Config)
	if err != nil {
		return nil, err
	}
	vars := NewVariables(config)

	tf := &TestFile{
		Name:   raw.Name,
		PICS:   raw.PICS,
		Config: config,
	}

	fileEnabled, err := p.check(raw.PICS, 0)
	if err != nil {
		return nil, err
	}

	for i := range raw.Tests {
		node := &raw.Tests[i]
		step, err := p.parseStep(node, vars)
		if err != nil {
			return nil, err
		}
		if step == nil {
			continue
		}
		step.Enabled = step.Enabled && fileEnabled
		step.Index = len(tf.Steps)
		tf.Steps = append(tf.Steps, step)
	}

	return tf, nil
}

func (p *Parser) parseConfig(node *yaml.Node) (*value.Map, error) {
	config := value.NewMap()
	if node.Kind == 0 {
		return p.applyOverride(config), nil
	}
	v, err := value.FromYAML(node)
	if err != nil {
		return nil, &LoadError{Line: node.Line, Message: "invalid config section", Cause: err}
	}
	m, ok := v.AsMap()
	if !ok {
		if v.IsNull() {
			return p.applyOverride(config), nil
		}
		return nil, &LoadError{Line: node.Line, Message: "config section must be a mapping"}
	}
	for _, k := range m.Keys() {
		entry, _ := m.Get(k)
		// Typed entries carry their value under defaultValue.
		if em, ok := entry.AsMap(); ok && em.Has("type") {
			entry, _ = em.Get("defaultValue")
		}
		config.Set(k, entry)
	}
	return p.applyOverride(config), nil
}

func (p *Parser) applyOverride(config *value.Map) *value.Map {
	for k, v := range p.config.ConfigOverride {
		config.Set(k, v)
	}
	return config
}

func (p *Parser) check(expression string, line int) (bool, error) {
	if err := pics.Validate(expression); err != nil {
		return false, &LoadError{Line: line, Message: "invalid PICS expression", Cause: err}
	}
	enabled, err := p.checker.Check(expression)
	if err != nil {
		return false, &LoadError{Line: line, Message: "invalid PICS expression", Cause: err}
	}
	return enabled, nil
}

// parseStep returns nil for disabled steps.
func (p *Parser) parseStep(node *yaml.Node, vars Variables) (*Step, error) {
	var raw rawStep
	if err := node.Decode(&raw); err != nil {
		return nil, &LoadError{Line: node.Line, Message: "invalid step", Cause: err}
	}
	if raw.Disabled {
		return nil, nil
	}

	enabled, err := p.check(raw.PICS, node.Line)
	if err != nil {
		return nil, err
	}

	step := &Step{
		Label:          raw.Label,
		Identity:       raw.Identity,
		Cluster:        raw.Cluster,
		Command:        raw.Command,
		Attribute:      raw.Attribute,
		Event:          raw.Event,
		PICS:           raw.PICS,
		Enabled:        enabled,
		FabricFiltered: raw.FabricFiltered,
	}
	if step.Identity == "" {
		step.Identity = DefaultIdentity
	}
	if step.Cluster == "" {
		if c, ok := vars["cluster"]; ok {
			step.Cluster, _ = c.AsString()
		}
	}

	lineErr := func(field string, err error) error {
		return &LoadError{Line: node.Line, Message: fmt.Sprintf("invalid %s", field), Cause: err}
	}

	nodeID, ok, err := uintField(&raw.NodeID, vars, "nodeId", math.MaxUint64)
	if err != nil {
		return nil, lineErr("nodeId", err)
	}
	if ok {
		step.NodeID = nodeID
	}

	endpoint, ok, err := uintField(&raw.Endpoint, vars, "endpoint", math.MaxUint16)
	if err != nil {
		return nil, lineErr("endpoint", err)
	}
	if ok {
		step.Endpoint = uint16(endpoint)
	} else {
		step.Endpoint = DefaultEndpoint
	}

	groupID, ok, err := uintField(&raw.GroupID, vars, "", math.MaxUint16)
	if err != nil {
		return nil, lineErr("groupId", err)
	}
	if ok {
		step.GroupID = uint16(groupID)
	}

	for _, f := range []struct {
		name string
		node *yaml.Node
		dst  **uint64
	}{
		{"minInterval", &raw.MinInterval, &step.MinInterval},
		{"maxInterval", &raw.MaxInterval, &step.MaxInterval},
		{"timedInteractionTimeoutMs", &raw.TimedInteractionTimeoutMs, &step.TimedInteractionTimeoutMs},
		{"busyWaitMs", &raw.BusyWaitMs, &step.BusyWaitMs},
	} {
		n, ok, err := uintField(f.node, vars, "", math.MaxUint32)
		if err != nil {
			return nil, lineErr(f.name, err)
		}
		if ok {
			*f.dst = &n
		}
	}

	timeout, ok, err := uintField(&raw.Timeout, vars, "", math.MaxUint32)
	if err != nil {
		return nil, lineErr("timeout", err)
	}
	if ok {
		step.Timeout = time.Duration(timeout) * time.Second
	}

	if step.Arguments, err = parseArguments(&raw.Arguments, vars); err != nil {
		return nil, lineErr("arguments", err)
	}
	if step.Responses, err = parseResponses(&raw.Response, vars); err != nil {
		return nil, lineErr("response", err)
	}
	return step, nil
}

// uintField resolves an optional unsigned field. An absent field falls
// back to the config variable named fallback.
func uintField(node *yaml.Node, vars Variables, fallback string, limit uint64) (uint64, bool, error) {
	var v value.Value
	switch {
	case node.Kind != 0:
		var err error
		if v, err = value.FromYAML(node); err != nil {
			return 0, false, err
		}
		v = vars.Substitute(v)
	case fallback != "":
		var ok bool
		if v, ok = vars[fallback]; !ok {
			return 0, false, nil
		}
	default:
		return 0, false, nil
	}
	if v.IsNull() {
		return 0, false, nil
	}
	n, ok := v.AsUint()
	if !ok || n > limit {
		return 0, false, fmt.Errorf("%s is not an unsigned integer up to %d", v, limit)
	}
	return n, true, nil
}

func parseArguments(node *yaml.Node, vars Variables) ([]Argument, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	v, err := value.FromYAML(node)
	if err != nil {
		return nil, err
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("arguments must be a mapping, got %s", v.Kind())
	}

	var args []Argument
	if single, ok := m.Get("value"); ok {
		lit, err := literal(vars.Substitute(single))
		if err != nil {
			return nil, err
		}
		args = append(args, Argument{Name: "value", Value: lit})
	}
	if values, ok := m.Get("values"); ok {
		list, ok := values.AsList()
		if !ok {
			return nil, fmt.Errorf("arguments.values must be a list")
		}
		for i, entry := range list {
			em, ok := entry.AsMap()
			if !ok {
				return nil, fmt.Errorf("arguments.values[%d] must be a mapping", i)
			}
			nameV, _ := em.Get("name")
			name, ok := nameV.AsString()
			if !ok || name == "" {
				return nil, fmt.Errorf("arguments.values[%d] has no name", i)
			}
			raw, _ := em.Get("value")
			lit, err := literal(vars.Substitute(raw))
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", name, err)
			}
			args = append(args, Argument{Name: name, Value: lit})
		}
	}
	return args, nil
}

func parseResponses(node *yaml.Node, vars Variables) ([]*ExpectedResponse, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	v, err := value.FromYAML(node)
	if err != nil {
		return nil, err
	}

	var entries []value.Value
	if list, ok := v.AsList(); ok {
		entries = list
	} else {
		entries = []value.Value{v}
	}

	responses := make([]*ExpectedResponse, 0, len(entries))
	for i, entry := range entries {
		m, ok := entry.AsMap()
		if !ok {
			return nil, fmt.Errorf("response[%d] must be a mapping", i)
		}
		r, err := parseResponse(m, vars)
		if err != nil {
			return nil, fmt.Errorf("response[%d]: %w", i, err)
		}
		responses = append(responses, r)
	}
	return responses, nil
}

func parseResponse(m *value.Map, vars Variables) (*ExpectedResponse, error) {
	r := &ExpectedResponse{}
	if e, ok := m.Get("error"); ok {
		r.Error, _ = e.AsString()
	}
	if ce, ok := m.Get("clusterError"); ok {
		n, ok := ce.AsUint()
		if !ok || n > math.MaxUint8 {
			return nil, fmt.Errorf("clusterError %s is not a status code", ce)
		}
		code := uint8(n)
		r.ClusterError = &code
	}

	if values, ok := m.Get("values"); ok {
		list, ok := values.AsList()
		if !ok {
			return nil, fmt.Errorf("values must be a list")
		}
		for i, entry := range list {
			em, ok := entry.AsMap()
			if !ok {
				return nil, fmt.Errorf("values[%d] must be a mapping", i)
			}
			ev, err := parseExpectedValue(em, vars)
			if err != nil {
				return nil, fmt.Errorf("values[%d]: %w", i, err)
			}
			if ev.Name == "" {
				return nil, fmt.Errorf("values[%d] has no name", i)
			}
			r.Values = append(r.Values, ev)
		}
		return r, nil
	}

	if m.Has("value") || m.Has("constraints") || m.Has("saveAs") {
		ev, err := parseExpectedValue(m, vars)
		if err != nil {
			return nil, err
		}
		r.Values = append(r.Values, ev)
	}
	return r, nil
}

func parseExpectedValue(m *value.Map, vars Variables) (*ExpectedValue, error) {
	ev := &ExpectedValue{}
	if n, ok := m.Get("name"); ok {
		ev.Name, _ = n.AsString()
	}
	if v, ok := m.Get("value"); ok {
		lit, err := literal(vars.Substitute(v))
		if err != nil {
			return nil, err
		}
		ev.Value = lit
		ev.HasValue = true
	}
	if c, ok := m.Get("constraints"); ok {
		cm, ok := c.AsMap()
		if !ok {
			return nil, fmt.Errorf("constraints must be a mapping")
		}
		ev.Constraints = cm
	}
	if s, ok := m.Get("saveAs"); ok {
		ev.SaveAs, _ = s.AsString()
	}
	return ev, nil
}

// literal turns "hex:" strings into byte strings, recursively.
func literal(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		b, ok, err := value.DecodeHex(s)
		if err != nil {
			return value.Value{}, err
		}
		if ok {
			return value.Bytes(b), nil
		}
	case value.KindList:
		list, _ := v.AsList()
		out := make([]value.Value, len(list))
		for i, e := range list {
			lit, err := literal(e)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = lit
		}
		return value.List(out...), nil
	case value.KindMap:
		m, _ := v.AsMap()
		out := value.NewMap()
		for _, k := range m.Keys() {
			e, _ := m.Get(k)
			lit, err := literal(e)
			if err != nil {
				return value.Value{}, err
			}
			out.Set(k, lit)
		}
		return value.FromMap(out), nil
	}
	return v, nil
}
