package loader

import "github.com/matter-conformance/yamltests/pkg/value"

// Variables maps config and saved variable names to values. A string
// value that equals a variable name is replaced by the variable's value.
type Variables map[string]value.Value

// NewVariables creates Variables seeded from a config section.
func NewVariables(config *value.Map) Variables {
	vars := make(Variables)
	if config == nil {
		return vars
	}
	for _, k := range config.Keys() {
		v, _ := config.Get(k)
		vars[k] = v
	}
	return vars
}

// Substitute replaces variable references in v, recursively.
func (vs Variables) Substitute(v value.Value) value.Value {
	if len(vs) == 0 {
		return v
	}
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		if r, ok := vs[s]; ok {
			return r
		}
	case value.KindList:
		list, _ := v.AsList()
		out := make([]value.Value, len(list))
		for i, e := range list {
			out[i] = vs.Substitute(e)
		}
		return value.List(out...)
	case value.KindMap:
		m, _ := v.AsMap()
		out := value.NewMap()
		for _, k := range m.Keys() {
			e, _ := m.Get(k)
			out.Set(k, vs.Substitute(e))
		}
		return value.FromMap(out)
	}
	return v
}

// Resolve returns a copy of s with variable references in arguments and
// expected values replaced. s is not modified.
func (s *Step) Resolve(vars Variables) *Step {
	if len(vars) == 0 {
		return s
	}
	out := *s
	out.Arguments = make([]Argument, len(s.Arguments))
	for i, a := range s.Arguments {
		out.Arguments[i] = Argument{Name: a.Name, Value: vars.Substitute(a.Value)}
	}
	out.Responses = make([]*ExpectedResponse, len(s.Responses))
	for i, r := range s.Responses {
		rc := *r
		rc.Values = make([]*ExpectedValue, len(r.Values))
		for j, ev := range r.Values {
			evc := *ev
			if ev.HasValue {
				evc.Value = vars.Substitute(ev.Value)
			}
			if ev.Constraints != nil {
				cv := vars.Substitute(value.FromMap(ev.Constraints))
				evc.Constraints, _ = cv.AsMap()
			}
			rc.Values[j] = &evc
		}
		out.Responses[i] = &rc
	}
	return &out
}
