package loader_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/value"
)

func TestVariablesSubstitute(t *testing.T) {
	vars := loader.NewVariables(value.MapOf("nodeId", value.Uint(7), "name", value.String("kitchen")))

	assert.Equal(t, value.Uint(7), vars.Substitute(value.String("nodeId")))
	assert.Equal(t, value.String("other"), vars.Substitute(value.String("other")))
	assert.Equal(t, value.Int(1), vars.Substitute(value.Int(1)))

	nested := value.FromMap(value.MapOf(
		"target", value.String("nodeId"),
		"labels", value.List(value.String("name"), value.String("plain")),
	))
	got, ok := vars.Substitute(nested).AsMap()
	require.True(t, ok)
	target, _ := got.Get("target")
	assert.Equal(t, value.Uint(7), target)
	labels, _ := got.Get("labels")
	assert.True(t, value.Equal(value.List(value.String("kitchen"), value.String("plain")), labels))
}

func TestNewVariablesNilConfig(t *testing.T) {
	vars := loader.NewVariables(nil)
	assert.Empty(t, vars)
	assert.Equal(t, value.String("x"), vars.Substitute(value.String("x")))
}

func TestStepResolve(t *testing.T) {
	step := &loader.Step{
		Label:     "compare",
		Arguments: []loader.Argument{{Name: "arg1", Value: value.String("sum")}},
		Responses: []*loader.ExpectedResponse{{
			Values: []*loader.ExpectedValue{{
				Value:       value.String("sum"),
				HasValue:    true,
				Constraints: value.MapOf("minValue", value.String("sum")),
			}},
		}},
	}

	resolved := step.Resolve(loader.Variables{"sum": value.Int(20)})
	require.NotSame(t, step, resolved)

	arg, _ := resolved.Argument("arg1")
	assert.Equal(t, value.Int(20), arg)
	ev := resolved.Responses[0].Values[0]
	assert.Equal(t, value.Int(20), ev.Value)
	minValue, _ := ev.Constraints.Get("minValue")
	assert.Equal(t, value.Int(20), minValue)

	// The original step is untouched.
	orig, _ := step.Argument("arg1")
	assert.Equal(t, value.String("sum"), orig)
	assert.Equal(t, value.String("sum"), step.Responses[0].Values[0].Value)

	assert.Same(t, step, step.Resolve(nil))
}
