package assertions

import (
	"fmt"

	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/value"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// CheckResponses compares the received responses of a step with its
// expected responses. Values named by saveAs are stored into vars. A step
// without expected responses expects its first response to succeed.
// Unexpected extra responses are reported as a warning.
func CheckResponses(step *loader.Step, received []wire.Response, vars loader.Variables) *Outcome {
	out := NewOutcome()

	expected := step.Responses
	if len(expected) == 0 {
		expected = []*loader.ExpectedResponse{{}}
	}

	for i, exp := range expected {
		if i >= len(received) {
			out.Error(CategoryResponse, fmt.Sprintf("response %d: not received", i))
			continue
		}
		checkResponse(out, exp, &received[i], vars)
	}
	if len(received) > len(expected) {
		out.Warning(CategoryResponse, fmt.Sprintf("received %d responses, expected %d", len(received), len(expected)))
	}
	return out
}

func checkResponse(out *Outcome, exp *loader.ExpectedResponse, r *wire.Response, vars loader.Variables) {
	got := r.Error
	if got == "" {
		got = wire.StatusSuccess.String()
	}
	want := exp.Error
	if want == "" {
		want = wire.StatusSuccess.String()
	}
	if wire.SameStatus(want, got) {
		out.Success(CategoryStatus, fmt.Sprintf("status is %s", want))
	} else {
		out.Error(CategoryStatus, fmt.Sprintf("expected status %s, got %s", want, got))
	}

	if exp.ClusterError != nil {
		switch {
		case r.ClusterError == nil:
			out.Error(CategoryStatus, fmt.Sprintf("expected cluster status %d, got none", *exp.ClusterError))
		case *r.ClusterError != *exp.ClusterError:
			out.Error(CategoryStatus, fmt.Sprintf("expected cluster status %d, got %d", *exp.ClusterError, *r.ClusterError))
		default:
			out.Success(CategoryStatus, fmt.Sprintf("cluster status is %d", *exp.ClusterError))
		}
	}

	// Values are only meaningful for successful interactions.
	if exp.Error != "" || r.IsError() {
		return
	}

	for _, ev := range exp.Values {
		v, has := receivedValue(r, ev.Name)
		checkValue(out, ev, v, has, vars)
	}
}

// receivedValue returns the whole response value for unnamed expectations
// and the named field of a command response otherwise.
func receivedValue(r *wire.Response, name string) (value.Value, bool) {
	if name == "" {
		return r.Value, r.HasValue
	}
	if !r.HasValue {
		return value.Value{}, false
	}
	m, ok := r.Value.AsMap()
	if !ok {
		return value.Value{}, false
	}
	return m.Get(name)
}

func checkValue(out *Outcome, ev *loader.ExpectedValue, v value.Value, has bool, vars loader.Variables) {
	label := "value"
	if ev.Name != "" {
		label = ev.Name
	}
	prefix := func(r *Result) *Result {
		r.Message = label + ": " + r.Message
		return r
	}

	if ev.HasValue {
		if !has {
			out.Error(CategoryValue, fmt.Sprintf("%s: expected %s, got nothing", label, ev.Value))
		} else {
			out.Record(CategoryValue, prefix(Equal(ev.Value, v)))
		}
	}

	for _, r := range CheckConstraints(ev.Constraints, v, has, vars) {
		out.Record(CategoryConstraint, prefix(r))
	}

	if ev.SaveAs != "" {
		if !has {
			out.Error(CategorySaveAs, fmt.Sprintf("%s: nothing to save as %s", label, ev.SaveAs))
			return
		}
		vars[ev.SaveAs] = v
		out.Success(CategorySaveAs, fmt.Sprintf("%s saved as %s", label, ev.SaveAs))
	}
}
