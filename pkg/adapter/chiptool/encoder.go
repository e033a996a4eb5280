package chiptool

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/codec"
	"github.com/matter-conformance/yamltests/pkg/value"
)

// Errors returned by the encoder.
var (
	ErrNoDestination = errors.New("step has neither a node id nor a group id")
	ErrNoCommand     = errors.New("step has no command")
)

// groupNodePrefix turns a group id into a group destination node id.
const groupNodePrefix uint64 = 0xffffffffffff0000

// Names the CLI uses for the pseudo clusters it handles itself.
const (
	commissionerCluster = "CommissionerCommands"
	delayCluster        = "DelayCommands"
	waitForCommissionee = "WaitForCommissionee"
	pairWithCode        = "PairWithCode"
	waitForReport       = "WaitForReport"
	writeAttribute      = "writeAttribute"
)

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// Encoder turns step descriptors into CLI requests.
type Encoder struct {
	// codec, when set, converts struct arguments into their wire shape
	// keyed by numeric field codes.
	codec *codec.Codec
}

// NewEncoder creates an Encoder. A nil codec keeps arguments in their
// symbolic shape.
func NewEncoder(c *codec.Codec) *Encoder {
	return &Encoder{codec: c}
}

// Encode builds the request for step. It returns an empty request for
// steps that only wait for an unsolicited report.
func (e *Encoder) Encode(step *loader.Step) (string, error) {
	if step.Command == "" {
		return "", fmt.Errorf("%s: %w", step.Label, ErrNoCommand)
	}

	cluster := clusterName(step)
	command, specifier, ok := commandName(step)
	if !ok {
		return "", nil
	}

	args, err := e.arguments(step)
	if err != nil {
		return "", fmt.Errorf("%s: %w", step.Label, err)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte("{ " + args + " }"))

	payload := fmt.Sprintf(`"cluster": "%s", "command": "%s", "arguments" : "base64:%s"`, cluster, command, encoded)
	if specifier != "" {
		payload += fmt.Sprintf(`, "command_specifier": "%s"`, specifier)
	}
	return "json:{ " + payload + " }", nil
}

func clusterName(step *loader.Step) string {
	switch {
	case step.Cluster == commissionerCluster:
		return "pairing"
	case step.Cluster == delayCluster && strings.EqualFold(step.Command, waitForCommissionee):
		return "delay"
	}
	name := strings.ToLower(step.Cluster)
	name = strings.ReplaceAll(name, " ", "")
	return strings.ReplaceAll(name, "/", "")
}

// commandName returns the CLI command and its specifier. ok is false when
// the step must not be sent.
func commandName(step *loader.Step) (command, specifier string, ok bool) {
	switch {
	case step.Cluster == commissionerCluster && strings.EqualFold(step.Command, pairWithCode):
		return "code", "", true
	case strings.EqualFold(step.Command, waitForReport):
		return "", "", false
	case step.IsAttribute():
		return strings.ReplaceAll(step.Command, "Attribute", ""), formatName(step.Attribute), true
	case step.IsEvent():
		return strings.ReplaceAll(step.Command, "Event", ""), formatName(step.Event), true
	}
	return formatName(step.Command), "", true
}

// formatName converts a camel-case or spaced name into kebab case.
func formatName(name string) string {
	name = camelBoundary.ReplaceAllString(name, "${1}-${2}")
	name = strings.NewReplacer(" ", "-", ":", "-", "/", "", "_", "-").Replace(name)
	return strings.ToLower(name)
}

func (e *Encoder) arguments(step *loader.Step) (string, error) {
	var destination string
	switch {
	case step.GroupID != 0:
		destination = "0x" + strconv.FormatUint(groupNodePrefix|uint64(step.GroupID), 16)
	case step.NodeID != 0:
		destination = "0x" + strconv.FormatUint(step.NodeID, 16)
	default:
		return "", ErrNoDestination
	}

	endpointName := "endpoint-id-ignored-for-group-commands"
	if (step.IsAttribute() && step.Command != writeAttribute) || step.IsEvent() {
		endpointName = "endpoint-ids"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `"destination-id": "%s", "%s": "%d"`, destination, endpointName, step.Endpoint)

	for _, arg := range step.Arguments {
		name := arg.Name
		if step.IsAttribute() {
			name = "value"
		}
		if name == "nodeId" && step.Cluster == commissionerCluster && strings.EqualFold(step.Command, pairWithCode) {
			name = "node-id"
		}
		if step.Command == writeAttribute && name == "value" {
			name = "attribute-values"
		}

		v, err := e.wireArgument(step, arg)
		if err != nil {
			return "", fmt.Errorf("argument %s: %w", arg.Name, err)
		}
		js, err := lowercaseMembers(v).MarshalJSON()
		if err != nil {
			return "", fmt.Errorf("argument %s: %w", arg.Name, err)
		}
		// Byte strings render as "hex:" strings.
		if k := v.Kind(); k == value.KindString || k == value.KindBytes {
			fmt.Fprintf(&sb, `, "%s":%s`, name, js)
		} else {
			fmt.Fprintf(&sb, `, "%s":"%s"`, name, strings.ReplaceAll(string(js), `"`, `\"`))
		}
	}

	addOptional(&sb, "min-interval", step.MinInterval)
	addOptional(&sb, "max-interval", step.MaxInterval)
	addOptional(&sb, "timedInteractionTimeoutMs", step.TimedInteractionTimeoutMs)
	addOptional(&sb, "busyWaitForMs", step.BusyWaitMs)
	if step.Identity != "" {
		fmt.Fprintf(&sb, `, "commissioner-name":"%s"`, step.Identity)
	}
	if step.FabricFiltered != nil {
		fmt.Fprintf(&sb, `, "fabric-filtered":"%t"`, *step.FabricFiltered)
	}
	return sb.String(), nil
}

func addOptional(sb *strings.Builder, name string, v *uint64) {
	if v != nil {
		fmt.Fprintf(sb, `, "%s":"%d"`, name, *v)
	}
}

// wireArgument converts a struct argument into its wire shape when a
// codec is configured and the argument's type is known.
func (e *Encoder) wireArgument(step *loader.Step, arg loader.Argument) (value.Value, error) {
	if e.codec == nil {
		return arg.Value, nil
	}
	reg := e.codec.Registry()

	if step.IsAttribute() {
		attr, ok := reg.AttributeByName(step.Cluster, step.Attribute)
		if !ok {
			return arg.Value, nil
		}
		return e.codec.ToWire(arg.Value, step.Cluster, attr.Field.TypeName, attr.Field.IsList)
	}

	cmd, ok := reg.CommandByName(step.Cluster, step.Command)
	if !ok {
		return arg.Value, nil
	}
	field, ok := cmd.FieldByName(arg.Name)
	if !ok {
		return arg.Value, nil
	}
	return e.codec.ToWire(arg.Value, step.Cluster, field.TypeName, field.IsList)
}

// lowercaseMembers lowercases the first letter of every map key.
func lowercaseMembers(v value.Value) value.Value {
	switch v.Kind() {
	case value.KindList:
		list, _ := v.AsList()
		out := make([]value.Value, len(list))
		for i, e := range list {
			out[i] = lowercaseMembers(e)
		}
		return value.List(out...)
	case value.KindMap:
		m, _ := v.AsMap()
		out := value.NewMap()
		for _, k := range m.Keys() {
			e, _ := m.Get(k)
			out.Set(lowerFirst(k), lowercaseMembers(e))
		}
		return value.FromMap(out)
	}
	return v
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
