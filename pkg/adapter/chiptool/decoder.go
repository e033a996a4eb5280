package chiptool

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/matter-conformance/yamltests/pkg/codec"
	"github.com/matter-conformance/yamltests/pkg/definitions"
	"github.com/matter-conformance/yamltests/pkg/value"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// Keys of a result object.
const (
	keyClusterID    = "clusterId"
	keyEndpointID   = "endpointId"
	keyCommandID    = "commandId"
	keyAttributeID  = "attributeId"
	keyEventID      = "eventId"
	keyValue        = "value"
	keyError        = "error"
	keyClusterError = "clusterError"
)

type envelope struct {
	Results []value.Value `json:"results"`
	Logs    []rawLog      `json:"logs"`
}

type rawLog struct {
	Module   string `json:"module"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Decoder turns CLI result payloads into symbolic responses.
type Decoder struct {
	reg   definitions.Registry
	codec *codec.Codec
}

// NewDecoder creates a Decoder over c's registry.
func NewDecoder(c *codec.Codec) *Decoder {
	return &Decoder{reg: c.Registry(), codec: c}
}

// Decode parses the payloads of one request. Terminal markers are
// skipped. An empty result set yields a single empty response, and a
// trailing bare FAILURE status is dropped when other results precede it.
func (d *Decoder) Decode(payloads []string) ([]wire.Response, []wire.LogRecord, error) {
	var (
		responses []wire.Response
		logs      []wire.LogRecord
	)
	for _, payload := range payloads {
		if payload == "" || wire.IsTerminal(payload) {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return nil, nil, fmt.Errorf("invalid result payload: %w", err)
		}
		for _, l := range env.Logs {
			rec, err := wire.DecodeLogRecord(l.Module, l.Category, l.Message)
			if err != nil {
				return nil, nil, err
			}
			logs = append(logs, rec)
		}
		for i, result := range env.Results {
			m, ok := result.AsMap()
			if !ok {
				return nil, nil, fmt.Errorf("result %d is %s, not an object", i, result.Kind())
			}
			r, err := d.translate(m)
			if err != nil {
				return nil, nil, err
			}
			if err := d.codec.ConvertResponse(&r); err != nil {
				return nil, nil, err
			}
			responses = append(responses, r)
		}
	}

	switch {
	case len(responses) == 0:
		responses = []wire.Response{{}}
	case len(responses) > 1 && isBareFailure(responses[len(responses)-1]):
		responses = responses[:len(responses)-1]
	}
	return responses, logs, nil
}

// translate replaces numeric identifiers with names.
func (d *Decoder) translate(m *value.Map) (wire.Response, error) {
	var r wire.Response

	var clusterID uint32
	hasCluster := false
	if v, ok := m.Get(keyClusterID); ok {
		id, err := id32(keyClusterID, v)
		if err != nil {
			return r, err
		}
		clusterID, hasCluster = id, true
		n, known := d.reg.ClusterName(id)
		r.Cluster = nameOr(n, known, id)
	}

	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		switch k {
		case keyClusterID:
		case keyEndpointID:
			n, ok := v.AsUint()
			if !ok || n > math.MaxUint16 {
				return r, fmt.Errorf("%s %s is not an endpoint", k, v)
			}
			ep := uint16(n)
			r.Endpoint = &ep
		case keyCommandID, keyAttributeID, keyEventID:
			if !hasCluster {
				return r, fmt.Errorf("%s without %s", k, keyClusterID)
			}
			id, err := id32(k, v)
			if err != nil {
				return r, err
			}
			switch k {
			case keyCommandID:
				n, known := d.reg.ResponseName(clusterID, id)
				r.Command = nameOr(n, known, id)
			case keyAttributeID:
				n, known := d.reg.AttributeName(clusterID, id)
				r.Attribute = nameOr(n, known, id)
			case keyEventID:
				n, known := d.reg.EventName(clusterID, id)
				r.Event = nameOr(n, known, id)
			}
		case keyValue:
			r.SetValue(v)
		case keyError:
			r.Error, _ = v.AsString()
		case keyClusterError:
			n, ok := v.AsUint()
			if !ok || n > math.MaxUint8 {
				return r, fmt.Errorf("%s %s is not a status code", k, v)
			}
			code := uint8(n)
			r.ClusterError = &code
		default:
			return r, &codec.UnsupportedFieldError{Cluster: r.Cluster, Type: "result", Key: k}
		}
	}
	return r, nil
}

func id32(key string, v value.Value) (uint32, error) {
	n, ok := v.AsUint()
	if !ok || n > math.MaxUint32 {
		return 0, fmt.Errorf("%s %s is not an identifier", key, v)
	}
	return uint32(n), nil
}

// nameOr falls back to the decimal identifier when the registry does not
// know it, so that the value passes through the codec unchanged.
func nameOr(name string, known bool, id uint32) string {
	if known {
		return name
	}
	return strconv.FormatUint(uint64(id), 10)
}

func isBareFailure(r wire.Response) bool {
	return r.Error == wire.StatusFailure.String() &&
		r.Cluster == "" && r.Endpoint == nil &&
		r.Command == "" && r.Attribute == "" && r.Event == "" &&
		!r.HasValue && r.ClusterError == nil
}
