package chiptool

import (
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/codec"
	"github.com/matter-conformance/yamltests/pkg/definitions"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// Config configures an Adapter.
type Config struct {
	// Definitions resolves identifiers and value types.
	Definitions definitions.Registry

	// NumericFieldKeys encodes struct arguments with numeric field codes
	// instead of lowercased member names.
	NumericFieldKeys bool
}

// Adapter encodes steps for the CLI and decodes its results.
type Adapter struct {
	encoder *Encoder
	decoder *Decoder
}

// New creates an Adapter.
func New(cfg Config) *Adapter {
	c := codec.New(cfg.Definitions)
	var encCodec *codec.Codec
	if cfg.NumericFieldKeys {
		encCodec = c
	}
	return &Adapter{
		encoder: NewEncoder(encCodec),
		decoder: NewDecoder(c),
	}
}

// Encode builds the request for step.
func (a *Adapter) Encode(step *loader.Step) (string, error) {
	return a.encoder.Encode(step)
}

// Decode parses the payloads of one request.
func (a *Adapter) Decode(payloads []string) ([]wire.Response, []wire.LogRecord, error) {
	return a.decoder.Decode(payloads)
}
