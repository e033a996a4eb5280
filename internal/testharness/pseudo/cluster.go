// Package pseudo implements clusters that run inside the test runner
// instead of on the device: delays, log output, accessory control and
// commissionable discovery.
package pseudo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/matter-conformance/yamltests/internal/testharness/engine"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/discovery"
	"github.com/matter-conformance/yamltests/pkg/value"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// ErrUnsupportedCommand is returned when a cluster has no handler for a command.
var ErrUnsupportedCommand = errors.New("unsupported command")

// Handler executes one pseudo-cluster command.
type Handler func(ctx context.Context, step *loader.Step) ([]wire.Response, []wire.LogRecord, error)

// Cluster is a named set of command handlers.
type Cluster struct {
	name     string
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewCluster creates an empty cluster.
func NewCluster(name string) *Cluster {
	return &Cluster{
		name:     name,
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler registers the handler of a command.
func (c *Cluster) RegisterHandler(command string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[command] = handler
}

// Name returns the cluster name.
func (c *Cluster) Name() string {
	return c.name
}

// Commands returns the registered command names, sorted.
func (c *Cluster) Commands() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supports reports whether command has a handler.
func (c *Cluster) Supports(command string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.handlers[command]
	return ok
}

// Execute runs the handler of the step's command.
func (c *Cluster) Execute(ctx context.Context, step *loader.Step) ([]wire.Response, []wire.LogRecord, error) {
	c.mu.RLock()
	handler, ok := c.handlers[step.Command]
	c.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s.%s", ErrUnsupportedCommand, c.name, step.Command)
	}
	return handler(ctx, step)
}

// decodeArguments decodes the step arguments into out, a pointer to a
// struct with mapstructure tags. Numeric and string values are converted
// weakly so that YAML literals fit the target field types.
func decodeArguments(step *loader.Step, out any) error {
	args := make(map[string]any, len(step.Arguments))
	for _, a := range step.Arguments {
		args[a.Name] = value.ToAny(a.Value)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("%s.%s arguments: %w", step.Cluster, step.Command, err)
	}
	return nil
}

// success is the response of a command without a return value.
func success(step *loader.Step) []wire.Response {
	return []wire.Response{{Cluster: step.Cluster, Command: step.Command}}
}

// Config selects the collaborators of the default clusters.
type Config struct {
	// Accessory controls the device application. Nil makes system
	// commands succeed without effect.
	Accessory Accessory

	// Browser finds commissionable devices. Nil disables DiscoveryCommands.
	Browser discovery.Browser

	// BrowseTimeout bounds a discovery command. Zero selects
	// discovery.BrowseTimeout.
	BrowseTimeout time.Duration

	// Prompter answers UserPrompt commands. Nil answers every prompt
	// with its expected value.
	Prompter Prompter
}

// Clusters returns the default pseudo clusters.
func Clusters(cfg Config) []*Cluster {
	clusters := []*Cluster{
		NewDelayCommands(),
		NewLogCommands(cfg.Prompter),
		NewSystemCommands(cfg.Accessory),
	}
	if cfg.Browser != nil {
		clusters = append(clusters, NewDiscoveryCommands(cfg.Browser, cfg.BrowseTimeout))
	}
	return clusters
}

// Register adds the clusters to r.
func Register(r *engine.Runner, clusters ...*Cluster) {
	for _, c := range clusters {
		r.RegisterPseudoCluster(c)
	}
}

// Compile-time interface satisfaction check.
var _ engine.PseudoCluster = (*Cluster)(nil)
