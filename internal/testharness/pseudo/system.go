package pseudo

import (
	"context"

	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// SystemCommandsName is the name of the accessory control cluster.
const SystemCommandsName = "SystemCommands"

// DefaultRegisterKey selects the accessory when a step names none.
const DefaultRegisterKey = "default"

// StartOptions are the arguments of SystemCommands.Start.
type StartOptions struct {
	RegisterKey             string  `mapstructure:"registerKey"`
	Discriminator           *uint16 `mapstructure:"discriminator"`
	Port                    *uint16 `mapstructure:"port"`
	KVS                     string  `mapstructure:"kvs"`
	MinCommissioningTimeout *uint16 `mapstructure:"minCommissioningTimeout"`
	FilePath                string  `mapstructure:"filepath"`
	OTADownloadPath         string  `mapstructure:"otaDownloadPath"`
}

// Accessory controls device applications by register key.
type Accessory interface {
	Start(ctx context.Context, opts StartOptions) error
	Stop(ctx context.Context, registerKey string) error
	Reboot(ctx context.Context, registerKey string) error
	FactoryReset(ctx context.Context, registerKey string) error
}

type keyArgs struct {
	RegisterKey string `mapstructure:"registerKey"`
}

// NewSystemCommands creates the accessory control cluster. With a nil
// accessory every command succeeds and logs that it was ignored.
func NewSystemCommands(acc Accessory) *Cluster {
	c := NewCluster(SystemCommandsName)

	c.RegisterHandler("Start", func(ctx context.Context, step *loader.Step) ([]wire.Response, []wire.LogRecord, error) {
		var opts StartOptions
		if err := decodeArguments(step, &opts); err != nil {
			return nil, nil, err
		}
		if opts.RegisterKey == "" {
			opts.RegisterKey = DefaultRegisterKey
		}
		if acc == nil {
			return ignored(step)
		}
		if err := acc.Start(ctx, opts); err != nil {
			return nil, nil, err
		}
		return success(step), nil, nil
	})

	keyed := map[string]func(Accessory, context.Context, string) error{
		"Stop":         Accessory.Stop,
		"Reboot":       Accessory.Reboot,
		"FactoryReset": Accessory.FactoryReset,
	}
	for command, call := range keyed {
		c.RegisterHandler(command, func(ctx context.Context, step *loader.Step) ([]wire.Response, []wire.LogRecord, error) {
			var args keyArgs
			if err := decodeArguments(step, &args); err != nil {
				return nil, nil, err
			}
			if args.RegisterKey == "" {
				args.RegisterKey = DefaultRegisterKey
			}
			if acc == nil {
				return ignored(step)
			}
			if err := call(acc, ctx, args.RegisterKey); err != nil {
				return nil, nil, err
			}
			return success(step), nil, nil
		})
	}
	return c
}

func ignored(step *loader.Step) ([]wire.Response, []wire.LogRecord, error) {
	rec := wire.LogRecord{Module: SystemCommandsName, Level: "info", Message: step.Command + " ignored: no accessory configured"}
	return success(step), []wire.LogRecord{rec}, nil
}
