package pseudo

import (
	"context"
	"time"

	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// DelayCommandsName is the name of the delay cluster.
const DelayCommandsName = "DelayCommands"

type waitForMsArgs struct {
	Ms uint64 `mapstructure:"ms"`
}

// NewDelayCommands creates the delay cluster. WaitForMs sleeps for the
// given number of milliseconds or until the step context ends.
func NewDelayCommands() *Cluster {
	c := NewCluster(DelayCommandsName)
	c.RegisterHandler("WaitForMs", waitForMs)
	return c
}

func waitForMs(ctx context.Context, step *loader.Step) ([]wire.Response, []wire.LogRecord, error) {
	var args waitForMsArgs
	if err := decodeArguments(step, &args); err != nil {
		return nil, nil, err
	}

	timer := time.NewTimer(time.Duration(args.Ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return success(step), nil, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}
