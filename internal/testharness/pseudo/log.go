package pseudo

import (
	"context"

	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/value"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// LogCommandsName is the name of the log cluster.
const LogCommandsName = "LogCommands"

// Prompter asks the operator a question and returns the answer.
type Prompter interface {
	Prompt(ctx context.Context, message string) (string, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, message string) (string, error)

// Prompt calls f(ctx, message).
func (f PrompterFunc) Prompt(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

type logArgs struct {
	Message string `mapstructure:"message"`
}

type promptArgs struct {
	Message       string `mapstructure:"message"`
	ExpectedValue string `mapstructure:"expectedValue"`
}

// NewLogCommands creates the log cluster. Log emits its message as an
// adapter log record. UserPrompt asks prompter and returns the answer as
// the response value.
func NewLogCommands(prompter Prompter) *Cluster {
	c := NewCluster(LogCommandsName)
	c.RegisterHandler("Log", func(ctx context.Context, step *loader.Step) ([]wire.Response, []wire.LogRecord, error) {
		var args logArgs
		if err := decodeArguments(step, &args); err != nil {
			return nil, nil, err
		}
		return success(step), []wire.LogRecord{logRecord("info", args.Message)}, nil
	})
	c.RegisterHandler("UserPrompt", func(ctx context.Context, step *loader.Step) ([]wire.Response, []wire.LogRecord, error) {
		var args promptArgs
		if err := decodeArguments(step, &args); err != nil {
			return nil, nil, err
		}
		logs := []wire.LogRecord{logRecord("prompt", args.Message)}

		answer := args.ExpectedValue
		if prompter != nil {
			var err error
			if answer, err = prompter.Prompt(ctx, args.Message); err != nil {
				return nil, logs, err
			}
		}
		responses := success(step)
		if args.ExpectedValue != "" || prompter != nil {
			responses[0].SetValue(value.String(answer))
		}
		return responses, logs, nil
	})
	return c
}

func logRecord(level, message string) wire.LogRecord {
	return wire.LogRecord{Module: LogCommandsName, Level: level, Message: message}
}
