package ops

import (
	"context"
	"fmt"
	"log/slog"
)

// logOperation writes a message to the structured log and echoes it back.
type logOperation struct {
	logger *slog.Logger
}

// NewLogOperation creates the log built-in.
func NewLogOperation(logger *slog.Logger) Operation {
	if logger == nil {
		logger = slog.Default()
	}
	return &logOperation{logger: logger}
}

func (o *logOperation) Name() string { return "log" }

func (o *logOperation) Schema() OperationSchema {
	return OperationSchema{
		Description: "Log the 'message' argument at the given 'level' (debug|info|warn|error)",
	}
}

func (o *logOperation) Execute(ctx context.Context, call Call) (map[string]any, error) {
	message := fmt.Sprintf("%v", call.Args["message"])
	level, _ := call.Args["level"].(string)

	switch level {
	case "debug":
		o.logger.DebugContext(ctx, message)
	case "warn":
		o.logger.WarnContext(ctx, message)
	case "error":
		o.logger.ErrorContext(ctx, message)
	default:
		o.logger.InfoContext(ctx, message)
	}

	return map[string]any{"logged": true, "message": message}, nil
}

// echoOperation returns its arguments unchanged. Useful for wiring checks
// and as a trivial mapping source in chains.
type echoOperation struct{}

// NewEchoOperation creates the echo built-in.
func NewEchoOperation() Operation {
	return echoOperation{}
}

func (echoOperation) Name() string { return "echo" }

func (echoOperation) Schema() OperationSchema {
	return OperationSchema{Description: "Return the resolved arguments unchanged"}
}

func (echoOperation) Execute(ctx context.Context, call Call) (map[string]any, error) {
	out := make(map[string]any, len(call.Args))
	for k, v := range call.Args {
		out[k] = v
	}
	return out, nil
}
