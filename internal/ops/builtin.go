package ops

import "log/slog"

// RegisterBuiltins registers all built-in operations in the given registry.
func RegisterBuiltins(reg *Registry, logger *slog.Logger) error {
	all := []Operation{
		NewExprEvalOperation(),
		NewJQOperation(),
		NewLogOperation(logger),
		NewEchoOperation(),
	}

	for _, op := range all {
		if err := reg.Register(op); err != nil {
			return err
		}
	}
	return nil
}
