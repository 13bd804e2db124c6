package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainrun/chainrun/pkg/schema"
)

// Invoker looks up an operation by name and invokes it with resolved
// arguments, capturing result or error. No failure raised by an operation,
// whether a returned error or a panic, escapes the Invoke boundary untyped; this is
// what lets the policy evaluator treat all operation failures uniformly.
type Invoker struct {
	registry Lookup
}

// NewInvoker creates an Invoker backed by the given registry.
func NewInvoker(registry Lookup) *Invoker {
	return &Invoker{registry: registry}
}

// Invoke executes the named operation. A missing name yields a configuration
// error (UNKNOWN_OPERATION): an unrunnable chain, not a runtime condition.
// All other failures come back as OPERATION_ERROR ChainErrors.
func (iv *Invoker) Invoke(ctx context.Context, name string, args, callerCtx map[string]any) (out map[string]any, err error) {
	op, lookupErr := iv.registry.Get(name)
	if lookupErr != nil {
		var chainErr *schema.ChainError
		if errors.As(lookupErr, &chainErr) {
			return nil, chainErr
		}
		return nil, schema.NewErrorf(schema.ErrCodeUnknownOperation, "operation %q: %s", name, lookupErr.Error()).WithCause(lookupErr)
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = schema.NewErrorf(schema.ErrCodeOperation, "operation %q panicked: %v", name, r)
		}
	}()

	result, execErr := op.Execute(ctx, Call{Args: args, Context: callerCtx})
	if execErr != nil {
		var chainErr *schema.ChainError
		if errors.As(execErr, &chainErr) {
			return nil, chainErr
		}
		return nil, schema.NewErrorf(schema.ErrCodeOperation, "operation %q: %s", name, execErr.Error()).WithCause(execErr)
	}
	return result, nil
}

// ValidateNames checks that every name resolves in the registry. Used for
// eager configuration-error detection at chain-load time.
func (iv *Invoker) ValidateNames(names []string) error {
	for _, name := range names {
		if _, err := iv.registry.Get(name); err != nil {
			return fmt.Errorf("validate operation %q: %w", name, err)
		}
	}
	return nil
}
