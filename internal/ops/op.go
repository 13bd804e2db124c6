// Package ops defines the operation calling convention consumed by the
// chain executor, a reference registry implementation, and the invoker that
// converts every operation failure into a typed outcome.
package ops

import "context"

// Operation is an opaque named unit of work looked up by name at invocation
// time. Implementations receive resolved arguments and must return either a
// structured result map or an error; they must not mutate chain state
// directly; all state writes are mediated by output mappings.
type Operation interface {
	Name() string
	Schema() OperationSchema
	Execute(ctx context.Context, call Call) (map[string]any, error)
}

// Call is the data handed to an operation at execution time.
type Call struct {
	// Args are the step's resolved inputs.
	Args map[string]any
	// Context is the opaque caller context (identity, authorization,
	// correlation data) passed unchanged into every invocation. The engine
	// never inspects its contents.
	Context map[string]any
}

// OperationSchema describes an operation's declared input/output contract.
type OperationSchema struct {
	Description  string `json:"description,omitempty"`
	InputSchema  string `json:"input_schema,omitempty"`
	OutputSchema string `json:"output_schema,omitempty"`
}

// OperationInfo is a summary of a registered operation for listing.
type OperationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Lookup is the registry boundary the engine depends on: given a name,
// return a callable with a known calling convention. Registry contents are
// treated as read-only for a run's duration.
type Lookup interface {
	Get(name string) (Operation, error)
}
