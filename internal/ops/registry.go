package ops

import (
	"sort"
	"sync"

	"github.com/chainrun/chainrun/pkg/schema"
)

// Registry is the concrete thread-safe operation registry.
type Registry struct {
	mu         sync.RWMutex
	operations map[string]Operation
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		operations: make(map[string]Operation),
	}
}

// Register adds an operation to the registry. Returns error on duplicate name.
func (r *Registry) Register(op Operation) error {
	if op == nil {
		return schema.NewError(schema.ErrCodeValidation, "operation is nil")
	}
	name := op.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "operation name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.operations[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "operation %q already registered", name)
	}

	r.operations[name] = op
	return nil
}

// Get retrieves an operation by name. An unknown name is a configuration
// error: the chain referencing it is unrunnable, never retryable.
func (r *Registry) Get(name string) (Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operations[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownOperation, "operation %q not registered", name)
	}
	return op, nil
}

// Has checks if an operation is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.operations[name]
	return ok
}

// List returns info for all registered operations, sorted by name.
func (r *Registry) List() []OperationInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]OperationInfo, 0, len(r.operations))
	for _, op := range r.operations {
		infos = append(infos, OperationInfo{
			Name:        op.Name(),
			Description: op.Schema().Description,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Count returns the number of registered operations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.operations)
}
