package ops

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/chainrun/chainrun/pkg/schema"
)

// jqOperation transforms JSON-like data with a jq expression. Compiled
// *gojq.Code objects are cached and reused across invocations.
type jqOperation struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewJQOperation creates the jq built-in.
func NewJQOperation() Operation {
	return &jqOperation{cache: make(map[string]*gojq.Code)}
}

func (o *jqOperation) Name() string { return "jq" }

func (o *jqOperation) Schema() OperationSchema {
	return OperationSchema{
		Description: "Transform the 'data' argument with a jq expression",
	}
}

func (o *jqOperation) Execute(ctx context.Context, call Call) (map[string]any, error) {
	expression, _ := call.Args["expression"].(string)
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "jq requires non-empty 'expression' string argument")
	}

	code, err := o.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	data := call.Args["data"]
	iter := code.RunWithContext(ctx, data)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if evalErr, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeOperation,
				"jq evaluation failed for %q: %s", expression, evalErr.Error()).
				WithCause(evalErr).
				WithDetails(map[string]any{"expression": expression})
		}
		results = append(results, val)
	}

	// jq expressions can produce multiple outputs: one result is returned
	// directly, several are collected into a slice.
	switch len(results) {
	case 0:
		return map[string]any{"result": nil}, nil
	case 1:
		return map[string]any{"result": results[0]}, nil
	default:
		return map[string]any{"result": results}, nil
	}
}

func (o *jqOperation) getOrCompile(expression string) (*gojq.Code, error) {
	o.mu.RLock()
	if code, ok := o.cache[expression]; ok {
		o.mu.RUnlock()
		return code, nil
	}
	o.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()

	if code, ok := o.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	o.cache[expression] = code
	return code, nil
}
