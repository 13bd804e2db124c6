package ops

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/chainrun/chainrun/pkg/schema"
)

// exprEvalOperation evaluates an Expr expression against its arguments.
// Compiled *vm.Program objects are cached and reused across invocations.
type exprEvalOperation struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEvalOperation creates the expr.eval built-in.
func NewExprEvalOperation() Operation {
	return &exprEvalOperation{cache: make(map[string]*vm.Program)}
}

func (o *exprEvalOperation) Name() string { return "expr.eval" }

func (o *exprEvalOperation) Schema() OperationSchema {
	return OperationSchema{
		Description: "Evaluate an Expr expression; args besides 'expression' form the environment",
	}
}

func (o *exprEvalOperation) Execute(ctx context.Context, call Call) (map[string]any, error) {
	expression, _ := call.Args["expression"].(string)
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "expr.eval requires non-empty 'expression' string argument")
	}

	env := make(map[string]any, len(call.Args))
	for k, v := range call.Args {
		if k == "expression" {
			continue
		}
		env[k] = v
	}

	prg, err := o.getOrCompile(expression, env)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeOperation,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return map[string]any{"result": out}, nil
}

func (o *exprEvalOperation) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
	o.mu.RLock()
	if prg, ok := o.cache[expression]; ok {
		o.mu.RUnlock()
		return prg, nil
	}
	o.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()

	if prg, ok := o.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compilation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	o.cache[expression] = prg
	return prg, nil
}
