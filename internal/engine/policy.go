package engine

import (
	"errors"

	"github.com/chainrun/chainrun/pkg/schema"
)

// Outcome is the captured result of one operation invocation. The invoker
// guarantees Err, when set, is a *schema.ChainError.
type Outcome struct {
	Output map[string]any
	Err    error
}

// Success reports whether the attempt succeeded.
func (o Outcome) Success() bool { return o.Err == nil }

// Decision is the policy evaluator's verdict for one step attempt: which
// state mutations to apply, where the cursor goes next, whether to retry the
// same step, and whether the chain terminates.
type Decision struct {
	// Mutations are the output-mapping writes to apply (success only).
	Mutations map[string]any
	// Next is an explicit jump target; empty means sequential fallthrough
	// (when Terminate is false).
	Next string
	// Retry re-invokes the same step.
	Retry bool
	// Terminate stops the chain; no further steps run.
	Terminate bool
	// Bypassed marks a failure that execution continues past.
	Bypassed bool
}

// EvaluatePolicy decides the next action for a step outcome. attempt is the
// 1-based count of invocations made so far, including the current one.
//
// Retries always exhaust before a terminal next target takes effect: a RETRY
// policy whose continue path names a jump target only reaches that target
// after the final retry attempt fails.
func EvaluatePolicy(step schema.StepDefinition, outcome Outcome, attempt int) Decision {
	if outcome.Success() {
		return Decision{
			Mutations: mapOutputs(step.OnSuccess.OutputMappings, outcome.Output),
			Next:      step.OnSuccess.Next,
		}
	}

	// Configuration errors indicate an unrunnable chain, not a runtime
	// condition: fatal regardless of the declared failure policy.
	var chainErr *schema.ChainError
	if errors.As(outcome.Err, &chainErr) && chainErr.IsConfiguration() {
		return Decision{Terminate: true}
	}

	policy := step.OnFailure
	switch policy.Action {
	case schema.FailureRetry:
		if attempt < policy.MaxRetries {
			return Decision{Retry: true}
		}
		// Exhausted: continue_on_max_retries picks between continue and stop.
		if policy.ContinueOnMaxRetries {
			return Decision{Next: policy.Next, Bypassed: true}
		}
		return Decision{Terminate: true}

	case schema.FailureContinue:
		return Decision{Next: policy.Next, Bypassed: true}

	default: // stop, or unset
		return Decision{Terminate: true}
	}
}

// mapOutputs copies named result fields onto their declared chain state
// keys: result field -> state key. Fields absent from the result are
// skipped; what an operation emits is a contract matter between chain
// author and operation.
func mapOutputs(mappings map[string]string, output map[string]any) map[string]any {
	if len(mappings) == 0 {
		return nil
	}
	mutations := make(map[string]any, len(mappings))
	for field, key := range mappings {
		if v, ok := output[field]; ok {
			mutations[key] = v
		}
	}
	return mutations
}
