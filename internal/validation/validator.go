// Package validation detects configuration errors at chain-load time, before
// any step runs: dangling jump targets, malformed retry policies, and
// branching fields that a given execution mode cannot honor. Runtime
// conditions are the executor's concern; anything caught here marks the
// chain as unrunnable.
package validation

import (
	"fmt"

	"github.com/chainrun/chainrun/internal/ops"
	"github.com/chainrun/chainrun/pkg/schema"
)

// ValidateDefinition runs all semantic checks for the given execution mode.
// lookup may be nil to skip operation existence checks (e.g. when the
// registry is populated later).
func ValidateDefinition(def *schema.ChainDefinition, mode schema.ExecutionMode, lookup ops.Lookup) error {
	return Validate(def, mode, lookup).ToError()
}

// Validate returns the full set of issues instead of the first error.
func Validate(def *schema.ChainDefinition, mode schema.ExecutionMode, lookup ops.Lookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if def == nil {
		result.AddError("/", schema.ErrCodeValidation, "chain definition is nil")
		return result
	}
	if len(def.Steps) == 0 {
		result.AddError("steps", schema.ErrCodeValidation, "chain has no steps")
		return result
	}

	checkNames(def, result)
	checkPolicies(def, mode, result)
	if lookup != nil {
		checkOperations(def, lookup, result)
	}

	return result
}

// checkNames verifies step names are unique and builds no dangling jumps:
// every next reference used in any policy must resolve to a step in the
// same chain.
func checkNames(def *schema.ChainDefinition, result *schema.ValidationResult) {
	seen := make(map[string]int, len(def.Steps))
	for i, step := range def.Steps {
		if step.Name == "" {
			continue
		}
		if prev, dup := seen[step.Name]; dup {
			result.AddError(
				fmt.Sprintf("steps[%d].name", i),
				schema.ErrCodeConfiguration,
				fmt.Sprintf("duplicate step name %q (first declared at index %d)", step.Name, prev),
			)
			continue
		}
		seen[step.Name] = i
	}

	index := def.IndexByName()
	for i, step := range def.Steps {
		if next := step.OnSuccess.Next; next != "" {
			if _, ok := index[next]; !ok {
				result.AddError(
					fmt.Sprintf("steps[%d].on_success.next", i),
					schema.ErrCodeConfiguration,
					fmt.Sprintf("step %s: on_success.next %q does not resolve to any step", def.StepLabel(i), next),
				)
			}
		}
		if next := step.OnFailure.Next; next != "" {
			if _, ok := index[next]; !ok {
				result.AddError(
					fmt.Sprintf("steps[%d].on_failure.next", i),
					schema.ErrCodeConfiguration,
					fmt.Sprintf("step %s: on_failure.next %q does not resolve to any step", def.StepLabel(i), next),
				)
			}
		}
	}
}

// checkPolicies validates failure policy shapes, and rejects branching
// fields in parallel mode: there is no cursor to honor them, and silently
// dropping authored branching logic would hide a chain-authoring bug.
func checkPolicies(def *schema.ChainDefinition, mode schema.ExecutionMode, result *schema.ValidationResult) {
	for i, step := range def.Steps {
		switch step.OnFailure.Action {
		case "", schema.FailureStop, schema.FailureContinue:
		case schema.FailureRetry:
			if step.OnFailure.MaxRetries < 1 {
				result.AddError(
					fmt.Sprintf("steps[%d].on_failure.max_retries", i),
					schema.ErrCodeConfiguration,
					fmt.Sprintf("step %s: retry policy requires max_retries >= 1", def.StepLabel(i)),
				)
			}
		default:
			result.AddError(
				fmt.Sprintf("steps[%d].on_failure.action", i),
				schema.ErrCodeConfiguration,
				fmt.Sprintf("step %s: unknown failure action %q", def.StepLabel(i), step.OnFailure.Action),
			)
		}

		if mode == schema.ModeParallel {
			if step.OnSuccess.Next != "" || step.OnFailure.Next != "" {
				result.AddError(
					fmt.Sprintf("steps[%d]", i),
					schema.ErrCodeConfiguration,
					fmt.Sprintf("step %s: next targets are not honored in parallel mode", def.StepLabel(i)),
				)
			}
		}
	}
}

// checkOperations verifies every referenced operation name resolves in the
// registry. A missing operation is a configuration error, never retryable.
func checkOperations(def *schema.ChainDefinition, lookup ops.Lookup, result *schema.ValidationResult) {
	for i, step := range def.Steps {
		if step.Operation == "" {
			result.AddError(
				fmt.Sprintf("steps[%d].operation", i),
				schema.ErrCodeConfiguration,
				fmt.Sprintf("step %s: operation name is empty", def.StepLabel(i)),
			)
			continue
		}
		if _, err := lookup.Get(step.Operation); err != nil {
			result.AddError(
				fmt.Sprintf("steps[%d].operation", i),
				schema.ErrCodeUnknownOperation,
				fmt.Sprintf("step %s: %s", def.StepLabel(i), err.Error()),
			)
		}
	}
}
