package schema

import "fmt"

// ChainDefinition is the JSON-serializable chain format: an ordered list of
// steps executed as one logical run. Definitions are loaded once and treated
// as read-only for the lifetime of a run.
type ChainDefinition struct {
	Name  string           `json:"name,omitempty"`
	Steps []StepDefinition `json:"steps"`
}

// StepDefinition describes a single step in a chain: one named-operation
// invocation plus its success/failure policy.
type StepDefinition struct {
	Name      string         `json:"name,omitempty"`      // jump target; position is the implicit identity when absent
	Operation string         `json:"operation"`           // key into the operation registry
	Inputs    map[string]any `json:"inputs,omitempty"`    // literals or state references (state.<key>)
	OnSuccess SuccessPolicy  `json:"on_success,omitempty"`
	OnFailure FailurePolicy  `json:"on_failure,omitempty"`
}

// SuccessPolicy declares what happens after a step succeeds.
type SuccessPolicy struct {
	// OutputMappings copies named fields of the operation result onto new
	// chain state keys: result field -> state key.
	OutputMappings map[string]string `json:"output_mappings,omitempty"`
	// Next is an explicit next step name; empty means sequential fallthrough.
	Next string `json:"next,omitempty"`
}

// FailurePolicy declares what happens after a step fails.
type FailurePolicy struct {
	Action FailureAction `json:"action,omitempty"` // default: stop
	// MaxRetries bounds retry attempts; required (>= 1) when Action is retry.
	MaxRetries int `json:"max_retries,omitempty"`
	// ContinueOnMaxRetries treats an exhausted retry as continue instead of stop.
	ContinueOnMaxRetries bool `json:"continue_on_max_retries,omitempty"`
	// Next is the target step when continuing after failure; empty means fallthrough.
	Next string `json:"next,omitempty"`
	// Backoff configures the delay between retry attempts:
	// none | constant | linear | exponential (default: none).
	Backoff string `json:"backoff,omitempty"`
	Delay   string `json:"delay,omitempty"`     // initial delay (e.g. "1s", "500ms")
	MaxDelay string `json:"max_delay,omitempty"` // cap for linear/exponential growth
}

// FailureAction enumerates the declared reactions to a step failure.
type FailureAction string

const (
	FailureStop     FailureAction = "stop"
	FailureRetry    FailureAction = "retry"
	FailureContinue FailureAction = "continue"
)

// ExecutionMode selects how the executor drives a chain.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// StepLabel returns the identity of the step at index i: its declared name,
// or a positional label when unnamed.
func (d *ChainDefinition) StepLabel(i int) string {
	if i >= 0 && i < len(d.Steps) && d.Steps[i].Name != "" {
		return d.Steps[i].Name
	}
	return fmt.Sprintf("step[%d]", i)
}

// IndexByName builds the name -> index map used for jump resolution.
// Unnamed steps are not addressable.
func (d *ChainDefinition) IndexByName() map[string]int {
	idx := make(map[string]int, len(d.Steps))
	for i, s := range d.Steps {
		if s.Name != "" {
			idx[s.Name] = i
		}
	}
	return idx
}
