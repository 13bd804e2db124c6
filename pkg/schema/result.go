package schema

import "time"

// ChainStatus is the terminal status of a chain run.
type ChainStatus string

const (
	ChainCompleted          ChainStatus = "completed"
	ChainFailed             ChainStatus = "failed"
	ChainPartiallyCompleted ChainStatus = "partially_completed"
)

// StepStatus is the outcome of a single step attempt.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"
)

// StepResult records one executed attempt. History entries are append-only:
// a retried step adds a new StepResult per attempt rather than mutating the
// prior one.
type StepResult struct {
	Step      string         `json:"step"`
	Attempt   int            `json:"attempt"`
	Status    StepStatus     `json:"status"`
	Output    map[string]any `json:"output,omitempty"`
	Error     *ChainError    `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// ChainResult is produced once, at chain completion. Callers receive a
// complete result even on failure; there is no silent failure mode.
type ChainResult struct {
	Chain          string         `json:"chain,omitempty"`
	RunID          string         `json:"run_id"`
	Status         ChainStatus    `json:"status"`
	StepsExecuted  int            `json:"steps_executed"`
	StepsSucceeded int            `json:"steps_succeeded"`
	StepsFailed    int            `json:"steps_failed"`
	History        []StepResult   `json:"history"`
	FinalState     map[string]any `json:"final_state"`
	// Meta is the engine bookkeeping snapshot (retry counters), kept out of
	// the templating-visible state namespace.
	Meta        map[string]int `json:"meta,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}
