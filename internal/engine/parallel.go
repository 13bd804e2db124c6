package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainrun/chainrun/internal/audit"
	"github.com/chainrun/chainrun/internal/logging"
	"github.com/chainrun/chainrun/internal/state"
	"github.com/chainrun/chainrun/pkg/schema"
)

// stepRun collects everything one fanned-out step produced, joined back into
// the run in definition order once every step has finished.
type stepRun struct {
	attempts  []schema.StepResult
	mutations map[string]any
	retries   int
	success   bool
	stop      bool
	bypassed  bool
	cancelled bool
	// skipped marks a step that never started because the run was cancelled
	// or the pool shut down before submission.
	skipped bool
}

// runParallel fans every step out over the worker pool. Each step resolves
// its inputs against an immutable snapshot of the initial state, so no step
// observes another's output mappings. Mappings, history, retry counters, and
// audit events are applied after the join, in definition order, which keeps
// results deterministic regardless of completion order.
func (e *Executor) runParallel(ctx context.Context, def *schema.ChainDefinition, st *state.State, opts Options, result *schema.ChainResult, stats *runStats) {
	snapshot := st.Clone()
	runs := make([]*stepRun, len(def.Steps))

	var wg sync.WaitGroup
	for i := range def.Steps {
		run := &stepRun{}
		runs[i] = run

		step := def.Steps[i]
		label := def.StepLabel(i)

		wg.Add(1)
		err := e.pool.Submit(ctx, func(taskCtx context.Context) error {
			defer wg.Done()
			e.runParallelStep(taskCtx, step, label, snapshot, opts, run)
			return nil
		})
		if err != nil {
			// Not yet started; per cancellation semantics it is never invoked.
			wg.Done()
			run.skipped = true
		}
	}
	wg.Wait()

	for i, run := range runs {
		label := def.StepLabel(i)
		if run.skipped {
			stats.cancelled = true
			continue
		}

		for j, sr := range run.attempts {
			result.History = append(result.History, sr)
			e.emitStep(ctx, result, sr)
			if sr.Status == schema.StepFailure && j < len(run.attempts)-1 {
				e.emit(ctx, &audit.Event{
					RunID: result.RunID, Chain: result.Chain, Step: label, Attempt: sr.Attempt,
					Type:    schema.EventStepRetrying,
					Summary: fmt.Sprintf("attempt %d of %d failed", sr.Attempt, def.Steps[i].OnFailure.MaxRetries),
				})
			}
		}
		for r := 0; r < run.retries; r++ {
			st.IncrementRetry(label)
		}

		switch {
		case run.success:
			stats.final[label] = schema.StepSuccess
			st.Apply(label, run.mutations)
		default:
			stats.final[label] = schema.StepFailure
			if run.stop {
				stats.stopped = true
			}
			if run.bypassed {
				stats.bypassed++
				e.emit(ctx, &audit.Event{
					RunID: result.RunID, Chain: result.Chain, Step: label,
					Attempt: len(run.attempts),
					Type:    schema.EventStepBypassed,
					Summary: "failure bypassed, execution continues",
				})
			}
		}
		if run.cancelled {
			stats.cancelled = true
		}
	}
}

// runParallelStep drives one step through its retry budget against the
// shared read-only snapshot. Jump targets are rejected at load time for
// parallel mode, so only the retry/terminate/bypass axes of the policy apply.
func (e *Executor) runParallelStep(ctx context.Context, step schema.StepDefinition, label string, snapshot *state.State, opts Options, run *stepRun) {
	stepCtx := logging.WithStep(ctx, label)

	attempt := 1
	for {
		if ctx.Err() != nil {
			run.cancelled = true
			if attempt == 1 {
				run.skipped = true
			}
			return
		}

		sr := e.invokeStep(stepCtx, step, label, attempt, snapshot, opts)
		run.attempts = append(run.attempts, sr)

		decision := EvaluatePolicy(step, Outcome{Output: sr.Output, Err: errOf(sr)}, attempt)

		if sr.Status == schema.StepSuccess {
			run.success = true
			run.mutations = decision.Mutations
			return
		}
		if decision.Retry {
			run.retries++
			delay := ComputeBackoff(step.OnFailure, attempt-1)
			if err := WaitForBackoff(stepCtx, delay); err != nil {
				run.cancelled = true
				return
			}
			attempt++
			continue
		}
		run.stop = decision.Terminate
		run.bypassed = decision.Bypassed
		return
	}
}
