// Package engine drives chain runs: it resolves step inputs against chain
// state, invokes operations through the registry, applies success and
// failure policies, and assembles the auditable run result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chainrun/chainrun/internal/audit"
	"github.com/chainrun/chainrun/internal/logging"
	"github.com/chainrun/chainrun/internal/ops"
	"github.com/chainrun/chainrun/internal/resolve"
	"github.com/chainrun/chainrun/internal/state"
	"github.com/chainrun/chainrun/internal/validation"
	"github.com/chainrun/chainrun/pkg/schema"
)

// DefaultPoolSize bounds parallel-mode fan-out when no size is configured.
const DefaultPoolSize = 10

// Config tunes an Executor.
type Config struct {
	// PoolSize bounds parallel-mode concurrency. Defaults to DefaultPoolSize.
	PoolSize int
	// Sink receives audit events. Defaults to audit.Discard.
	Sink audit.Sink
	// Logger receives engine logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Options tune a single Execute call.
type Options struct {
	// Mode selects sequential or parallel execution. Defaults to sequential.
	Mode schema.ExecutionMode
	// ChainName overrides the definition's name for correlation and audit.
	ChainName string
	// Context is opaque caller context handed to every operation unchanged.
	Context map[string]any
}

// Executor runs chain definitions against a registry of operations.
// It is safe for concurrent use; each run carries its own state.
type Executor struct {
	registry ops.Lookup
	invoker  *ops.Invoker
	resolver *resolve.Resolver
	pool     *WorkerPool
	sink     audit.Sink
	logger   *slog.Logger
}

// New creates an Executor over the given operation registry.
func New(registry ops.Lookup, cfg Config) *Executor {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.Sink == nil {
		cfg.Sink = audit.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		invoker:  ops.NewInvoker(registry),
		resolver: resolve.New(),
		pool:     NewWorkerPool(cfg.PoolSize),
		sink:     cfg.Sink,
		logger:   cfg.Logger,
	}
}

// Shutdown drains the parallel worker pool. Call once when the executor is
// no longer needed.
func (e *Executor) Shutdown() { e.pool.Shutdown() }

// runStats accumulates per-run accounting shared by both execution modes.
type runStats struct {
	// final holds the last observed outcome per step label. A step revisited
	// via a jump is counted once, by its most recent outcome.
	final    map[string]schema.StepStatus
	bypassed int
	stopped  bool
	// cancelled is set when the run was cut short by context cancellation.
	cancelled bool
}

func newRunStats() *runStats {
	return &runStats{final: make(map[string]schema.StepStatus)}
}

// Execute runs a chain definition to completion and returns its result.
//
// A non-nil error is returned only for load-time configuration problems
// (invalid definition, unknown operations, branching in parallel mode).
// Runtime step failures never surface as an Execute error: they are folded
// into the returned ChainResult per each step's failure policy.
func (e *Executor) Execute(ctx context.Context, def *schema.ChainDefinition, initial map[string]any, opts Options) (*schema.ChainResult, error) {
	mode := opts.Mode
	if mode == "" {
		mode = schema.ModeSequential
	}
	if err := validation.ValidateDefinition(def, mode, e.registry); err != nil {
		return nil, err
	}

	chainName := opts.ChainName
	if chainName == "" {
		chainName = def.Name
	}
	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)
	if chainName != "" {
		ctx = logging.WithChain(ctx, chainName)
	}

	st := state.New(initial)
	result := &schema.ChainResult{
		Chain:     chainName,
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}

	e.logger.InfoContext(ctx, "chain run starting",
		slog.Int("steps", len(def.Steps)), slog.String("mode", string(mode)))
	e.emit(ctx, &audit.Event{
		RunID:   runID,
		Chain:   chainName,
		Type:    schema.EventChainStarted,
		Summary: fmt.Sprintf("%d steps, %s mode", len(def.Steps), mode),
	})

	stats := newRunStats()
	if mode == schema.ModeParallel {
		e.runParallel(ctx, def, st, opts, result, stats)
	} else {
		e.runSequential(ctx, def, st, opts, result, stats)
	}

	e.finalize(ctx, result, st, stats)
	return result, nil
}

// runSequential walks the steps with a cursor, honoring policy-driven jumps
// and retries. The cursor falls off the end (or a jump resolves nowhere
// further) to terminate normally.
func (e *Executor) runSequential(ctx context.Context, def *schema.ChainDefinition, st *state.State, opts Options, result *schema.ChainResult, stats *runStats) {
	index := def.IndexByName()

	i := 0
	for i >= 0 && i < len(def.Steps) {
		if ctx.Err() != nil {
			stats.cancelled = true
			return
		}

		step := def.Steps[i]
		label := def.StepLabel(i)
		stepCtx := logging.WithStep(ctx, label)

		attempt := st.RetryCount(label) + 1
		sr := e.invokeStep(stepCtx, step, label, attempt, st, opts)
		result.History = append(result.History, sr)
		e.emitStep(ctx, result, sr)

		decision := EvaluatePolicy(step, Outcome{Output: sr.Output, Err: errOf(sr)}, attempt)

		if sr.Status == schema.StepSuccess {
			st.Apply(label, decision.Mutations)
			stats.final[label] = schema.StepSuccess
		} else if decision.Retry {
			st.IncrementRetry(label)
			e.logger.WarnContext(stepCtx, "step failed, retrying",
				slog.Int("attempt", attempt), slog.Int("max_retries", step.OnFailure.MaxRetries))
			e.emit(ctx, &audit.Event{
				RunID: result.RunID, Chain: result.Chain, Step: label, Attempt: attempt,
				Type:    schema.EventStepRetrying,
				Summary: fmt.Sprintf("attempt %d of %d failed", attempt, step.OnFailure.MaxRetries),
			})
			delay := ComputeBackoff(step.OnFailure, attempt-1)
			if err := WaitForBackoff(stepCtx, delay); err != nil {
				stats.final[label] = schema.StepFailure
				stats.cancelled = true
				return
			}
			continue
		} else {
			stats.final[label] = schema.StepFailure
			if decision.Terminate {
				stats.stopped = true
				return
			}
			stats.bypassed++
			e.emit(ctx, &audit.Event{
				RunID: result.RunID, Chain: result.Chain, Step: label, Attempt: attempt,
				Type:    schema.EventStepBypassed,
				Summary: "failure bypassed, execution continues",
			})
		}

		if decision.Next != "" {
			i = index[decision.Next]
		} else {
			i++
		}
	}
}

// invokeStep resolves inputs against current state, invokes the operation,
// and records the attempt.
func (e *Executor) invokeStep(ctx context.Context, step schema.StepDefinition, label string, attempt int, st *state.State, opts Options) schema.StepResult {
	args := e.resolver.Resolve(step.Inputs, st)
	started := time.Now().UTC()
	out, err := e.invoker.Invoke(ctx, step.Operation, args, opts.Context)
	sr := schema.StepResult{
		Step:      label,
		Attempt:   attempt,
		Status:    schema.StepSuccess,
		Output:    out,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if err != nil {
		sr.Status = schema.StepFailure
		sr.Output = nil
		sr.Error = asChainError(err, label)
		e.logger.WarnContext(ctx, "step failed",
			slog.String("operation", step.Operation),
			slog.Int("attempt", attempt),
			slog.String("error", sr.Error.Message))
	} else {
		e.logger.DebugContext(ctx, "step succeeded",
			slog.String("operation", step.Operation), slog.Int("attempt", attempt))
	}
	return sr
}

// finalize computes the terminal status, fills the aggregate counters, and
// emits the closing audit event.
func (e *Executor) finalize(ctx context.Context, result *schema.ChainResult, st *state.State, stats *runStats) {
	var succeeded, failed int
	for _, status := range stats.final {
		if status == schema.StepSuccess {
			succeeded++
		} else {
			failed++
		}
	}

	result.StepsExecuted = len(stats.final)
	result.StepsSucceeded = succeeded
	result.StepsFailed = failed
	result.FinalState = st.Snapshot()
	result.Meta = st.MetaSnapshot()
	result.CompletedAt = time.Now().UTC()

	switch {
	case stats.cancelled:
		result.Status = schema.ChainPartiallyCompleted
	case stats.stopped:
		result.Status = schema.ChainFailed
	case failed > 0 && succeeded > 0:
		result.Status = schema.ChainPartiallyCompleted
	case failed > 0:
		result.Status = schema.ChainFailed
	default:
		result.Status = schema.ChainCompleted
	}

	e.logger.InfoContext(ctx, "chain run finished",
		slog.String("status", string(result.Status)),
		slog.Int("steps_executed", result.StepsExecuted),
		slog.Int("steps_succeeded", result.StepsSucceeded),
		slog.Int("steps_failed", result.StepsFailed),
		slog.Duration("elapsed", result.CompletedAt.Sub(result.StartedAt)))
	e.emit(ctx, &audit.Event{
		RunID: result.RunID,
		Chain: result.Chain,
		Type:  schema.ChainEventType(result.Status),
		Summary: fmt.Sprintf("%d executed, %d succeeded, %d failed",
			result.StepsExecuted, result.StepsSucceeded, result.StepsFailed),
		Duration: result.CompletedAt.Sub(result.StartedAt),
	})
}

func (e *Executor) emitStep(ctx context.Context, result *schema.ChainResult, sr schema.StepResult) {
	event := &audit.Event{
		RunID:    result.RunID,
		Chain:    result.Chain,
		Step:     sr.Step,
		Attempt:  sr.Attempt,
		Type:     schema.StepEventType(sr.Status),
		Status:   string(sr.Status),
		Duration: sr.Duration,
	}
	if sr.Error != nil {
		event.Summary = sr.Error.Message
	}
	e.emit(ctx, event)
}

// emit delivers an audit event best-effort. A sink failure is logged and
// swallowed; audit must never change a run's outcome.
func (e *Executor) emit(ctx context.Context, event *audit.Event) {
	if err := e.sink.Emit(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "audit emit failed",
			slog.String("event_type", event.Type), slog.String("error", err.Error()))
	}
}

// errOf reconstructs the invocation error carried by a failed attempt.
func errOf(sr schema.StepResult) error {
	if sr.Error == nil {
		return nil
	}
	return sr.Error
}

// asChainError normalizes an invocation error to a *schema.ChainError
// attributed to the failing step. Typed errors are copied before the step
// is attached; operations may return a shared error instance.
func asChainError(err error, step string) *schema.ChainError {
	var chainErr *schema.ChainError
	if errors.As(err, &chainErr) {
		if chainErr.Step != "" {
			return chainErr
		}
		attributed := *chainErr
		attributed.Step = step
		return &attributed
	}
	return schema.NewError(schema.ErrCodeOperation, err.Error()).WithStep(step).WithCause(err)
}
