// Package scheduler runs registered chains on cron schedules. Jobs live in
// memory; durable run history comes from the audit sink the executor writes
// to, not from the scheduler itself.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chainrun/chainrun/internal/engine"
	"github.com/chainrun/chainrun/pkg/schema"
)

// Runner is the interface the scheduler drives. Satisfied by the engine
// executor.
type Runner interface {
	Execute(ctx context.Context, def *schema.ChainDefinition, initial map[string]any, opts engine.Options) (*schema.ChainResult, error)
}

// Job is one scheduled chain.
type Job struct {
	ID             string
	CronExpression string
	Definition     *schema.ChainDefinition
	Initial        map[string]any
	Options        engine.Options

	NextRunAt     time.Time
	LastRunAt     time.Time
	LastRunStatus schema.ChainStatus
}

// Scheduler ticks over its job table and runs due chains.
type Scheduler struct {
	runner   Runner
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	jobs   map[string]*Job
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// New creates a Scheduler. tickInterval <= 0 defaults to one minute.
func New(runner Runner, logger *slog.Logger, tickInterval time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	return &Scheduler{
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		interval: tickInterval,
		jobs:     make(map[string]*Job),
		inflight: make(map[string]struct{}),
	}
}

// Add registers a chain under the given cron expression. The ID must be
// unique among registered jobs.
func (s *Scheduler) Add(id, cronExpr string, def *schema.ChainDefinition, initial map[string]any, opts engine.Options) error {
	next, err := s.NextRun(cronExpr, time.Now().UTC())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "scheduled job %q already registered", id)
	}
	s.jobs[id] = &Job{
		ID:             id,
		CronExpression: cronExpr,
		Definition:     def,
		Initial:        initial,
		Options:        opts,
		NextRunAt:      next,
	}
	s.logger.Info("scheduled job added",
		slog.String("job_id", id), slog.String("cron", cronExpr),
		slog.Time("next_run_at", next))
	return nil
}

// Remove drops a job from the table. Removing an unknown ID is a no-op.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Jobs returns a snapshot of the job table, sorted by ID.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Start launches the background tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(loopCtx)
	s.logger.Info("scheduler started", slog.Duration("tick_interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every due job once. Exported so callers with their own timing
// source can drive the scheduler directly.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.Lock()
	due := make([]*Job, 0)
	for _, j := range s.jobs {
		if !j.NextRunAt.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		if !s.tryAcquire(job.ID) {
			continue // previous run still in flight
		}
		s.runJob(ctx, job, now)
		s.release(job.ID)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *Job, now time.Time) {
	s.logger.Info("running scheduled chain",
		slog.String("job_id", job.ID),
		slog.String("chain", job.Definition.Name))

	result, err := s.runner.Execute(ctx, job.Definition, job.Initial, job.Options)

	status := schema.ChainFailed
	if err != nil {
		s.logger.Error("scheduled chain rejected",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	} else {
		status = result.Status
	}

	next, nextErr := s.NextRun(job.CronExpression, now)
	if nextErr != nil {
		s.logger.Error("failed to compute next run",
			slog.String("job_id", job.ID),
			slog.String("error", nextErr.Error()))
		next = now.Add(s.interval)
	}

	s.mu.Lock()
	if current, ok := s.jobs[job.ID]; ok {
		current.LastRunAt = now
		current.LastRunStatus = status
		current.NextRunAt = next
	}
	s.mu.Unlock()
}

func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

func (s *Scheduler) release(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// NextRun computes the next fire time for a cron expression.
func (s *Scheduler) NextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation,
			"parse cron expression %q: %v", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
