package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainrun/chainrun/internal/engine"
	"github.com/chainrun/chainrun/pkg/schema"
)

type fakeRunner struct {
	runs   atomic.Int64
	status schema.ChainStatus
	block  chan struct{} // when non-nil, Execute blocks until closed
}

func (r *fakeRunner) Execute(ctx context.Context, def *schema.ChainDefinition, initial map[string]any, opts engine.Options) (*schema.ChainResult, error) {
	r.runs.Add(1)
	if r.block != nil {
		<-r.block
	}
	status := r.status
	if status == "" {
		status = schema.ChainCompleted
	}
	return &schema.ChainResult{Status: status}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDef() *schema.ChainDefinition {
	return &schema.ChainDefinition{
		Name:  "nightly",
		Steps: []schema.StepDefinition{{Name: "a", Operation: "echo"}},
	}
}

func TestScheduler_AddAndList(t *testing.T) {
	s := New(&fakeRunner{}, testLogger(), time.Minute)

	require.NoError(t, s.Add("nightly", "0 3 * * *", testDef(), nil, engine.Options{}))
	require.NoError(t, s.Add("hourly", "0 * * * *", testDef(), nil, engine.Options{}))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "hourly", jobs[0].ID)
	assert.Equal(t, "nightly", jobs[1].ID)
	assert.False(t, jobs[0].NextRunAt.IsZero())
}

func TestScheduler_AddDuplicateRejected(t *testing.T) {
	s := New(&fakeRunner{}, testLogger(), time.Minute)

	require.NoError(t, s.Add("job", "* * * * *", testDef(), nil, engine.Options{}))
	err := s.Add("job", "* * * * *", testDef(), nil, engine.Options{})

	var chainErr *schema.ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, schema.ErrCodeConflict, chainErr.Code)
}

func TestScheduler_AddInvalidCron(t *testing.T) {
	s := New(&fakeRunner{}, testLogger(), time.Minute)

	err := s.Add("job", "not a cron", testDef(), nil, engine.Options{})

	var chainErr *schema.ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, schema.ErrCodeValidation, chainErr.Code)
}

func TestScheduler_TickRunsDueJobs(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, testLogger(), time.Minute)
	require.NoError(t, s.Add("job", "* * * * *", testDef(), nil, engine.Options{}))

	// Force the job due.
	s.mu.Lock()
	s.jobs["job"].NextRunAt = time.Now().UTC().Add(-time.Second)
	s.mu.Unlock()

	s.Tick(context.Background())

	assert.Equal(t, int64(1), runner.runs.Load())

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, schema.ChainCompleted, jobs[0].LastRunStatus)
	assert.False(t, jobs[0].LastRunAt.IsZero())
	assert.True(t, jobs[0].NextRunAt.After(time.Now().UTC().Add(-time.Second)))
}

func TestScheduler_TickSkipsFutureJobs(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, testLogger(), time.Minute)
	require.NoError(t, s.Add("job", "0 3 1 1 *", testDef(), nil, engine.Options{}))

	s.Tick(context.Background())

	assert.Equal(t, int64(0), runner.runs.Load())
}

func TestScheduler_InflightDedup(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s := New(runner, testLogger(), time.Minute)
	require.NoError(t, s.Add("job", "* * * * *", testDef(), nil, engine.Options{}))
	s.mu.Lock()
	s.jobs["job"].NextRunAt = time.Now().UTC().Add(-time.Second)
	s.mu.Unlock()

	started := make(chan struct{})
	go func() {
		close(started)
		s.Tick(context.Background())
	}()
	<-started
	// Wait for the blocked run to be in flight.
	require.Eventually(t, func() bool {
		return runner.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// A concurrent tick must not start a second run of the same job.
	s.Tick(context.Background())
	assert.Equal(t, int64(1), runner.runs.Load())

	close(runner.block)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(&fakeRunner{}, testLogger(), time.Hour)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	// Stop is idempotent and Start works again after Stop.
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestScheduler_Remove(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, testLogger(), time.Minute)
	require.NoError(t, s.Add("job", "* * * * *", testDef(), nil, engine.Options{}))

	s.Remove("job")
	s.Remove("job") // no-op

	assert.Empty(t, s.Jobs())
}

func TestScheduler_NextRun(t *testing.T) {
	s := New(&fakeRunner{}, testLogger(), time.Minute)
	from := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	next, err := s.NextRun("0 12 * * *", from)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC), next)
}
