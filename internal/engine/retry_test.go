package engine

import (
	"context"
	"testing"
	"time"

	"github.com/chainrun/chainrun/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBackoff_NoDelay(t *testing.T) {
	assert.Equal(t, time.Duration(0), ComputeBackoff(schema.FailurePolicy{}, 0))
}

func TestComputeBackoff_InvalidDelay(t *testing.T) {
	policy := schema.FailurePolicy{Delay: "soon"}
	assert.Equal(t, time.Duration(0), ComputeBackoff(policy, 0))
}

func TestComputeBackoff_Constant(t *testing.T) {
	policy := schema.FailurePolicy{Backoff: "constant", Delay: "100ms"}
	assert.Equal(t, 100*time.Millisecond, ComputeBackoff(policy, 0))
	assert.Equal(t, 100*time.Millisecond, ComputeBackoff(policy, 5))
}

func TestComputeBackoff_Linear(t *testing.T) {
	policy := schema.FailurePolicy{Backoff: "linear", Delay: "100ms"}
	assert.Equal(t, 100*time.Millisecond, ComputeBackoff(policy, 0))
	assert.Equal(t, 200*time.Millisecond, ComputeBackoff(policy, 1))
	assert.Equal(t, 300*time.Millisecond, ComputeBackoff(policy, 2))
}

func TestComputeBackoff_Exponential(t *testing.T) {
	policy := schema.FailurePolicy{Backoff: "exponential", Delay: "100ms"}
	assert.Equal(t, 100*time.Millisecond, ComputeBackoff(policy, 0))
	assert.Equal(t, 200*time.Millisecond, ComputeBackoff(policy, 1))
	assert.Equal(t, 400*time.Millisecond, ComputeBackoff(policy, 2))
	assert.Equal(t, 800*time.Millisecond, ComputeBackoff(policy, 3))
}

func TestComputeBackoff_MaxDelayCap(t *testing.T) {
	policy := schema.FailurePolicy{
		Backoff: "exponential", Delay: "100ms", MaxDelay: "250ms",
	}
	assert.Equal(t, 100*time.Millisecond, ComputeBackoff(policy, 0))
	assert.Equal(t, 200*time.Millisecond, ComputeBackoff(policy, 1))
	assert.Equal(t, 250*time.Millisecond, ComputeBackoff(policy, 2))
}

func TestWaitForBackoff_ZeroReturnsImmediately(t *testing.T) {
	start := time.Now()
	require.NoError(t, WaitForBackoff(context.Background(), 0))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitForBackoff_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForBackoff(ctx, time.Second)

	assert.ErrorIs(t, err, context.Canceled)
}
