package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainError_Error(t *testing.T) {
	err := NewError(ErrCodeOperation, "something broke")
	assert.Equal(t, "[OPERATION_ERROR] something broke", err.Error())

	err = err.WithStep("fetch")
	assert.Equal(t, "[OPERATION_ERROR] step fetch: something broke", err.Error())
}

func TestChainError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrCodeOperation, "fetch failed").WithCause(cause)

	assert.ErrorIs(t, err, cause)
}

func TestChainError_ErrorsAs(t *testing.T) {
	var target *ChainError
	wrapped := NewErrorf(ErrCodeValidation, "bad field %q", "next")

	require.ErrorAs(t, error(wrapped), &target)
	assert.Equal(t, ErrCodeValidation, target.Code)
}

func TestChainError_IsConfiguration(t *testing.T) {
	assert.True(t, NewError(ErrCodeConfiguration, "x").IsConfiguration())
	assert.True(t, NewError(ErrCodeUnknownOperation, "x").IsConfiguration())
	assert.True(t, NewError(ErrCodeValidation, "x").IsConfiguration())
	assert.False(t, NewError(ErrCodeOperation, "x").IsConfiguration())
	assert.False(t, NewError(ErrCodeCancelled, "x").IsConfiguration())
}

func TestChainError_WithDetails(t *testing.T) {
	err := NewError(ErrCodeConfiguration, "bad chain").
		WithDetails(map[string]any{"step_count": 0})

	assert.Equal(t, 0, err.Details["step_count"])
}

func TestValidationResult_Empty(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())
}

func TestValidationResult_ToError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("steps[0].name", ErrCodeConfiguration, "duplicate step name")

	err := r.ToError()
	require.Error(t, err)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, ErrCodeConfiguration, chainErr.Code)
	assert.Equal(t, "duplicate step name", chainErr.Message)
}

func TestValidationResult_ToErrorMultiple(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("a", ErrCodeConfiguration, "first")
	r.AddError("b", ErrCodeConfiguration, "second")

	var chainErr *ChainError
	require.ErrorAs(t, r.ToError(), &chainErr)
	assert.Equal(t, 2, chainErr.Details["error_count"])
}

func TestValidationResult_Merge(t *testing.T) {
	a := &ValidationResult{}
	a.AddError("x", ErrCodeValidation, "one")
	b := &ValidationResult{}
	b.AddError("y", ErrCodeValidation, "two")

	a.Merge(b)
	a.Merge(nil)

	assert.Len(t, a.Errors, 2)
}
