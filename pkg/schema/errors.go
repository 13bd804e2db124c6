package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeUnknownOperation = "UNKNOWN_OPERATION"
	ErrCodeOperation        = "OPERATION_ERROR"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeAudit            = "AUDIT_ERROR"
)

// ChainError is the structured error type for all chainrun operations.
type ChainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Step    string         `json:"step,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ChainError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ChainError) Unwrap() error {
	return e.Cause
}

// IsConfiguration reports whether the error marks the chain as unrunnable.
// Configuration errors force a stop regardless of the step's failure policy.
func (e *ChainError) IsConfiguration() bool {
	return e.Code == ErrCodeConfiguration || e.Code == ErrCodeUnknownOperation || e.Code == ErrCodeValidation
}

// NewError creates a new ChainError.
func NewError(code, message string) *ChainError {
	return &ChainError{Code: code, Message: message}
}

// NewErrorf creates a new ChainError with a formatted message.
func NewErrorf(code, format string, args ...any) *ChainError {
	return &ChainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step label to the error.
func (e *ChainError) WithStep(step string) *ChainError {
	e.Step = step
	return e
}

// WithCause attaches an underlying cause.
func (e *ChainError) WithCause(err error) *ChainError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ChainError) WithDetails(details map[string]any) *ChainError {
	e.Details = details
	return e
}
