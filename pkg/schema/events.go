package schema

// Event type constants for the audit event stream.
const (
	EventChainStarted   = "chain_started"
	EventChainCompleted = "chain_completed"
	EventChainFailed    = "chain_failed"
	EventChainPartial   = "chain_partially_completed"

	EventStepSucceeded = "step_succeeded"
	EventStepFailed    = "step_failed"
	EventStepRetrying  = "step_retrying"
	EventStepBypassed  = "step_bypassed"
)

// ChainEventType maps a terminal chain status to its audit event type.
func ChainEventType(status ChainStatus) string {
	switch status {
	case ChainCompleted:
		return EventChainCompleted
	case ChainFailed:
		return EventChainFailed
	case ChainPartiallyCompleted:
		return EventChainPartial
	default:
		return ""
	}
}

// StepEventType maps a step attempt status to its audit event type.
func StepEventType(status StepStatus) string {
	if status == StepSuccess {
		return EventStepSucceeded
	}
	return EventStepFailed
}
