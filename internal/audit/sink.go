// Package audit carries the structured execution events the engine emits:
// one per step attempt plus chain lifecycle markers. Where events end up
// (memory, the log, a libSQL table) is the sink's business; delivery
// guarantees are the sink's responsibility, not the engine's.
package audit

import (
	"context"
	"time"
)

// Event is a single structured execution event.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Chain     string         `json:"chain,omitempty"`
	Step      string         `json:"step,omitempty"`
	Attempt   int            `json:"attempt,omitempty"`
	Type      string         `json:"event_type"`
	Status    string         `json:"status,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Sequence  int64          `json:"sequence"`
}

// Sink receives execution events. Implementations must be safe for
// concurrent use; Emit assigns per-run sequence numbers.
type Sink interface {
	Emit(ctx context.Context, event *Event) error
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, *Event) error { return nil }
