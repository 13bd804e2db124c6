package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySink buffers events in memory. Intended for tests and for callers
// that collect the event stream alongside the ChainResult.
type MemorySink struct {
	mu     sync.Mutex
	events []*Event
	seq    map[string]int64 // run_id -> last assigned sequence
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seq: make(map[string]int64)}
}

// Emit appends the event, assigning an ID, timestamp, and per-run sequence.
func (s *MemorySink) Emit(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.seq[event.RunID]++
	event.Sequence = s.seq[event.RunID]

	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of all buffered events in emission order.
func (s *MemorySink) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByRun returns the events for one run in sequence order.
func (s *MemorySink) ByRun(runID string) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

// ByType returns the events of one type in emission order.
func (s *MemorySink) ByType(eventType string) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
