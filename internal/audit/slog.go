package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SlogSink writes every event to a structured logger.
type SlogSink struct {
	logger *slog.Logger

	mu  sync.Mutex
	seq map[string]int64
}

// NewSlogSink creates a SlogSink on the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger, seq: make(map[string]int64)}
}

// Emit logs the event at info level with its structured fields.
func (s *SlogSink) Emit(ctx context.Context, event *Event) error {
	s.mu.Lock()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.seq[event.RunID]++
	event.Sequence = s.seq[event.RunID]
	s.mu.Unlock()

	attrs := []any{
		slog.String("run_id", event.RunID),
		slog.String("event_type", event.Type),
		slog.Int64("sequence", event.Sequence),
	}
	if event.Chain != "" {
		attrs = append(attrs, slog.String("chain", event.Chain))
	}
	if event.Step != "" {
		attrs = append(attrs, slog.String("step", event.Step), slog.Int("attempt", event.Attempt))
	}
	if event.Status != "" {
		attrs = append(attrs, slog.String("status", event.Status))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	if event.Summary != "" {
		attrs = append(attrs, slog.String("summary", event.Summary))
	}

	s.logger.InfoContext(ctx, "chain event", attrs...)
	return nil
}
