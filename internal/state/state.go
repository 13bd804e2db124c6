// Package state implements the chain state: the single mutable key-value
// store threaded through a chain run. All steps read and write the same
// namespace; key collisions between output mappings are the chain author's
// responsibility. Engine bookkeeping (retry counters) lives in a reserved
// metadata namespace that input templating can never reference.
package state

import (
	"fmt"
	"strings"
	"sync"
)

// State is the shared key-value store for one chain run. It is owned
// exclusively by the executor for the duration of the run; operations only
// ever see resolved copies of values, never a writable reference.
type State struct {
	mu     sync.RWMutex
	values map[string]any
	meta   map[string]int      // retry counters, keyed "<step>_retry_count"
	writes map[string][]string // step label -> keys written, for debugging
}

// New creates a State seeded with the chain's initial input parameters.
// The initial map is copied; later caller mutations are not observed.
func New(initial map[string]any) *State {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &State{
		values: values,
		meta:   make(map[string]int),
		writes: make(map[string][]string),
	}
}

// Get returns the value for a top-level key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Lookup resolves a dotted path against the state. A direct top-level key
// match wins (keys containing dots are addressable); otherwise the path is
// traversed segment by segment into nested maps.
func (s *State) Lookup(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[path]; ok {
		return v, true
	}

	segments := strings.Split(path, ".")
	var current any = s.values
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Apply writes a batch of output mappings into the state on behalf of a
// step, recording each key in the per-step write log.
func (s *State) Apply(step string, mutations map[string]any) {
	if len(mutations) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range mutations {
		s.values[k] = v
		s.writes[step] = append(s.writes[step], k)
	}
}

// RetryCount returns the number of retries recorded for a step.
func (s *State) RetryCount(step string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta[retryKey(step)]
}

// IncrementRetry bumps a step's retry counter and returns the new count.
// Counters live in the reserved metadata namespace, not in values.
func (s *State) IncrementRetry(step string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := retryKey(step)
	s.meta[key]++
	return s.meta[key]
}

// Snapshot returns a copy of the templating-visible state map.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// MetaSnapshot returns a copy of the engine bookkeeping map.
func (s *State) MetaSnapshot() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.meta))
	for k, v := range s.meta {
		out[k] = v
	}
	return out
}

// Writes returns the per-step write log: which keys each step wrote.
func (s *State) Writes() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.writes))
	for k, v := range s.writes {
		keys := make([]string, len(v))
		copy(keys, v)
		out[k] = keys
	}
	return out
}

// Clone returns an independent State with the same visible values. Used by
// parallel mode so that fanned-out steps read a frozen snapshot and never
// observe each other's outputs mid-flight.
func (s *State) Clone() *State {
	return New(s.Snapshot())
}

func retryKey(step string) string {
	return fmt.Sprintf("%s_retry_count", step)
}
