// Package fallback implements the process-wide degraded-path counter:
// any code path that degrades gracefully
// (binary-file skip, unreadable-UTF8 fallback, git failure, missing
// ripgrep, LLM provider unavailable, planner retries) calls Record.
package fallback

import (
	"sync"
	"time"

	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/metrics"
)

// Tracker is a per-session, mutex-guarded fallback counter. Every
// Record also increments the process-wide Prometheus counter
// metrics.FallbackEvents; the kernel builds a fresh Tracker per review
// session so counts reset at session start.
type Tracker struct {
	mu     sync.Mutex
	events []domain.FallbackEvent
	counts map[string]int
}

// New returns an empty, session-scoped Tracker.
func New() *Tracker {
	return &Tracker{counts: make(map[string]int)}
}

// Record registers one degraded-path occurrence. meta is optional
// structured context (e.g. {"file": path}).
func (t *Tracker) Record(key, message string, meta map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key]++
	t.events = append(t.events, domain.FallbackEvent{
		Key:     key,
		Message: message,
		Meta:    meta,
		At:      time.Now(),
	})
	metrics.FallbackEvents.WithLabelValues(key).Inc()
}

// Events returns a copy of all recorded fallback events in order.
func (t *Tracker) Events() []domain.FallbackEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.FallbackEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Counts returns a copy of the per-key occurrence counts.
func (t *Tracker) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Empty reports whether nothing degraded this session.
func (t *Tracker) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events) == 0
}

// Summary produces the once-per-session-end payload the kernel attaches
// to its session_end event.
func (t *Tracker) Summary() map[string]interface{} {
	return map[string]interface{}{
		"type":   "fallback_summary",
		"counts": t.Counts(),
		"total":  len(t.Events()),
	}
}
