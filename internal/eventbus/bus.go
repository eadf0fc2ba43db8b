// Package eventbus implements the synchronous, in-process
// observable: a function-pointer callback fanned out to
// every registered subscriber, with a typed vocabulary of events and
// swallow-and-log semantics for observer panics so a misbehaving
// consumer can never take down the kernel.
package eventbus

import (
	"log/slog"
	"sync"
)

// Event types of the outbound event stream.
const (
	TypePipelineStageStart = "pipeline_stage_start"
	TypePipelineStageEnd   = "pipeline_stage_end"
	TypeDiffUnitsSnapshot  = "diff_units_snapshot"
	TypeBundleItem         = "bundle_item"
	TypeIntentDelta        = "intent_delta"
	TypePlannerDelta       = "planner_delta"
	TypeDelta              = "delta"
	TypeToolResult         = "tool_result"
	TypeUsageSummary       = "usage_summary"
	TypeSessionTitle       = "session_title"
	TypeWarning            = "warning"
	TypeError              = "error"
	TypeScannerProgress    = "scanner_progress"
)

// Subscriber is any callback that wants every event.
type Subscriber func(event map[string]interface{})

// Bus fans events out to zero or more subscribers. The zero value is
// ready to use.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

// New returns an empty Bus, optionally pre-subscribed with cb (the
// caller's stream_callback from the ReviewRequest).
func New(cb Subscriber) *Bus {
	b := &Bus{}
	if cb != nil {
		b.Subscribe(cb)
	}
	return b
}

// Subscribe registers an additional subscriber.
func (b *Bus) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Emit delivers event to every subscriber. The kernel never blocks on
// delivery: subscribers run synchronously but any panic is recovered
// and logged rather than propagated.
func (b *Bus) Emit(event map[string]interface{}) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, event)
	}
}

func (b *Bus) deliver(s Subscriber, event map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("eventbus: subscriber panicked", "recover", r)
		}
	}()
	s(event)
}

// StageStart emits a pipeline_stage_start event.
func (b *Bus) StageStart(stage string) {
	b.Emit(map[string]interface{}{"type": TypePipelineStageStart, "stage": stage})
}

// StageEnd emits a pipeline_stage_end event, optionally with a summary.
func (b *Bus) StageEnd(stage string, summary map[string]interface{}) {
	e := map[string]interface{}{"type": TypePipelineStageEnd, "stage": stage}
	if summary != nil {
		e["summary"] = summary
	}
	b.Emit(e)
}

// Warning emits a warning event.
func (b *Bus) Warning(stage, message string) {
	b.Emit(map[string]interface{}{"type": TypeWarning, "stage": stage, "message": message})
}

// Error emits an error event.
func (b *Bus) Error(stage, message string, cancelled bool) {
	e := map[string]interface{}{"type": TypeError, "stage": stage, "message": message}
	if cancelled {
		e["cancelled"] = true
	}
	b.Emit(e)
}
