// Package toolruntime implements the Tool Runtime: a
// name → handler registry, concurrent fan-out/fan-in execution that
// preserves input order, and the built-in handlers the review agent
// loop calls (list_project_files, read_file_hunk, read_file_info,
// search_in_project, get_dependencies).
package toolruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/metrics"
)

// Handler executes one tool call and returns its result or an error.
// Handlers never panic the runtime: a panicking handler is recovered
// and surfaced as an error Result.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Result is one tool call's normalized outcome.
type Result struct {
	CallID     string      `json:"call_id"`
	ToolName   string      `json:"tool_name"`
	Arguments  interface{} `json:"arguments"`
	Content    interface{} `json:"content,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// Registry is the name → Handler map the review agent loop dispatches
// approved tool calls through.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs (or replaces) the handler for name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	return out
}

func (r *Registry) lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Execute launches every call concurrently, bounded only by
// len(calls), and returns results in the same order as calls. An
// unregistered tool name yields an error Result rather than aborting
// the batch.
func (r *Registry) Execute(ctx context.Context, calls []domain.ToolCall) []Result {
	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call domain.ToolCall) {
			defer wg.Done()
			results[i] = r.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (r *Registry) executeOne(ctx context.Context, call domain.ToolCall) (res Result) {
	res.CallID = call.ID
	res.ToolName = call.Name
	res.Arguments = call.Arguments
	start := time.Now()
	defer func() {
		res.DurationMs = time.Since(start).Milliseconds()
		if rec := recover(); rec != nil {
			res.Error = fmt.Sprintf("tool panicked: %v", rec)
			metrics.ToolCalls.WithLabelValues(call.Name, "panic").Inc()
		}
	}()

	h, ok := r.lookup(call.Name)
	if !ok {
		res.Error = fmt.Sprintf("denied: unregistered tool %q", call.Name)
		metrics.ToolCalls.WithLabelValues(call.Name, "unregistered").Inc()
		return res
	}
	content, err := h(ctx, call.Arguments)
	if err != nil {
		res.Error = err.Error()
		metrics.ToolCalls.WithLabelValues(call.Name, "error").Inc()
		return res
	}
	res.Content = content
	metrics.ToolCalls.WithLabelValues(call.Name, "ok").Inc()
	return res
}

// DeniedResult builds the synthetic tool-result injected when a
// pending call has no approver or falls outside it: the model must
// see an explicit refusal, not a dropped call.
func DeniedResult(call domain.ToolCall, reason string) Result {
	return Result{
		CallID:   call.ID,
		ToolName: call.Name,
		Error:    fmt.Sprintf("denied: %s", reason),
	}
}

// MaxConcurrency is informational only: Execute launches all calls at
// once, but a future bounded variant would size a semaphore to this.
var MaxConcurrency = func() int {
	if n := runtime.NumCPU(); n > 1 {
		return n
	}
	return 1
}()

// marshalArgsPreview renders args as a compact JSON string for
// logging, swallowing marshal errors (best-effort diagnostics only).
func marshalArgsPreview(args map[string]interface{}) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "<unmarshalable args>"
	}
	return string(b)
}
