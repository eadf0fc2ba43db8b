// Package metrics exposes the kernel's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReviewSessionsTotal counts completed review sessions, labeled by
	// outcome (success, error, cancelled).
	ReviewSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_kernel_sessions_total",
		Help: "The total number of completed review sessions",
	}, []string{"result"})

	// ReviewUnitsTotal counts ReviewUnits produced, labeled by language.
	ReviewUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_kernel_units_total",
		Help: "The total number of ReviewUnits produced by the diff collector",
	}, []string{"language"})

	// PlannerRetries counts planner-agent retry attempts, labeled by reason.
	PlannerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_kernel_planner_retries_total",
		Help: "The total number of planner agent retry attempts",
	}, []string{"reason"})

	// FallbackEvents counts degraded-path occurrences, labeled by key.
	FallbackEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_kernel_fallback_events_total",
		Help: "The total number of recorded fallback/degradation events",
	}, []string{"key"})

	// LLMCallDuration measures end-to-end LLM call latency, labeled by stage.
	LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_kernel_llm_call_duration_seconds",
		Help:    "Time taken for a single LLM call to complete",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// MCPToolCalls counts MCP tool executions made through the optional
	// MCP bridge in internal/toolruntime.
	MCPToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_kernel_mcp_tool_calls_total",
		Help: "The total number of MCP tool calls routed through the tool runtime bridge",
	}, []string{"server", "tool", "status"})

	// ToolCalls counts built-in tool runtime executions, labeled by tool
	// name and outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_kernel_tool_calls_total",
		Help: "The total number of tool runtime invocations",
	}, []string{"tool", "status"})
)
