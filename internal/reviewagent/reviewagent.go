// Package reviewagent implements the Review Agent Loop: a
// streaming, tool-calling conversation with the reviewer LLM. Every
// tool call the model requests is partitioned into auto-approved and
// pending; pending calls go through a caller-supplied approver, and
// whatever remains is denied with a synthetic tool result the model
// can see, rather than silently dropped.
package reviewagent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"pr-review-automation/internal/config"
	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/eventbus"
	"pr-review-automation/internal/llmclient"
	"pr-review-automation/internal/streamproc"
	"pr-review-automation/internal/toolruntime"
	"pr-review-automation/internal/usage"
)

// DefaultCallTimeout is LLM_CALL_TIMEOUT.
const DefaultCallTimeout = 120 * time.Second

// DefaultMaxRounds bounds the tool-calling loop so a misbehaving
// model can't spin forever.
const DefaultMaxRounds = 24

// Loop drives one review session's tool-calling conversation.
type Loop struct {
	client *llmclient.Client
	tools  *toolruntime.Registry
	bus    *eventbus.Bus
	usage  *usage.Aggregator
	cfg    config.Config
}

// New builds a Loop sharing the session's LLM client, tool registry,
// event bus, and usage aggregator.
func New(client *llmclient.Client, tools *toolruntime.Registry, bus *eventbus.Bus, agg *usage.Aggregator, cfg config.Config) *Loop {
	return &Loop{client: client, tools: tools, bus: bus, usage: agg, cfg: cfg}
}

// Result is the loop's terminal outcome.
type Result struct {
	Content  string
	Title    string
	CallsMade int
}

// Run drives the conversation to completion: repeatedly call the LLM,
// arbitrate any tool calls it makes, execute the approved ones, and
// feed results back, until the model stops calling tools and reports
// finish_reason "stop". history replays the optional
// `message_history[]` (prior turns from a resumed session) ahead of
// the fresh user message; it is empty for a first-time review.
func (l *Loop) Run(ctx context.Context, systemPrompt, userMessage string, history []domain.ConversationMessage, tools []llmclient.ToolSpec, autoApprove []string, approver domain.ToolApprover) (Result, error) {
	auto := make(map[string]bool, len(autoApprove))
	for _, n := range autoApprove {
		auto[n] = true
	}

	messages := make([]llmclient.Message, 0, len(history)+2)
	messages = append(messages, llmclient.Message{Role: "system", Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, llmclient.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llmclient.Message{Role: "user", Content: userMessage})

	maxRounds := l.cfg.Reviewer.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	callTimeout := l.cfg.Reviewer.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	calls := 0
	for round := 0; round < maxRounds; round++ {
		norm, err := l.callOnce(ctx, messages, tools, callTimeout)
		calls++
		if err != nil {
			return Result{CallsMade: calls}, fmt.Errorf("reviewagent: round %d: %w", round, err)
		}

		if len(norm.ToolCalls) == 0 {
			messages = append(messages, llmclient.Message{Role: "assistant", Content: norm.Content})
			if norm.FinishReason == "stop" || norm.FinishReason == "" {
				title := extractTitle(norm.Content)
				if title != "" && l.bus != nil {
					l.bus.Emit(map[string]interface{}{"type": eventbus.TypeSessionTitle, "title": title})
				}
				return Result{Content: norm.Content, Title: title, CallsMade: calls}, nil
			}
			continue
		}

		toolCalls := norm.ToDomain()
		approvedCalls, deniedCalls := l.arbitrate(toolCalls, auto, approver)

		results := l.tools.Execute(ctx, approvedCalls)
		for _, r := range results {
			l.emitToolResult(r)
		}
		var deniedResults []toolruntime.Result
		for _, dc := range deniedCalls {
			reason := "no approver / auto_approve"
			dr := toolruntime.DeniedResult(dc, reason)
			deniedResults = append(deniedResults, dr)
			l.emitToolResult(dr)
		}

		messages = append(messages, assistantToolCallMessage(norm.Content, toolCalls))
		messages = append(messages, toolResultMessages(toolCalls, approvedCalls, results, deniedCalls, deniedResults)...)
	}

	return Result{CallsMade: calls}, fmt.Errorf("reviewagent: exceeded max rounds (%d) without finish_reason=stop", maxRounds)
}

func (l *Loop) callOnce(ctx context.Context, messages []llmclient.Message, tools []llmclient.ToolSpec, timeout time.Duration) (streamproc.NormalizedMessage, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chunks, errFn := l.client.Stream(cctx, messages, tools)
	norm := streamproc.Collect(chunks, func(event map[string]interface{}) {
		if l.bus == nil {
			return
		}
		event["type"] = eventbus.TypeDelta
		l.bus.Emit(event)
	})
	if err := errFn(); err != nil {
		return norm, err
	}
	if norm.Usage != nil {
		rec := domain.UsageRecord{
			Stage:            "review",
			PromptTokens:     int(norm.Usage.PromptTokens),
			CompletionTokens: int(norm.Usage.CompletionTokens),
			TotalTokens:      int(norm.Usage.TotalTokens),
		}
		if rec.NonZero() && l.usage != nil {
			l.usage.Record(rec)
			if l.bus != nil {
				l.bus.Emit(map[string]interface{}{
					"type":         eventbus.TypeUsageSummary,
					"usage_stage":  "review",
					"usage":        rec,
					"call_usage":   rec,
					"session_usage": l.usage.Session(),
				})
			}
		}
	}
	return norm, cctx.Err()
}

// arbitrate partitions tool calls into approved (auto-approve list or
// approver-selected) and denied (everything else).
func (l *Loop) arbitrate(calls []domain.ToolCall, auto map[string]bool, approver domain.ToolApprover) (approved, denied []domain.ToolCall) {
	var pending []domain.ToolCall
	for _, c := range calls {
		if auto[c.Name] {
			approved = append(approved, c)
		} else {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return approved, nil
	}
	if approver == nil {
		return approved, pending
	}
	allowedIDs := make(map[string]bool)
	for _, id := range approver(domain.ToolApprovalContext{PendingToolCalls: pending}) {
		allowedIDs[id] = true
	}
	for _, c := range pending {
		if allowedIDs[c.ID] || allowedIDs[c.Name] {
			approved = append(approved, c)
		} else {
			denied = append(denied, c)
		}
	}
	return approved, denied
}

func (l *Loop) emitToolResult(r toolruntime.Result) {
	if l.bus == nil {
		return
	}
	l.bus.Emit(map[string]interface{}{
		"type":      eventbus.TypeToolResult,
		"call_id":   r.CallID,
		"tool_name": r.ToolName,
		"arguments": r.Arguments,
		"content":   r.Content,
		"error":     r.Error,
	})
}

// assistantToolCallMessage replays the assistant's own tool-call
// request back into history so the next turn sees its own calls.
func assistantToolCallMessage(content string, calls []domain.ToolCall) llmclient.Message {
	reqs := make([]llmclient.ToolCallRequest, 0, len(calls))
	for _, c := range calls {
		argsJSON, err := json.Marshal(c.Arguments)
		if err != nil {
			argsJSON = []byte("{}")
		}
		reqs = append(reqs, llmclient.ToolCallRequest{ID: c.ID, Name: c.Name, Arguments: string(argsJSON)})
	}
	return llmclient.Message{Role: "assistant", Content: content, ToolCalls: reqs}
}

// toolResultMessages appends one "tool" message per call, in the
// original input order of tool_calls regardless of whether execution
// was approved or denied, so the model's view is deterministic.
func toolResultMessages(all, approvedCalls []domain.ToolCall, approvedResults []toolruntime.Result, deniedCalls []domain.ToolCall, deniedResults []toolruntime.Result) []llmclient.Message {
	byID := make(map[string]toolruntime.Result, len(approvedResults)+len(deniedResults))
	for _, r := range approvedResults {
		byID[r.CallID] = r
	}
	for _, r := range deniedResults {
		byID[r.CallID] = r
	}

	out := make([]llmclient.Message, 0, len(all))
	for _, c := range all {
		r, ok := byID[c.ID]
		if !ok {
			continue
		}
		out = append(out, llmclient.Message{Role: "tool", ToolCallID: c.ID, Content: resultText(r)})
	}
	return out
}

func resultText(r toolruntime.Result) string {
	if r.Error != "" && r.Content == nil {
		return fmt.Sprintf(`{"error":%q}`, r.Error)
	}
	b, err := json.Marshal(map[string]interface{}{"content": r.Content, "error": r.Error})
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, r.Error)
	}
	return string(b)
}

// genericTitlePattern matches headings too generic to surface as a
// session title.
var genericTitlePattern = regexp.MustCompile(`(?i)^(code review report|review report|review|report)$`)

var headingPattern = regexp.MustCompile(`(?m)^#{1,3}\s+(.+)$`)

// extractTitle scans the final Markdown for the first non-generic
// heading to surface as the session title.
func extractTitle(markdown string) string {
	for _, m := range headingPattern.FindAllStringSubmatch(markdown, -1) {
		candidate := strings.TrimSpace(m[1])
		if candidate == "" || genericTitlePattern.MatchString(candidate) {
			continue
		}
		return candidate
	}
	return ""
}
