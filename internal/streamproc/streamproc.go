// Package streamproc collects the raw per-chunk deltas llmclient.Stream
// yields into one NormalizedMessage: accumulated content, accumulated
// reasoning (including <think>...</think> tag extraction), tool calls
// reassembled by index, and the last non-empty usage snapshot.
package streamproc

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/openai/openai-go"

	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/llmclient"
)

// NormalizedToolCall is one fully reassembled tool invocation.
type NormalizedToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Index     int                    `json:"index"`
	Arguments map[string]interface{} `json:"arguments"`
}

// NormalizedMessage is the single assistant turn a stream collapses to.
type NormalizedMessage struct {
	Role         string               `json:"role"`
	Content      string               `json:"content"`
	Reasoning    string               `json:"reasoning"`
	ToolCalls    []NormalizedToolCall `json:"tool_calls"`
	FinishReason string               `json:"finish_reason"`
	Usage        *openai.CompletionUsage `json:"usage,omitempty"`
}

// Observer receives one delta event per chunk processed, mirroring the
// {type:"delta", content_delta, reasoning_delta, tool_calls_delta,
// chunk, usage} shape the kernel streams out over its event bus.
type Observer func(event map[string]interface{})

type toolCallBuffer struct {
	id              string
	name            string
	argumentsChunks strings.Builder
}

// Collect drains chunks (as produced by llmclient.Client.Stream) into
// one NormalizedMessage, invoking observer per chunk if non-nil.
func Collect(chunks <-chan llmclient.StreamChunk, observer Observer) NormalizedMessage {
	var content strings.Builder
	var reasoning strings.Builder
	var think thinkSplitter
	buffers := map[int64]*toolCallBuffer{}
	var finishReason string
	var lastUsage *openai.CompletionUsage

	for chunk := range chunks {
		contentDelta, thinkDelta := think.split(chunk.ContentDelta)
		reasoningDelta := chunk.ReasoningDelta + thinkDelta

		if contentDelta != "" {
			content.WriteString(contentDelta)
		}
		if reasoningDelta != "" {
			reasoning.WriteString(reasoningDelta)
		}

		for _, d := range chunk.ToolCallDeltas {
			buf, ok := buffers[d.Index]
			if !ok {
				buf = &toolCallBuffer{}
				buffers[d.Index] = buf
			}
			if d.ID != "" {
				buf.id = d.ID
			}
			if d.Function.Name != "" {
				buf.name = d.Function.Name
			}
			if d.Function.Arguments != "" {
				buf.argumentsChunks.WriteString(d.Function.Arguments)
			}
		}

		if chunk.Usage != nil {
			lastUsage = chunk.Usage
		}
		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}

		if observer != nil {
			observer(map[string]interface{}{
				"type":             "delta",
				"content_delta":    contentDelta,
				"reasoning_delta":  reasoningDelta,
				"tool_calls_delta": chunk.ToolCallDeltas,
				"chunk":            chunk,
				"usage":            chunk.Usage,
			})
		}
	}

	return NormalizedMessage{
		Role:         "assistant",
		Content:      strings.TrimSpace(content.String()),
		Reasoning:    strings.TrimSpace(reasoning.String()),
		ToolCalls:    finalizeToolCalls(buffers),
		FinishReason: finishReason,
		Usage:        lastUsage,
	}
}

// thinkSplitter routes <think>...</think> spans out of the content
// stream into the reasoning channel. Models that stream reasoning
// inline with content (rather than in a dedicated reasoning_content
// field) use this tag convention, and the open/close tags routinely
// arrive in different chunks, so the in-think state must persist
// across deltas.
type thinkSplitter struct {
	inThink bool
}

func (t *thinkSplitter) split(delta string) (content, reasoning string) {
	var c, r strings.Builder
	for delta != "" {
		if t.inThink {
			if i := strings.Index(delta, "</think>"); i >= 0 {
				r.WriteString(delta[:i])
				delta = delta[i+len("</think>"):]
				t.inThink = false
				continue
			}
			r.WriteString(delta)
			break
		}
		if i := strings.Index(delta, "<think>"); i >= 0 {
			c.WriteString(delta[:i])
			delta = delta[i+len("<think>"):]
			t.inThink = true
			continue
		}
		c.WriteString(delta)
		break
	}
	return c.String(), r.String()
}

func finalizeToolCalls(buffers map[int64]*toolCallBuffer) []NormalizedToolCall {
	if len(buffers) == 0 {
		return nil
	}
	indices := make([]int64, 0, len(buffers))
	for i := range buffers {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	out := make([]NormalizedToolCall, 0, len(indices))
	for _, idx64 := range indices {
		idx := int(idx64)
		buf := buffers[idx64]
		argsText := buf.argumentsChunks.String()
		var args map[string]interface{}
		if argsText == "" {
			args = map[string]interface{}{}
		} else if err := json.Unmarshal([]byte(argsText), &args); err != nil {
			args = map[string]interface{}{"_raw": argsText, "_error": "invalid_json"}
		}
		id := buf.id
		if id == "" {
			id = "call_" + strconv.Itoa(idx)
		}
		name := buf.name
		if name == "" {
			name = "unknown_tool"
		}
		out = append(out, NormalizedToolCall{ID: id, Name: name, Index: idx, Arguments: args})
	}
	return out
}

// ToDomain projects the normalized tool calls into domain.ToolCall,
// the shape the review agent loop and tool runtime consume.
func (m NormalizedMessage) ToDomain() []domain.ToolCall {
	out := make([]domain.ToolCall, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		out = append(out, domain.ToolCall{ID: tc.ID, Name: tc.Name, Index: tc.Index, Arguments: tc.Arguments})
	}
	return out
}
