// Package llmclient wraps the OpenAI-compatible chat completions API
// directly (not via an agent framework) so callers see raw
// streaming chunks and tool_calls, which the review agent loop's
// approval gating requires.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"pr-review-automation/internal/config"
	"pr-review-automation/internal/types"
)

// Client issues chat completions against one configured model.
type Client struct {
	raw   *openai.Client
	model string
}

// New builds a Client from the kernel config's top-level LLM section.
// model overrides cfg.LLM.Model when non-empty, letting the planner
// and reviewer stages build clients from the same LLM section with
// different models; each call builds its own HTTP client.
// Only the TCP/TLS dial is bounded here: read time is governed by the
// per-call context so a long streamed response is never cut off by a
// transport-level deadline.
func New(cfg *config.Config, model string) *Client {
	connectTimeout := cfg.LLM.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSHandshakeTimeout: connectTimeout,
		},
	}
	raw := openai.NewClient(
		option.WithAPIKey(cfg.LLM.APIKey),
		option.WithBaseURL(cfg.LLM.Endpoint),
		option.WithHTTPClient(httpClient),
	)
	if model == "" {
		model = cfg.LLM.Model
	}
	return &Client{raw: &raw, model: model}
}

// Model returns the model name this client was built with.
func (c *Client) Model() string { return c.model }

// Message is the role/content/tool_call_id triple a caller assembles
// the conversation from, kept independent of openai-go's own
// parameter unions so upstream stages don't import that package.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCallID string             // set only for role "tool"
	ToolCalls  []ToolCallRequest  // set only for role "assistant" replies that called tools
}

// ToolCallRequest is one assistant-issued tool call to replay back
// into the conversation history.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments string // raw JSON, as the model emitted it
}

// ToolSpec is one function tool definition offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "user":
			out = append(out, openai.UserMessage(m.Content))
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case "assistant":
			msg := openai.AssistantMessage(m.Content)
			if len(m.ToolCalls) > 0 && msg.OfAssistant != nil {
				var calls []openai.ChatCompletionMessageToolCallParam
				for _, tc := range m.ToolCalls {
					calls = append(calls, openai.ChatCompletionMessageToolCallParam{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					})
				}
				msg.OfAssistant.ToolCalls = calls
			}
			out = append(out, msg)
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(tools []ToolSpec) []openai.ChatCompletionToolParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		})
	}
	return out
}

// StreamChunk is one raw delta from the provider, handed to
// internal/streamproc for normalization.
type StreamChunk struct {
	ContentDelta   string
	ReasoningDelta string
	ToolCallDeltas []openai.ChatCompletionChunkChoiceDeltaToolCall
	FinishReason   string
	Usage          *openai.CompletionUsage
	Done           bool
}

// Stream opens a streaming chat completion and returns a channel of
// raw chunks plus a function returning the terminal error (nil on a
// clean close). The channel is always closed, including on ctx
// cancellation.
func (c *Client) Stream(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan StreamChunk, func() error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toOpenAIMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if t := toOpenAITools(tools); len(t) > 0 {
		params.Tools = t
	}

	out := make(chan StreamChunk)
	var streamErr error

	go func() {
		defer close(out)
		stream := c.raw.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				if chunk.Usage.TotalTokens > 0 {
					usage := chunk.Usage
					select {
					case out <- StreamChunk{Usage: &usage}:
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			delta := chunk.Choices[0].Delta
			sc := StreamChunk{
				ContentDelta:   delta.Content,
				ReasoningDelta: reasoningDelta(delta),
				FinishReason:   string(chunk.Choices[0].FinishReason),
			}
			if len(delta.ToolCalls) > 0 {
				sc.ToolCallDeltas = delta.ToolCalls
			}
			select {
			case out <- sc:
			case <-ctx.Done():
				streamErr = ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil {
			streamErr = c.wrapError(err)
		}
	}()

	return out, func() error { return streamErr }
}

// reasoningDelta pulls the provider-specific reasoning channel out of
// a chunk delta. OpenAI-compatible providers disagree on the field
// name (reasoning_content, analysis, thoughts), none of which the
// typed openai-go delta struct models, so probe the raw extra fields.
func reasoningDelta(delta openai.ChatCompletionChunkChoiceDelta) string {
	for _, key := range []string{"reasoning_content", "analysis", "thoughts"} {
		f, ok := delta.JSON.ExtraFields[key]
		if !ok {
			continue
		}
		raw := f.Raw()
		if raw == "" || raw == "null" {
			continue
		}
		if s, err := strconv.Unquote(raw); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// Complete issues a single non-streaming call with default sampling.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, *openai.CompletionUsage, error) {
	return c.complete(ctx, messages, nil, nil)
}

// CompleteSampled issues a single non-streaming call with explicit
// temperature/top_p, used by the intent agent's summary call.
func (c *Client) CompleteSampled(ctx context.Context, messages []Message, temperature, topP float64) (string, *openai.CompletionUsage, error) {
	return c.complete(ctx, messages, &temperature, &topP)
}

func (c *Client) complete(ctx context.Context, messages []Message, temperature, topP *float64) (string, *openai.CompletionUsage, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toOpenAIMessages(messages),
	}
	if temperature != nil {
		params.Temperature = openai.Float(*temperature)
	}
	if topP != nil {
		params.TopP = openai.Float(*topP)
	}
	resp, err := c.raw.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", nil, c.wrapError(fmt.Errorf("llmclient: complete: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("llmclient: empty response")
	}
	return resp.Choices[0].Message.Content, &resp.Usage, nil
}

// wrapError promotes rate-limit and 5xx errors to a types.RetryableError
// so planner/reviewer retry logic can distinguish them from permanent
// failures (bad request, auth) without re-parsing status codes itself.
func (c *Client) wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || (apiErr.StatusCode >= 500 && apiErr.StatusCode < 600) {
			return types.NewRetryableError(err)
		}
	}
	return err
}
