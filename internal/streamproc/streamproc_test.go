package streamproc

import (
	"testing"

	"github.com/openai/openai-go"

	"pr-review-automation/internal/llmclient"
)

func chunkStream(chunks ...llmclient.StreamChunk) <-chan llmclient.StreamChunk {
	ch := make(chan llmclient.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func toolCallDelta(index int, id, name, argsPiece string) openai.ChatCompletionChunkChoiceDeltaToolCall {
	d := openai.ChatCompletionChunkChoiceDeltaToolCall{Index: int64(index), ID: id}
	d.Function.Name = name
	d.Function.Arguments = argsPiece
	return d
}

func TestCollect_AccumulatesContent(t *testing.T) {
	ch := chunkStream(
		llmclient.StreamChunk{ContentDelta: "Hello, "},
		llmclient.StreamChunk{ContentDelta: "world."},
	)
	msg := Collect(ch, nil)
	if msg.Content != "Hello, world." {
		t.Errorf("expected accumulated content, got %q", msg.Content)
	}
}

func TestCollect_ExtractsThinkTags(t *testing.T) {
	ch := chunkStream(
		llmclient.StreamChunk{ContentDelta: "<think>pondering"},
		llmclient.StreamChunk{ContentDelta: " deeply</think>the answer is 42"},
	)
	msg := Collect(ch, nil)
	if msg.Content != "the answer is 42" {
		t.Errorf("expected think tags stripped from content, got %q", msg.Content)
	}
	if msg.Reasoning != "pondering deeply" {
		t.Errorf("expected reasoning extracted, got %q", msg.Reasoning)
	}
}

func TestCollect_ReassemblesToolCallsByIndex(t *testing.T) {
	ch := chunkStream(
		llmclient.StreamChunk{ToolCallDeltas: []openai.ChatCompletionChunkChoiceDeltaToolCall{
			toolCallDelta(0, "call_1", "read_file_hunk", `{"file`),
		}},
		llmclient.StreamChunk{ToolCallDeltas: []openai.ChatCompletionChunkChoiceDeltaToolCall{
			toolCallDelta(0, "", "", `_path":"a.go"}`),
		}},
	)
	msg := Collect(ch, nil)
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 reassembled tool call, got %d", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "read_file_hunk" {
		t.Errorf("unexpected tool call identity: %+v", tc)
	}
	if tc.Arguments["file_path"] != "a.go" {
		t.Errorf("expected reassembled arguments, got %+v", tc.Arguments)
	}
}

func TestCollect_InvalidJSONArgumentsSurfaced(t *testing.T) {
	ch := chunkStream(
		llmclient.StreamChunk{ToolCallDeltas: []openai.ChatCompletionChunkChoiceDeltaToolCall{
			toolCallDelta(0, "call_1", "search_in_project", `{not json`),
		}},
	)
	msg := Collect(ch, nil)
	if msg.ToolCalls[0].Arguments["_error"] != "invalid_json" {
		t.Errorf("expected invalid_json marker, got %+v", msg.ToolCalls[0].Arguments)
	}
	if msg.ToolCalls[0].Arguments["_raw"] != `{not json` {
		t.Errorf("expected raw text preserved, got %+v", msg.ToolCalls[0].Arguments)
	}
}

func TestCollect_ObserverFiresPerChunk(t *testing.T) {
	var events []map[string]interface{}
	ch := chunkStream(
		llmclient.StreamChunk{ContentDelta: "a"},
		llmclient.StreamChunk{ContentDelta: "b"},
	)
	Collect(ch, func(e map[string]interface{}) { events = append(events, e) })
	if len(events) != 2 {
		t.Fatalf("expected 2 observer events, got %d", len(events))
	}
	if events[0]["type"] != "delta" {
		t.Errorf("expected delta event type, got %+v", events[0])
	}
}
