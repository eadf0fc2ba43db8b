package toolruntime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pr-review-automation/internal/domain"
)

func TestRegistry_ExecutePreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("slow", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		time.Sleep(30 * time.Millisecond)
		return "slow-done", nil
	})
	r.Register("fast", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "fast-done", nil
	})

	calls := []domain.ToolCall{
		{ID: "1", Name: "slow"},
		{ID: "2", Name: "fast"},
		{ID: "3", Name: "fast"},
	}
	results := r.Execute(context.Background(), calls)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].CallID != "1" || results[1].CallID != "2" || results[2].CallID != "3" {
		t.Errorf("results out of order: %+v", results)
	}
	if results[0].Content != "slow-done" {
		t.Errorf("expected slow-done, got %v", results[0].Content)
	}
}

func TestRegistry_UnregisteredToolDoesNotAbortBatch(t *testing.T) {
	r := NewRegistry()
	r.Register("known", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "ok", nil
	})
	results := r.Execute(context.Background(), []domain.ToolCall{
		{ID: "1", Name: "unknown"},
		{ID: "2", Name: "known"},
	})
	if results[0].Error == "" {
		t.Errorf("expected error result for unregistered tool")
	}
	if results[1].Content != "ok" {
		t.Errorf("expected known tool to still execute, got %+v", results[1])
	}
}

func TestRegistry_PanicRecovered(t *testing.T) {
	r := NewRegistry()
	r.Register("boom", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		panic("kaboom")
	})
	results := r.Execute(context.Background(), []domain.ToolCall{{ID: "1", Name: "boom"}})
	if results[0].Error == "" {
		t.Fatalf("expected panic to surface as an error result")
	}
}

func TestRegistry_HandlerErrorSurfaced(t *testing.T) {
	r := NewRegistry()
	r.Register("fails", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})
	results := r.Execute(context.Background(), []domain.ToolCall{{ID: "1", Name: "fails"}})
	if results[0].Error != "boom" {
		t.Errorf("expected error 'boom', got %q", results[0].Error)
	}
}

func TestDeniedResult(t *testing.T) {
	call := domain.ToolCall{ID: "9", Name: "write_file"}
	res := DeniedResult(call, "not in auto_approve_list")
	if res.CallID != "9" || res.ToolName != "write_file" {
		t.Errorf("unexpected denied result: %+v", res)
	}
	if res.Error == "" {
		t.Errorf("expected a denial reason in Error")
	}
}

func TestBuiltins_ReadFileHunkNumbered(t *testing.T) {
	dir := t.TempDir()
	content := "line one\nline two\nline three\nline four\n"
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	RegisterBuiltins(r, dir)
	results := r.Execute(context.Background(), []domain.ToolCall{
		{ID: "1", Name: "read_file_hunk", Arguments: map[string]interface{}{
			"file_path": "f.txt", "start_line": float64(2), "end_line": float64(3), "numbered": true,
		}},
	})
	out, ok := results[0].Content.(string)
	if !ok {
		t.Fatalf("expected string content, got %T", results[0].Content)
	}
	want := "2: line two\n3: line three\n"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestBuiltins_ReadFileHunkRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry()
	RegisterBuiltins(r, dir)
	results := r.Execute(context.Background(), []domain.ToolCall{
		{ID: "1", Name: "read_file_hunk", Arguments: map[string]interface{}{"file_path": "../../etc/passwd"}},
	})
	if results[0].Error == "" {
		t.Errorf("expected path traversal to be rejected")
	}
}

func TestBuiltins_GetDependenciesFindsManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry()
	RegisterBuiltins(r, dir)
	results := r.Execute(context.Background(), []domain.ToolCall{{ID: "1", Name: "get_dependencies"}})
	found, ok := results[0].Content.(map[string]string)
	if !ok {
		t.Fatalf("expected map[string]string, got %T", results[0].Content)
	}
	if _, ok := found["go.mod"]; !ok {
		t.Errorf("expected go.mod to be found, got %+v", found)
	}
}
