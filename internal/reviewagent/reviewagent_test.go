package reviewagent

import (
	"testing"

	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/toolruntime"
)

func TestArbitrate_AutoApproveListBypassesApprover(t *testing.T) {
	l := &Loop{}
	calls := []domain.ToolCall{{ID: "1", Name: "list_project_files"}}
	approved, denied := l.arbitrate(calls, map[string]bool{"list_project_files": true}, nil)
	if len(approved) != 1 || len(denied) != 0 {
		t.Fatalf("expected the auto-approved call to bypass the approver, got approved=%v denied=%v", approved, denied)
	}
}

func TestArbitrate_NoApproverDeniesPending(t *testing.T) {
	l := &Loop{}
	calls := []domain.ToolCall{{ID: "1", Name: "read_file_hunk"}}
	approved, denied := l.arbitrate(calls, nil, nil)
	if len(approved) != 0 || len(denied) != 1 {
		t.Fatalf("expected the pending call denied with no approver, got approved=%v denied=%v", approved, denied)
	}
}

func TestArbitrate_ApproverSelectsSubsetByID(t *testing.T) {
	l := &Loop{}
	calls := []domain.ToolCall{
		{ID: "1", Name: "read_file_hunk"},
		{ID: "2", Name: "search_in_project"},
	}
	approver := func(ctx domain.ToolApprovalContext) []string {
		return []string{"2"}
	}
	approved, denied := l.arbitrate(calls, nil, approver)
	if len(approved) != 1 || approved[0].ID != "2" {
		t.Fatalf("expected only call 2 approved, got %v", approved)
	}
	if len(denied) != 1 || denied[0].ID != "1" {
		t.Fatalf("expected call 1 denied, got %v", denied)
	}
}

func TestArbitrate_ApproverSelectsSubsetByName(t *testing.T) {
	l := &Loop{}
	calls := []domain.ToolCall{{ID: "1", Name: "get_dependencies"}}
	approver := func(ctx domain.ToolApprovalContext) []string {
		return []string{"get_dependencies"}
	}
	approved, _ := l.arbitrate(calls, nil, approver)
	if len(approved) != 1 {
		t.Fatalf("expected approval to match by tool name, got %v", approved)
	}
}

func TestExtractTitle_SkipsGenericHeadings(t *testing.T) {
	md := "# Code Review Report\n\nsome text\n\n## Null pointer risk in parser.go\n\nmore text"
	got := extractTitle(md)
	if got != "Null pointer risk in parser.go" {
		t.Errorf("expected the first non-generic heading, got %q", got)
	}
}

func TestExtractTitle_EmptyWhenNoHeadings(t *testing.T) {
	if got := extractTitle("just prose, no headings here"); got != "" {
		t.Errorf("expected empty title, got %q", got)
	}
}

func TestToolResultMessages_PreservesOriginalCallOrder(t *testing.T) {
	all := []domain.ToolCall{
		{ID: "1", Name: "a"},
		{ID: "2", Name: "b"},
		{ID: "3", Name: "c"},
	}
	approvedResults := []toolruntime.Result{
		{CallID: "1", ToolName: "a", Content: "first"},
	}
	deniedResults := []toolruntime.Result{
		{CallID: "3", ToolName: "c", Error: "denied"},
	}
	msgs := toolResultMessages(all, nil, approvedResults, nil, deniedResults)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages (call 2 has no result), got %d", len(msgs))
	}
	if msgs[0].ToolCallID != "1" || msgs[1].ToolCallID != "3" {
		t.Fatalf("expected order 1 then 3 matching input order, got %s then %s", msgs[0].ToolCallID, msgs[1].ToolCallID)
	}
}
