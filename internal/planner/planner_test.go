package planner

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONArray_PlainArray(t *testing.T) {
	raw, ok := extractJSONArray(`[{"unit_id":"u1","context_level":"function"}]`)
	if !ok {
		t.Fatal("expected array to be found")
	}
	if raw != `[{"unit_id":"u1","context_level":"function"}]` {
		t.Errorf("unexpected extracted text: %q", raw)
	}
}

func TestExtractJSONArray_MarkdownFenced(t *testing.T) {
	text := "Here is my plan:\n```json\n[{\"unit_id\":\"u1\",\"context_level\":\"full_file\"}]\n```\nLet me know if you need more."
	raw, ok := extractJSONArray(text)
	if !ok {
		t.Fatal("expected array to be found inside markdown fence")
	}
	var items []map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		t.Fatalf("expected valid JSON, got error: %v, raw=%q", err, raw)
	}
}

func TestExtractJSONArray_NestedBracketsInReason(t *testing.T) {
	text := `[{"unit_id":"u1","context_level":"function","reason":"array literal [1,2] changed"}]`
	raw, ok := extractJSONArray(text)
	if !ok {
		t.Fatal("expected array to be found")
	}
	var items []map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		t.Fatalf("expected valid JSON despite nested brackets in string, got: %v", err)
	}
}

func TestExtractJSONArray_ObjectWrapper(t *testing.T) {
	text := `{"units": [{"unit_id":"u1","context_level":"diff_only"}], "notes": "ok"}`
	raw, ok := extractJSONArray(text)
	if !ok {
		t.Fatal("expected array to be found under units key")
	}
	var items []map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		t.Fatalf("expected valid JSON, got: %v", err)
	}
}

func TestExtractJSONArray_NoArrayPresent(t *testing.T) {
	if _, ok := extractJSONArray("I could not find any units to adjust."); ok {
		t.Fatal("expected no array to be found")
	}
}

func TestParsePlanItems_DropsUnknownAndDuplicateUnitIDs(t *testing.T) {
	raw := `[
		{"unit_id":"u1","context_level":"function"},
		{"unit_id":"u1","context_level":"full_file"},
		{"unit_id":"unknown","context_level":"full_file"},
		{"unit_id":"u2","context_level":"bogus_level"}
	]`
	known := map[string]bool{"u1": true, "u2": true}
	items, err := parsePlanItems(raw, known)
	if err != nil {
		t.Fatalf("parsePlanItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 surviving items, got %d: %+v", len(items), items)
	}
	if items[0].UnitID != "u1" || items[0].LLMContextLevel != "function" {
		t.Errorf("expected first occurrence of u1 to win, got %+v", items[0])
	}
	if items[1].UnitID != "u2" || items[1].LLMContextLevel != "" {
		t.Errorf("expected bogus context level to be dropped (empty), got %+v", items[1])
	}
}

func TestParsePlanItems_FiltersUnknownExtraRequests(t *testing.T) {
	raw := `[{"unit_id":"u1","context_level":"function","extra_requests":["callers","not_a_real_request"]}]`
	items, err := parsePlanItems(raw, map[string]bool{"u1": true})
	if err != nil {
		t.Fatalf("parsePlanItems: %v", err)
	}
	if len(items[0].ExtraRequests) != 1 || items[0].ExtraRequests[0] != "callers" {
		t.Errorf("expected only 'callers' to survive filtering, got %+v", items[0].ExtraRequests)
	}
}

func TestParsePlanItems_CoercesSkipReviewFromString(t *testing.T) {
	raw := `[{"unit_id":"u1","context_level":"diff_only","skip_review":"true"}]`
	items, err := parsePlanItems(raw, map[string]bool{"u1": true})
	if err != nil {
		t.Fatalf("parsePlanItems: %v", err)
	}
	if !items[0].SkipReview {
		t.Error("expected skip_review string \"true\" to coerce to bool true")
	}
}
