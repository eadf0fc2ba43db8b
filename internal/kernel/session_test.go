package kernel

import (
	"testing"

	"pr-review-automation/internal/domain"
)

func TestWantsAgent_EmptyMeansEverything(t *testing.T) {
	if !wantsAgent(nil, domain.AgentPlanner) {
		t.Error("expected an empty agent list to run every agent")
	}
}

func TestWantsAgent_RespectsExplicitSubset(t *testing.T) {
	agents := []domain.AgentKind{domain.AgentIntent}
	if !wantsAgent(agents, domain.AgentIntent) {
		t.Error("expected intent to run when explicitly requested")
	}
	if wantsAgent(agents, domain.AgentReviewer) {
		t.Error("expected reviewer to be skipped when not in the requested subset")
	}
}

func TestResolveModel_AutoAndEmptyDeferToFallback(t *testing.T) {
	if got := resolveModel("", "gpt-4o"); got != "gpt-4o" {
		t.Errorf("expected empty preference to defer to fallback, got %q", got)
	}
	if got := resolveModel("auto", "gpt-4o"); got != "gpt-4o" {
		t.Errorf("expected auto preference to defer to fallback, got %q", got)
	}
}

func TestResolveModel_ProviderModelSuffixWins(t *testing.T) {
	if got := resolveModel("openai:gpt-4.1", "gpt-4o"); got != "gpt-4.1" {
		t.Errorf("expected provider:model suffix to be used, got %q", got)
	}
}

func TestModelFor_BareProviderResolvesViaCatalog(t *testing.T) {
	k := &Kernel{models: map[string][]string{"openai": {"gpt-4o-mini"}}}
	if got := k.modelFor("openai", "fallback-model"); got != "gpt-4o-mini" {
		t.Errorf("expected catalogue lookup for bare provider, got %q", got)
	}
	if got := k.modelFor("unlisted", "fallback-model"); got != "fallback-model" {
		t.Errorf("expected unlisted provider to defer to fallback, got %q", got)
	}
	if got := k.modelFor("openai:gpt-4.1", "fallback-model"); got != "gpt-4.1" {
		t.Errorf("expected explicit provider:model to bypass the catalogue, got %q", got)
	}
}

func TestResolveModel_EmptyModelSuffixDefersToFallback(t *testing.T) {
	if got := resolveModel("openai:", "gpt-4o"); got != "gpt-4o" {
		t.Errorf("expected trailing empty model suffix to defer to fallback, got %q", got)
	}
}

func TestExtractJSONObject_FindsBalancedSpanAmidProse(t *testing.T) {
	text := "Here is my answer:\n```json\n{\"score\": 7, \"summary\": \"looks fine\"}\n```\nThanks."
	obj, ok := extractJSONObject(text)
	if !ok {
		t.Fatal("expected to find a JSON object")
	}
	if obj != `{"score": 7, "summary": "looks fine"}` {
		t.Errorf("unexpected extracted object: %q", obj)
	}
}

func TestExtractJSONObject_IgnoresBracesInsideStrings(t *testing.T) {
	text := `{"summary": "contains a brace } inside a string", "score": 1}`
	obj, ok := extractJSONObject(text)
	if !ok {
		t.Fatal("expected to find a JSON object")
	}
	if obj != text {
		t.Errorf("expected the whole object back, got %q", obj)
	}
}

func TestExtractJSONObject_NoObjectReturnsFalse(t *testing.T) {
	if _, ok := extractJSONObject("no braces here"); ok {
		t.Error("expected no object to be found")
	}
}

func TestParseReport_FallsBackToRawContentWhenNoJSON(t *testing.T) {
	report := parseReport("# My Title\n\nplain markdown review", "My Title", "gpt-4o")
	if report.Summary != "# My Title\n\nplain markdown review" {
		t.Errorf("expected summary to be the raw content, got %q", report.Summary)
	}
	if report.Title != "My Title" || report.Model != "gpt-4o" {
		t.Errorf("expected title/model passed through, got %+v", report)
	}
	if len(report.Comments) != 0 {
		t.Errorf("expected no comments without embedded JSON, got %+v", report.Comments)
	}
}

func TestParseReport_MergesEmbeddedStructuredFields(t *testing.T) {
	content := `Review complete. {"score": 8, "summary": "solid change", "comments": [{"file": "a.go", "line": 10, "severity": "minor", "comment": "nit"}]}`
	report := parseReport(content, "", "gpt-4o")
	if report.Score != 8 {
		t.Errorf("expected score 8, got %d", report.Score)
	}
	if report.Summary != "solid change" {
		t.Errorf("expected structured summary to override raw content, got %q", report.Summary)
	}
	if len(report.Comments) != 1 || report.Comments[0].File != "a.go" {
		t.Errorf("expected one comment parsed from embedded JSON, got %+v", report.Comments)
	}
}
