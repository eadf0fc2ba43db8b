package fusion

import (
	"testing"

	"pr-review-automation/internal/domain"
)

func baseUnit(confidence float64, level domain.ContextLevel, tags ...string) *domain.ReviewUnit {
	return &domain.ReviewUnit{
		UnitID:            "u1",
		RuleContextLevel:  level,
		RuleConfidence:    confidence,
		RuleNotes:         "go:some-rule",
		RuleExtraRequests: []domain.ExtraRequestType{domain.ExtraRequestCallers},
		Tags:              tags,
	}
}

func TestFuse_HighConfidenceRuleWinsWithoutPlannerUpgrade(t *testing.T) {
	u := baseUnit(0.9, domain.ContextLevelFunction)
	got := Fuse(u, nil)
	if got.FinalContextLevel != domain.ContextLevelFunction {
		t.Errorf("expected rule's function level to win, got %s", got.FinalContextLevel)
	}
}

func TestFuse_HighConfidenceRulePlannerUpgradeWins(t *testing.T) {
	u := baseUnit(0.9, domain.ContextLevelFunction)
	planner := &domain.ContextPlanItem{UnitID: "u1", LLMContextLevel: domain.ContextLevelFullFile}
	got := Fuse(u, planner)
	if got.FinalContextLevel != domain.ContextLevelFullFile {
		t.Errorf("expected planner upgrade to full_file to win, got %s", got.FinalContextLevel)
	}
}

func TestFuse_HighConfidenceRulePlannerDowngradeIgnored(t *testing.T) {
	u := baseUnit(0.9, domain.ContextLevelFileContext)
	planner := &domain.ContextPlanItem{UnitID: "u1", LLMContextLevel: domain.ContextLevelDiffOnly}
	got := Fuse(u, planner)
	if got.FinalContextLevel != domain.ContextLevelFileContext {
		t.Errorf("expected rule's file_context to survive planner downgrade attempt, got %s", got.FinalContextLevel)
	}
}

func TestFuse_MidConfidencePlannerWinsWhenPresent(t *testing.T) {
	u := baseUnit(0.65, domain.ContextLevelDiffOnly)
	planner := &domain.ContextPlanItem{UnitID: "u1", LLMContextLevel: domain.ContextLevelFileContext}
	got := Fuse(u, planner)
	if got.FinalContextLevel != domain.ContextLevelFileContext {
		t.Errorf("expected planner's level to win in mid-confidence band, got %s", got.FinalContextLevel)
	}
}

func TestFuse_MidConfidenceFallsBackToRuleWithoutPlanner(t *testing.T) {
	u := baseUnit(0.65, domain.ContextLevelFunction)
	got := Fuse(u, nil)
	if got.FinalContextLevel != domain.ContextLevelFunction {
		t.Errorf("expected rule's level as fallback, got %s", got.FinalContextLevel)
	}
}

func TestFuse_LowConfidencePlannerWins(t *testing.T) {
	u := baseUnit(0.3, domain.ContextLevelDiffOnly)
	planner := &domain.ContextPlanItem{UnitID: "u1", LLMContextLevel: domain.ContextLevelFullFile}
	got := Fuse(u, planner)
	if got.FinalContextLevel != domain.ContextLevelFullFile {
		t.Errorf("expected planner's level to win at low confidence, got %s", got.FinalContextLevel)
	}
}

func TestFuse_SkipReviewSuppressedByHighRiskTag(t *testing.T) {
	u := baseUnit(0.9, domain.ContextLevelFunction, "security_sensitive")
	planner := &domain.ContextPlanItem{UnitID: "u1", LLMContextLevel: domain.ContextLevelFunction, SkipReview: true}
	got := Fuse(u, planner)
	if got.SkipReview {
		t.Error("expected skip_review to be suppressed for a security_sensitive-tagged unit")
	}
}

func TestFuse_SkipReviewSurvivesWithoutHighRiskTag(t *testing.T) {
	u := baseUnit(0.9, domain.ContextLevelDiffOnly, "only_comments")
	planner := &domain.ContextPlanItem{UnitID: "u1", LLMContextLevel: domain.ContextLevelDiffOnly, SkipReview: true}
	got := Fuse(u, planner)
	if !got.SkipReview {
		t.Error("expected skip_review to survive for a non-high-risk-tagged unit")
	}
}

func TestFuse_ExtraRequestsUnionMerged(t *testing.T) {
	u := baseUnit(0.9, domain.ContextLevelFunction, "config_file")
	planner := &domain.ContextPlanItem{
		UnitID:          "u1",
		LLMContextLevel: domain.ContextLevelFunction,
		ExtraRequests:   []domain.ExtraRequestType{domain.ExtraRequestSearchConfig, domain.ExtraRequestCallers},
	}
	got := Fuse(u, planner)
	if len(got.ExtraRequests) != 2 {
		t.Fatalf("expected union of 2 distinct extra requests, got %+v", got.ExtraRequests)
	}
	if got.ExtraRequests[0] != domain.ExtraRequestCallers {
		t.Errorf("expected rule's extra request to come first, got %+v", got.ExtraRequests)
	}
}

func TestFuseAll_MatchesPlannerItemsByUnitID(t *testing.T) {
	units := []*domain.ReviewUnit{
		baseUnit(0.9, domain.ContextLevelFunction),
		{UnitID: "u2", RuleContextLevel: domain.ContextLevelDiffOnly, RuleConfidence: 0.9},
	}
	plannerItems := []domain.ContextPlanItem{
		{UnitID: "u1", LLMContextLevel: domain.ContextLevelFullFile},
	}
	fused := FuseAll(units, plannerItems)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused items, got %d", len(fused))
	}
	if fused[0].FinalContextLevel != domain.ContextLevelFullFile {
		t.Errorf("expected u1 to pick up its planner upgrade, got %s", fused[0].FinalContextLevel)
	}
	if fused[1].FinalContextLevel != domain.ContextLevelDiffOnly {
		t.Errorf("expected u2 to fall back to its rule level, got %s", fused[1].FinalContextLevel)
	}
}
