// Package fusion deterministically merges the rule engine's per-unit
// suggestion with the planner's (possibly absent) opinion into a
// single ContextPlanItem. It is a pure function: no I/O, no
// randomness, safe to call as many times as needed for the same input.
package fusion

import (
	"pr-review-automation/internal/domain"
)

var highRiskTags = map[string]bool{
	"security_sensitive": true,
	"config_file":        true,
	"routing_file":       true,
}

// Fuse merges one unit's rule suggestion with the planner's item for
// that unit, if any (planner may be nil when the LLM omitted the unit
// or every planner attempt failed).
func Fuse(unit *domain.ReviewUnit, planner *domain.ContextPlanItem) domain.ContextPlanItem {
	result := domain.ContextPlanItem{UnitID: unit.UnitID}

	ruleLevel := unit.RuleContextLevel
	ruleConfidence := unit.RuleConfidence

	switch {
	case ruleConfidence >= 0.8:
		// Rule is authoritative at this confidence; the planner may
		// only move the level up the diff_only→...→full_file scale,
		// never down.
		result.FinalContextLevel = ruleLevel
		if planner != nil && planner.LLMContextLevel != "" && planner.LLMContextLevel.Rank() > ruleLevel.Rank() {
			result.FinalContextLevel = planner.LLMContextLevel
		}
	case ruleConfidence >= 0.5:
		if planner != nil && planner.LLMContextLevel != "" {
			result.FinalContextLevel = planner.LLMContextLevel
		} else {
			result.FinalContextLevel = ruleLevel
		}
	default:
		if planner != nil && planner.LLMContextLevel != "" {
			result.FinalContextLevel = planner.LLMContextLevel
		} else {
			result.FinalContextLevel = ruleLevel
		}
	}

	result.ExtraRequests = unionExtraRequests(unit.RuleExtraRequests, planner)

	skipReview := planner != nil && planner.SkipReview
	if skipReview && hasHighRiskTag(unit) {
		skipReview = false
	}
	result.SkipReview = skipReview

	if planner != nil {
		result.Reason = planner.Reason
	}
	if result.Reason == "" {
		result.Reason = unit.RuleNotes
	}

	return result
}

func hasHighRiskTag(unit *domain.ReviewUnit) bool {
	for _, t := range unit.Tags {
		if highRiskTags[t] {
			return true
		}
	}
	return false
}

// unionExtraRequests merges the rule engine's and planner's extra
// requests by type, preserving the rule engine's ordering first and
// appending any planner-only types not already present.
func unionExtraRequests(ruleRequests []domain.ExtraRequestType, planner *domain.ContextPlanItem) []domain.ExtraRequestType {
	seen := map[domain.ExtraRequestType]bool{}
	var out []domain.ExtraRequestType
	for _, r := range ruleRequests {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	if planner != nil {
		for _, r := range planner.ExtraRequests {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// FuseAll runs Fuse for every unit in units, looking up each unit's
// planner item by id (absent entries fuse against a nil planner item).
func FuseAll(units []*domain.ReviewUnit, plannerItems []domain.ContextPlanItem) []domain.ContextPlanItem {
	byID := make(map[string]*domain.ContextPlanItem, len(plannerItems))
	for i := range plannerItems {
		byID[plannerItems[i].UnitID] = &plannerItems[i]
	}
	out := make([]domain.ContextPlanItem, 0, len(units))
	for _, u := range units {
		out = append(out, Fuse(u, byID[u.UnitID]))
	}
	return out
}
