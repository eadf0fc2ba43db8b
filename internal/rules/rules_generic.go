package rules

import (
	"regexp"

	"pr-review-automation/internal/domain"
)

// genericRules backs every language without a dedicated handler
// (C, C++, Rust, plain text, unknown): a config-path rule, the metric
// buckets, a memory-unsafe code pattern, and the base security-keyword
// fallback.
func genericRules() LanguageRules {
	return LanguageRules{
		Lang: domain.LanguageUnknown,
		Path: []PathRule{
			{ID: "config_file", Pattern: regexp.MustCompile(`(^|/)(config|conf)(/|\.)`), Level: domain.ContextLevelFunction, BaseConfidence: 0.7, ExtraRequests: []domain.ExtraRequestType{domain.ExtraRequestSearchConfig}},
		},
		Metric: []MetricRule{
			{ID: "small_change", MaxLines: 5, Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.4},
			{ID: "medium_change", MinLines: 6, MaxLines: 60, Level: domain.ContextLevelFunction, BaseConfidence: 0.4},
			{ID: "large_change", MinLines: 61, Level: domain.ContextLevelFileContext, BaseConfidence: 0.45},
		},
		Pattern: []PatternRule{
			{ID: "memory_unsafe", Pattern: regexp.MustCompile(`(?m)^\+.*\b(malloc|free|memcpy|strcpy|unsafe\s*\{)\b`), Level: domain.ContextLevelFunction, BaseConfidence: 0.55},
		},
	}
}
