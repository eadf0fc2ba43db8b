package rules

import (
	"regexp"

	"pr-review-automation/internal/domain"
)

// goRules is the Go handler: route/handler path rules, test/main
// symbol rules, metric buckets, keyword fallbacks, and
// goroutine/channel/mutex code patterns that elevate a concurrent
// change's context level.
func goRules() LanguageRules {
	return LanguageRules{
		Lang: domain.LanguageGo,
		Path: []PathRule{
			{ID: "route_handler", Pattern: regexp.MustCompile(`(^|/)(handler|router|controller|api)s?(/|\.go$)`), Level: domain.ContextLevelFunction, BaseConfidence: 0.7},
			{ID: "migration", Pattern: regexp.MustCompile(`(^|/)migrations?/`), Level: domain.ContextLevelFileContext, BaseConfidence: 0.65},
			{ID: "config_file", Pattern: regexp.MustCompile(`(^|/)config(/|\.go$)`), Level: domain.ContextLevelFunction, BaseConfidence: 0.75, ExtraRequests: []domain.ExtraRequestType{domain.ExtraRequestSearchConfig}},
			{ID: "test_file", Pattern: regexp.MustCompile(`_test\.go$`), Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.6},
		},
		Symbol: []SymbolRule{
			{ID: "test_func", Kind: "function", NamePattern: regexp.MustCompile(`^Test|^Benchmark|^Fuzz`), Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.55},
			{ID: "main_func", Kind: "function", NamePattern: regexp.MustCompile(`^main$|^init$`), Level: domain.ContextLevelFileContext, BaseConfidence: 0.6},
		},
		Metric: []MetricRule{
			{ID: "small_change", MaxLines: 5, Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.5},
			{ID: "medium_change", MinLines: 6, MaxLines: 60, Level: domain.ContextLevelFunction, BaseConfidence: 0.45},
			{ID: "large_change", MinLines: 61, Level: domain.ContextLevelFileContext, BaseConfidence: 0.5},
		},
		Keyword: []KeywordRule{
			{ID: "concurrency_keyword", Keywords: []string{"goroutine", "channel", "mutex", "waitgroup"}, Level: domain.ContextLevelFunction, BaseConfidence: 0.6},
		},
		Pattern: []PatternRule{
			{ID: "goroutine_spawn", Pattern: regexp.MustCompile(`(?m)^\+.*\bgo\s+func\s*\(`), Level: domain.ContextLevelFunction, BaseConfidence: 0.7},
			{ID: "channel_op", Pattern: regexp.MustCompile(`(?m)^\+.*(<-\s*\w+|\w+\s*<-|make\(chan\s)`), Level: domain.ContextLevelFunction, BaseConfidence: 0.6},
			{ID: "mutex_usage", Pattern: regexp.MustCompile(`(?m)^\+.*sync\.(Mutex|RWMutex|WaitGroup)`), Level: domain.ContextLevelFunction, BaseConfidence: 0.6},
		},
	}
}
