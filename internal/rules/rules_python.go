package rules

import (
	"regexp"

	"pr-review-automation/internal/domain"
)

// pythonRules is the Python handler: Django/Flask
// view/route directories, migrations, settings files, test functions,
// decorator-heavy code patterns (celery tasks, signal handlers).
func pythonRules() LanguageRules {
	return LanguageRules{
		Lang: domain.LanguagePython,
		Path: []PathRule{
			{ID: "views_routes", Pattern: regexp.MustCompile(`(^|/)(views?|routes?|urls|api)(/|\.py$)`), Level: domain.ContextLevelFunction, BaseConfidence: 0.7},
			{ID: "migration", Pattern: regexp.MustCompile(`(^|/)migrations?/`), Level: domain.ContextLevelFileContext, BaseConfidence: 0.65},
			{ID: "settings_file", Pattern: regexp.MustCompile(`(^|/)settings(/|\.py$)`), Level: domain.ContextLevelFunction, BaseConfidence: 0.75, ExtraRequests: []domain.ExtraRequestType{domain.ExtraRequestSearchConfig}},
			{ID: "config_file", Pattern: regexp.MustCompile(`(^|/)(config|conf)(/|\.py$)`), Level: domain.ContextLevelFunction, BaseConfidence: 0.75, ExtraRequests: []domain.ExtraRequestType{domain.ExtraRequestSearchConfig}},
			{ID: "test_file", Pattern: regexp.MustCompile(`(^|/)test_\w+\.py$|_test\.py$`), Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.6},
		},
		Symbol: []SymbolRule{
			{ID: "test_func", Kind: "function", NamePattern: regexp.MustCompile(`^test_`), Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.55},
			{ID: "main_func", Kind: "function", NamePattern: regexp.MustCompile(`^main$|^__init__$`), Level: domain.ContextLevelFileContext, BaseConfidence: 0.55},
		},
		Metric: []MetricRule{
			{ID: "small_change", MaxLines: 5, Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.5},
			{ID: "medium_change", MinLines: 6, MaxLines: 50, Level: domain.ContextLevelFunction, BaseConfidence: 0.45},
			{ID: "large_change", MinLines: 51, Level: domain.ContextLevelFileContext, BaseConfidence: 0.5},
		},
		Keyword: []KeywordRule{
			{ID: "decorator_keyword", Keywords: []string{"celery", "signal", "middleware", "decorator"}, Level: domain.ContextLevelFunction, BaseConfidence: 0.55},
		},
		Pattern: []PatternRule{
			{ID: "sql_raw_query", Pattern: regexp.MustCompile(`(?m)^\+.*\.raw\(|\bexecute\(["'].*%s`), Level: domain.ContextLevelFunction, BaseConfidence: 0.65},
			{ID: "decorator_use", Pattern: regexp.MustCompile(`(?m)^\+\s*@\w+`), Level: domain.ContextLevelFunction, BaseConfidence: 0.5},
		},
	}
}
