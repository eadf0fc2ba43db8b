package rules

import (
	"regexp"

	"pr-review-automation/internal/domain"
)

// rubyRules is the Ruby handler: Rails controller/route
// directories, migrations, initializers, class symbols, and
// callback/before_action code patterns.
func rubyRules() LanguageRules {
	return LanguageRules{
		Lang: domain.LanguageRuby,
		Path: []PathRule{
			{ID: "controller", Pattern: regexp.MustCompile(`(^|/)(controllers?|routes)(/|\.rb$)`), Level: domain.ContextLevelFunction, BaseConfidence: 0.7},
			{ID: "migration", Pattern: regexp.MustCompile(`(^|/)db/migrate/`), Level: domain.ContextLevelFileContext, BaseConfidence: 0.65},
			{ID: "initializer", Pattern: regexp.MustCompile(`(^|/)config/initializers/`), Level: domain.ContextLevelFunction, BaseConfidence: 0.75, ExtraRequests: []domain.ExtraRequestType{domain.ExtraRequestSearchConfig}},
			{ID: "spec_file", Pattern: regexp.MustCompile(`_spec\.rb$`), Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.6},
		},
		Symbol: []SymbolRule{
			{ID: "model_class", Kind: "class", NamePattern: regexp.MustCompile(`.*`), Level: domain.ContextLevelFunction, BaseConfidence: 0.4},
		},
		Metric: []MetricRule{
			{ID: "small_change", MaxLines: 5, Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.5},
			{ID: "medium_change", MinLines: 6, MaxLines: 50, Level: domain.ContextLevelFunction, BaseConfidence: 0.45},
			{ID: "large_change", MinLines: 51, Level: domain.ContextLevelFileContext, BaseConfidence: 0.5},
		},
		Keyword: []KeywordRule{
			{ID: "callback_keyword", Keywords: []string{"before_action", "after_save", "validates", "callback"}, Level: domain.ContextLevelFunction, BaseConfidence: 0.55},
		},
		Pattern: []PatternRule{
			{ID: "rails_callback", Pattern: regexp.MustCompile(`(?m)^\+\s*(before_action|after_save|before_save|around_action)\b`), Level: domain.ContextLevelFunction, BaseConfidence: 0.6},
		},
	}
}
