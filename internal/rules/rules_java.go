package rules

import (
	"regexp"

	"pr-review-automation/internal/domain"
)

// javaRules is the Java handler: Spring controller/
// rest/web directories, application.yml config, test classes, and
// Spring-annotation code patterns.
func javaRules() LanguageRules {
	return LanguageRules{
		Lang: domain.LanguageJava,
		Path: []PathRule{
			{ID: "controller", Pattern: regexp.MustCompile(`(^|/)(controller|rest|web)s?/`), Level: domain.ContextLevelFunction, BaseConfidence: 0.7},
			{ID: "migration", Pattern: regexp.MustCompile(`(^|/)(db/migration|liquibase|flyway)/`), Level: domain.ContextLevelFileContext, BaseConfidence: 0.65},
			{ID: "application_config", Pattern: regexp.MustCompile(`(^|/)application(-\w+)?\.(yml|yaml|properties)$`), Level: domain.ContextLevelFunction, BaseConfidence: 0.75, ExtraRequests: []domain.ExtraRequestType{domain.ExtraRequestSearchConfig}},
			{ID: "test_class", Pattern: regexp.MustCompile(`Test\.java$|Tests\.java$`), Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.6},
		},
		Symbol: []SymbolRule{
			{ID: "main_method", Kind: "function", NamePattern: regexp.MustCompile(`^main$`), Level: domain.ContextLevelFileContext, BaseConfidence: 0.6},
			{ID: "controller_class", Kind: "class", NamePattern: regexp.MustCompile(`Controller$|Resource$`), Level: domain.ContextLevelFunction, BaseConfidence: 0.55},
		},
		Metric: []MetricRule{
			{ID: "small_change", MaxLines: 5, Level: domain.ContextLevelDiffOnly, BaseConfidence: 0.5},
			{ID: "medium_change", MinLines: 6, MaxLines: 70, Level: domain.ContextLevelFunction, BaseConfidence: 0.45},
			{ID: "large_change", MinLines: 71, Level: domain.ContextLevelFileContext, BaseConfidence: 0.5},
		},
		Keyword: []KeywordRule{
			{ID: "spring_keyword", Keywords: []string{"autowired", "transactional", "bean", "aspect"}, Level: domain.ContextLevelFunction, BaseConfidence: 0.55},
		},
		Pattern: []PatternRule{
			{ID: "spring_annotation", Pattern: regexp.MustCompile(`(?m)^\+\s*@(RestController|RequestMapping|Transactional|Autowired|PreAuthorize)`), Level: domain.ContextLevelFunction, BaseConfidence: 0.65},
		},
	}
}
