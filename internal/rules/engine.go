package rules

import (
	"regexp"
	"strings"

	"pr-review-automation/internal/domain"
)

// PathRule matches on file-path patterns (route/controller/migration/
// config/test directories) category 1.
type PathRule struct {
	ID             string
	Pattern        *regexp.Regexp
	Level          domain.ContextLevel
	BaseConfidence float64
	ExtraRequests  []domain.ExtraRequestType
}

// SymbolRule matches on symbol kind + name pattern, category 2.
type SymbolRule struct {
	ID             string
	Kind           string
	NamePattern    *regexp.Regexp
	Level          domain.ContextLevel
	BaseConfidence float64
}

// MetricRule matches on total changed-line buckets, category 3.
type MetricRule struct {
	ID             string
	MinLines       int
	MaxLines       int // 0 means unbounded
	Level          domain.ContextLevel
	BaseConfidence float64
}

// KeywordRule is the last-resort substring match over path ⊕ symbol
// name ⊕ tags, category 4.
type KeywordRule struct {
	ID             string
	Keywords       []string
	Level          domain.ContextLevel
	BaseConfidence float64
}

// PatternRule scans diff content for language-specific danger
// patterns, category 5.
type PatternRule struct {
	ID             string
	Pattern        *regexp.Regexp
	Level          domain.ContextLevel
	BaseConfidence float64
}

// LanguageRules is a Handler composed of the five rule categories
// (path, symbol, metric, keyword, code pattern). A path match wins
// outright, then the trivial-content tags, then a symbol match; a
// metric or keyword match is held tentative and a code-pattern hit on
// the diff overrides it.
type LanguageRules struct {
	Lang     domain.Language
	Path     []PathRule
	Symbol   []SymbolRule
	Metric   []MetricRule
	Keyword  []KeywordRule
	Pattern  []PatternRule
}

var baseSecurityKeywords = []string{"auth", "token", "secret", "password", "credential", "crypto", "session", "permission", "acl"}

func totalChanged(u *domain.ReviewUnit) int {
	return u.Metrics.AddedLines + u.Metrics.RemovedLines
}

func (lr LanguageRules) Match(u *domain.ReviewUnit) (Suggestion, bool) {
	lower := strings.ToLower(u.FilePath)

	for _, r := range lr.Path {
		if r.Pattern.MatchString(lower) {
			return lr.finish(u, r.Level, r.BaseConfidence, lr.Lang.String()+":"+r.ID, r.ExtraRequests), true
		}
	}
	// Trivial-content tags short-circuit: a hunk that only touches
	// comments, imports, or logging needs no more than the diff itself.
	for _, tag := range []string{"only_comments", "only_imports", "only_logging"} {
		if u.HasTag(tag) {
			return lr.finish(u, domain.ContextLevelDiffOnly, 0.85, lr.Lang.String()+":"+tag, nil), true
		}
	}
	if u.Symbol != nil {
		for _, r := range lr.Symbol {
			if r.Kind != "" && r.Kind != u.Symbol.Kind {
				continue
			}
			if r.NamePattern.MatchString(u.Symbol.Name) {
				return lr.finish(u, r.Level, r.BaseConfidence, lr.Lang.String()+":"+r.ID, nil), true
			}
		}
	}
	// Metric and keyword matches are tentative: a code-pattern hit in
	// the diff body is more specific evidence than change volume or a
	// substring, so it overrides them below.
	var tentative *Suggestion
	total := totalChanged(u)
	for _, r := range lr.Metric {
		if total >= r.MinLines && (r.MaxLines == 0 || total <= r.MaxLines) {
			s := lr.finish(u, r.Level, r.BaseConfidence, lr.Lang.String()+":"+r.ID, nil)
			tentative = &s
			break
		}
	}
	if tentative == nil {
		haystack := lower
		if u.Symbol != nil {
			haystack += " " + strings.ToLower(u.Symbol.Name)
		}
		haystack += " " + strings.ToLower(strings.Join(u.Tags, " "))
	keywordScan:
		for _, r := range lr.Keyword {
			for _, kw := range r.Keywords {
				if strings.Contains(haystack, kw) {
					s := lr.finish(u, r.Level, r.BaseConfidence, lr.Lang.String()+":"+r.ID, nil)
					tentative = &s
					break keywordScan
				}
			}
		}
		if tentative == nil {
			for _, kw := range baseSecurityKeywords {
				if strings.Contains(haystack, kw) {
					s := lr.finish(u, domain.ContextLevelFunction, 0.55, lr.Lang.String()+":base_security_keyword", nil)
					tentative = &s
					break
				}
			}
		}
	}
	for _, r := range lr.Pattern {
		if r.Pattern.MatchString(u.UnifiedDiff) {
			return lr.finish(u, r.Level, r.BaseConfidence, lr.Lang.String()+":"+r.ID, nil), true
		}
	}
	if tentative != nil {
		return *tentative, true
	}
	return Suggestion{}, false
}

// finish composes the final confidence from the base plus the named
// adjuster categories: file_size, change_type, security_sensitive,
// language_specificity_bonus. No rule_specificity adjustment is
// applied.
func (lr LanguageRules) finish(u *domain.ReviewUnit, level domain.ContextLevel, base float64, notes string, extra []domain.ExtraRequestType) Suggestion {
	conf := base
	if totalChanged(u) > 80 {
		conf += 0.05 // file_size adjuster
	}
	if u.ChangeType == domain.ChangeTypeAdd {
		conf -= 0.03 // change_type adjuster: brand-new code is lower-risk than modified code
	}
	if u.HasTag("security_sensitive") {
		conf += 0.15 // security_sensitive adjuster
	}
	conf += 0.05 // language_specificity_bonus: matched via a language-specific handler
	return Suggestion{
		ContextLevel:  level,
		Confidence:    clamp01(conf),
		Notes:         notes,
		ExtraRequests: extra,
	}
}

// Engine is the language-to-Handler registry. BuildRuleSuggestion is
// the package entry point.
type Engine struct {
	handlers map[domain.Language]Handler
}

// NewEngine returns an Engine pre-populated with every built-in
// language handler.
func NewEngine() *Engine {
	e := &Engine{handlers: map[domain.Language]Handler{}}
	e.Register(domain.LanguageGo, goRules())
	e.Register(domain.LanguagePython, pythonRules())
	e.Register(domain.LanguageJava, javaRules())
	e.Register(domain.LanguageTypeScript, typescriptRules())
	e.Register(domain.LanguageJavaScript, typescriptRules())
	e.Register(domain.LanguageRuby, rubyRules())
	generic := genericRules()
	for _, lang := range []domain.Language{domain.LanguageC, domain.LanguageCPP, domain.LanguageRust, domain.LanguageText, domain.LanguageUnknown} {
		e.Register(lang, generic)
	}
	return e
}

// Register installs (or replaces) the handler for a language.
func (e *Engine) Register(lang domain.Language, h Handler) {
	e.handlers[lang] = h
}

// alias normalizes common alternate spellings (py/ts/js/golang) to the
// canonical Language keys, matching the original's get_rule_handler
// alias table.
func alias(lang domain.Language) domain.Language {
	switch lang {
	case "py":
		return domain.LanguagePython
	case "golang":
		return domain.LanguageGo
	case "javascript":
		return domain.LanguageJavaScript
	case "typescript":
		return domain.LanguageTypeScript
	default:
		return lang
	}
}

// BuildRuleSuggestion applies the unit's language handler and falls
// back to Default() — never "unknown".
func (e *Engine) BuildRuleSuggestion(u *domain.ReviewUnit) Suggestion {
	h, ok := e.handlers[alias(u.Language)]
	if !ok {
		h = e.handlers[domain.LanguageUnknown]
	}
	if h != nil {
		if s, matched := h.Match(u); matched {
			return s
		}
	}
	return Default()
}

// Apply runs BuildRuleSuggestion and writes the result back onto the
// unit's Rule* fields.
func (e *Engine) Apply(u *domain.ReviewUnit) {
	s := e.BuildRuleSuggestion(u)
	u.RuleContextLevel = s.ContextLevel
	u.RuleConfidence = s.Confidence
	u.RuleNotes = s.Notes
	u.RuleExtraRequests = s.ExtraRequests
}
