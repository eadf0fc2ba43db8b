package rules

import (
	"testing"

	"pr-review-automation/internal/domain"
)

func unit(lang domain.Language, path string, added, removed int) *domain.ReviewUnit {
	return &domain.ReviewUnit{
		FilePath:   path,
		Language:   lang,
		ChangeType: domain.ChangeTypeModify,
		Metrics:    domain.UnitMetrics{AddedLines: added, RemovedLines: removed},
	}
}

func TestEngine_NeverReturnsUnknownLevel(t *testing.T) {
	e := NewEngine()
	langs := []domain.Language{
		domain.LanguageGo, domain.LanguagePython, domain.LanguageJava,
		domain.LanguageTypeScript, domain.LanguageJavaScript, domain.LanguageRuby,
		domain.LanguageC, domain.LanguageCPP, domain.LanguageRust,
		domain.LanguageText, domain.LanguageUnknown, "made-up-lang",
	}
	for _, lang := range langs {
		u := unit(lang, "random/path/file.ext", 3, 1)
		s := e.BuildRuleSuggestion(u)
		if s.ContextLevel == "" || s.ContextLevel == "unknown" {
			t.Errorf("lang %s produced empty/unknown context level: %+v", lang, s)
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			t.Errorf("lang %s produced out-of-range confidence %f", lang, s.Confidence)
		}
	}
}

func TestEngine_Deterministic(t *testing.T) {
	e := NewEngine()
	u := unit(domain.LanguageGo, "internal/handler/users.go", 10, 2)
	first := e.BuildRuleSuggestion(u)
	for i := 0; i < 5; i++ {
		got := e.BuildRuleSuggestion(u)
		if got.ContextLevel != first.ContextLevel || got.Confidence != first.Confidence || got.Notes != first.Notes {
			t.Fatalf("rule engine not deterministic: run %d got %+v, want %+v", i, got, first)
		}
	}
}

func TestEngine_GoGoroutinePatternElevatesContext(t *testing.T) {
	e := NewEngine()
	u := unit(domain.LanguageGo, "internal/worker/pool.go", 90, 5)
	u.UnifiedDiff = "@@ -1,3 +1,5 @@\n+func run() {\n+\tgo func() {\n+\t\tdoWork()\n+\t}()\n }\n"
	s := e.BuildRuleSuggestion(u)
	if s.ContextLevel != domain.ContextLevelFunction {
		t.Errorf("expected function-level context for goroutine spawn, got %s", s.ContextLevel)
	}
	if s.Confidence < 0.6 {
		t.Errorf("expected high confidence for goroutine spawn pattern, got %f", s.Confidence)
	}
}

func TestEngine_JavaSpringAnnotationPattern(t *testing.T) {
	e := NewEngine()
	u := unit(domain.LanguageJava, "src/main/java/Foo.java", 4, 0)
	u.UnifiedDiff = "@@ -1,2 +1,4 @@\n+@RestController\n+@RequestMapping(\"/foo\")\n class Foo {}\n"
	s := e.BuildRuleSuggestion(u)
	if s.ContextLevel != domain.ContextLevelFunction {
		t.Errorf("expected function-level context for spring annotation, got %s", s.ContextLevel)
	}
}

func TestEngine_ReactHookPattern(t *testing.T) {
	e := NewEngine()
	u := unit(domain.LanguageTypeScript, "src/components/Widget.tsx", 8, 1)
	u.UnifiedDiff = "@@ -1,2 +1,4 @@\n+const [x, setX] = useState(0)\n+useEffect(() => {}, [])\n"
	s := e.BuildRuleSuggestion(u)
	if s.ContextLevel != domain.ContextLevelFunction {
		t.Errorf("expected function-level context for react hook usage, got %s", s.ContextLevel)
	}
}

func TestEngine_RailsCallbackPattern(t *testing.T) {
	e := NewEngine()
	u := unit(domain.LanguageRuby, "app/models/user.rb", 3, 0)
	u.UnifiedDiff = "@@ -1,1 +1,3 @@\n+before_action :authenticate\n"
	s := e.BuildRuleSuggestion(u)
	if s.ContextLevel != domain.ContextLevelFunction {
		t.Errorf("expected function-level context for rails callback, got %s", s.ContextLevel)
	}
}

func TestEngine_SecurityTagBoostsConfidence(t *testing.T) {
	e := NewEngine()
	plain := unit(domain.LanguageGo, "internal/foo/bar.go", 10, 2)
	withTag := unit(domain.LanguageGo, "internal/foo/bar.go", 10, 2)
	withTag.AddTag("security_sensitive")

	plainS := e.BuildRuleSuggestion(plain)
	taggedS := e.BuildRuleSuggestion(withTag)
	if taggedS.Confidence <= plainS.Confidence {
		t.Errorf("expected security_sensitive tag to raise confidence: plain=%f tagged=%f", plainS.Confidence, taggedS.Confidence)
	}
}

func TestEngine_CommentOnlyChangeIsHighConfidenceDiffOnly(t *testing.T) {
	e := NewEngine()
	u := unit(domain.LanguagePython, "foo.py", 1, 1)
	u.AddTag("only_comments")
	s := e.BuildRuleSuggestion(u)
	if s.ContextLevel != domain.ContextLevelDiffOnly {
		t.Errorf("expected diff_only for comment-only change, got %s", s.ContextLevel)
	}
	if s.Confidence < 0.88 {
		t.Errorf("expected confidence >= 0.88 for comment-only change, got %f", s.Confidence)
	}
}

func TestEngine_PythonConfigPathRule(t *testing.T) {
	e := NewEngine()
	u := unit(domain.LanguagePython, "config/auth/oauth.py", 4, 0)
	u.AddTag("config_file")
	u.AddTag("security_sensitive")
	s := e.BuildRuleSuggestion(u)
	if s.ContextLevel != domain.ContextLevelFunction {
		t.Errorf("expected function-level context for config change, got %s", s.ContextLevel)
	}
	if s.Confidence < 0.8 {
		t.Errorf("expected high confidence for security-sensitive config change, got %f", s.Confidence)
	}
	found := false
	for _, r := range s.ExtraRequests {
		if r == domain.ExtraRequestSearchConfig {
			found = true
		}
	}
	if !found {
		t.Errorf("expected search_config_usage extra request, got %v", s.ExtraRequests)
	}
}

func TestEngine_UnaliasesLanguageSpellings(t *testing.T) {
	e := NewEngine()
	canonical := e.BuildRuleSuggestion(unit(domain.LanguagePython, "app/views/home.py", 10, 1))
	aliased := e.BuildRuleSuggestion(unit(domain.Language("py"), "app/views/home.py", 10, 1))
	if canonical.ContextLevel != aliased.ContextLevel || canonical.Confidence != aliased.Confidence {
		t.Errorf("expected alias 'py' to resolve identically to python: %+v vs %+v", aliased, canonical)
	}
}
