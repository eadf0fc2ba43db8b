package diffcollect

import (
	"regexp"
	"strings"

	"pr-review-automation/internal/domain"
)

// blockStartPatterns maps language to the regexes that mark the start
// of a function/method/class declaration for that language. Every
// language other than Go gets this regex-based extraction; Go gets
// real AST parsing (see symbol_go.go).
var blockStartPatterns = map[domain.Language][]struct {
	re   *regexp.Regexp
	kind string
}{
	domain.LanguagePython: {
		{regexp.MustCompile(`^(\s*)def\s+(\w+)`), "function"},
		{regexp.MustCompile(`^(\s*)class\s+(\w+)`), "class"},
	},
	domain.LanguageJava: {
		{regexp.MustCompile(`^(\s*)(?:public|private|protected|static|\s)*\s*(?:[\w<>\[\],\s]+)\s+(\w+)\s*\([^)]*\)\s*\{?\s*$`), "function"},
		{regexp.MustCompile(`^(\s*)(?:public|private|protected)?\s*(?:abstract|final)?\s*class\s+(\w+)`), "class"},
	},
	domain.LanguageTypeScript: {
		{regexp.MustCompile(`^(\s*)(?:export\s+)?(?:async\s+)?function\s+(\w+)`), "function"},
		{regexp.MustCompile(`^(\s*)(?:export\s+)?class\s+(\w+)`), "class"},
		{regexp.MustCompile(`^(\s*)(?:export\s+)?(?:const|let)\s+(\w+)\s*=\s*(?:async\s*)?\(`), "function"},
	},
	domain.LanguageJavaScript: {
		{regexp.MustCompile(`^(\s*)(?:export\s+)?(?:async\s+)?function\s+(\w+)`), "function"},
		{regexp.MustCompile(`^(\s*)(?:export\s+)?class\s+(\w+)`), "class"},
	},
	domain.LanguageRuby: {
		{regexp.MustCompile(`^(\s*)def\s+(\w+)`), "function"},
		{regexp.MustCompile(`^(\s*)class\s+(\w+)`), "class"},
		{regexp.MustCompile(`^(\s*)module\s+(\w+)`), "module"},
	},
	domain.LanguageC: {
		{regexp.MustCompile(`^(\s*)[\w\*\s]+\s+(\w+)\s*\([^;]*\)\s*\{?\s*$`), "function"},
	},
	domain.LanguageCPP: {
		{regexp.MustCompile(`^(\s*)[\w:<>\*\s]+\s+(\w+)\s*\([^;]*\)\s*\{?\s*$`), "function"},
		{regexp.MustCompile(`^(\s*)class\s+(\w+)`), "class"},
	},
	domain.LanguageRust: {
		{regexp.MustCompile(`^(\s*)(?:pub\s+)?(?:async\s+)?fn\s+(\w+)`), "function"},
		{regexp.MustCompile(`^(\s*)(?:pub\s+)?struct\s+(\w+)`), "class"},
	},
}

// findGenericSymbol scans backward from startLine over declaration
// lines, keeping the least-indented one seen and stopping at the first
// declaration at column 0, so the outermost enclosing block wins (for a
// method inside a class, the class). It then scans forward to find that
// block's end, using brace counting for brace languages and an
// indentation-drop heuristic for Python/Ruby, and returns nil when the
// block ends before endLine.
func findGenericSymbol(lang domain.Language, lines []string, startLine, endLine int) *domain.Symbol {
	patterns := blockStartPatterns[lang]
	if len(patterns) == 0 {
		return nil
	}
	start1 := clampLine(startLine, len(lines))
	var bestName, bestKind string
	var bestStart int
	var bestIndent = -1

	for i := start1 - 1; i >= 0; i-- {
		line := lines[i]
		for _, p := range patterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			indent := len(m[1])
			if bestIndent == -1 || indent < bestIndent {
				bestIndent = indent
				bestStart = i + 1
				bestKind = p.kind
				bestName = m[len(m)-1]
			}
		}
		if bestIndent == 0 {
			break
		}
	}
	if bestStart == 0 {
		return nil
	}

	end := findBlockEnd(lang, lines, bestStart, bestIndent)
	if end < endLine {
		// The detected block doesn't actually reach the hunk; not a match.
		return nil
	}
	return &domain.Symbol{Kind: bestKind, Name: bestName, StartLine: bestStart, EndLine: end}
}

func clampLine(n, max int) int {
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

var indentLangs = map[domain.Language]bool{
	domain.LanguagePython: true,
	domain.LanguageRuby:   false, // ruby uses end keywords, brace-like via keyword counting below
}

func findBlockEnd(lang domain.Language, lines []string, start1, declIndent int) int {
	if lang == domain.LanguagePython {
		for i := start1; i < len(lines); i++ {
			line := lines[i]
			if strings.TrimSpace(line) == "" {
				continue
			}
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if indent <= declIndent {
				return i // 1-based line before this one
			}
		}
		return len(lines)
	}
	if lang == domain.LanguageRuby {
		depth := 0
		opener := regexp.MustCompile(`^\s*(def|class|module|if|unless|do|begin|while|until|case)\b`)
		for i := start1 - 1; i < len(lines); i++ {
			line := strings.TrimSpace(lines[i])
			if opener.MatchString(line) {
				depth++
			}
			if line == "end" || strings.HasSuffix(line, " end") {
				depth--
				if depth <= 0 {
					return i + 1
				}
			}
		}
		return len(lines)
	}
	// Brace languages: count braces from the declaration line onward.
	depth := 0
	seenOpen := false
	for i := start1 - 1; i < len(lines); i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				seenOpen = true
			case '}':
				depth--
			}
		}
		if seenOpen && depth <= 0 {
			return i + 1
		}
	}
	return len(lines)
}
