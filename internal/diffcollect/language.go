package diffcollect

import (
	"path/filepath"
	"strings"

	"pr-review-automation/internal/domain"
)

var extLanguage = map[string]domain.Language{
	".go":    domain.LanguageGo,
	".py":    domain.LanguagePython,
	".pyi":   domain.LanguagePython,
	".ts":    domain.LanguageTypeScript,
	".tsx":   domain.LanguageTypeScript,
	".js":    domain.LanguageJavaScript,
	".jsx":   domain.LanguageJavaScript,
	".mjs":   domain.LanguageJavaScript,
	".java":  domain.LanguageJava,
	".rb":    domain.LanguageRuby,
	".c":     domain.LanguageC,
	".h":     domain.LanguageC,
	".cc":    domain.LanguageCPP,
	".cpp":   domain.LanguageCPP,
	".hpp":   domain.LanguageCPP,
	".rs":    domain.LanguageRust,
	".md":    domain.LanguageText,
	".rst":   domain.LanguageText,
	".txt":   domain.LanguageText,
}

// docExtensions are the "doc-light path" extensions.1
// step 6.
var docExtensions = map[string]bool{".md": true, ".rst": true, ".txt": true}

// DetectLanguage maps a file path's extension to a Language, defaulting
// to LanguageUnknown for unrecognized extensions.
func DetectLanguage(path string) domain.Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extLanguage[ext]; ok {
		return lang
	}
	return domain.LanguageUnknown
}

// IsDocFile reports whether path is a documentation file subject to
// the doc-light truncation rule.
func IsDocFile(path string) bool {
	return docExtensions[strings.ToLower(filepath.Ext(path))]
}
