package diffcollect

import (
	"regexp"
	"strings"
)

var (
	configPathRe   = regexp.MustCompile(`(?i)(^|/)(config|conf|settings|\.env)`)
	routingPathRe  = regexp.MustCompile(`(?i)(^|/)(routes?|controllers?|handlers?|api)(/|\.)`)
	securityPathRe = regexp.MustCompile(`(?i)(auth|security|oauth|token|secret|credential|password|jwt|acl|permission)`)

	importLineRe  = regexp.MustCompile(`^\s*(import\s|from\s.+\simport\s|#include\s|require\s*\(|require_relative\s|use\s+[\w:]+;)`)
	commentLineRe = regexp.MustCompile(`^\s*(#|//|/\*|\*|--)`)
	loggingLineRe = regexp.MustCompile(`(?i)\b(log|logger|logging|slog|zerolog)\b\s*\.`)
)

// InferPathTags returns the path-derived tags (config_file, routing_file,
// security_sensitive, doc_file) for a file path.
func InferPathTags(path string) []string {
	var tags []string
	lower := strings.ToLower(path)
	if configPathRe.MatchString(lower) {
		tags = append(tags, "config_file")
	}
	if routingPathRe.MatchString(lower) {
		tags = append(tags, "routing_file")
	}
	if securityPathRe.MatchString(lower) {
		tags = append(tags, "security_sensitive")
	}
	if IsDocFile(path) {
		tags = append(tags, "doc_file")
	}
	return tags
}

// InferContentTags inspects the changed (+/-) lines of a hunk body and
// returns only_imports / only_comments / only_logging when every
// changed line matches that single category.
func InferContentTags(changedLines []string) []string {
	if len(changedLines) == 0 {
		return nil
	}
	allImports, allComments, allLogging := true, true, true
	any := false
	for _, l := range changedLines {
		body := strings.TrimSpace(l[1:])
		if body == "" {
			continue
		}
		any = true
		if !importLineRe.MatchString(body) {
			allImports = false
		}
		if !commentLineRe.MatchString(body) {
			allComments = false
		}
		if !loggingLineRe.MatchString(body) {
			allLogging = false
		}
	}
	if !any {
		return nil
	}
	var tags []string
	if allImports {
		tags = append(tags, "only_imports")
	}
	if allComments {
		tags = append(tags, "only_comments")
	}
	if allLogging {
		tags = append(tags, "only_logging")
	}
	return tags
}

// changedBodyLines extracts only the '+'/'-' lines (with marker) from a
// hunk's raw lines.
func changedBodyLines(lines []string) []string {
	var out []string
	for _, l := range lines {
		if len(l) > 0 && (l[0] == '+' || l[0] == '-') {
			out = append(out, l)
		}
	}
	return out
}
