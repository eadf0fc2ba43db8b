package config

// Token limit error keywords the planner/reviewer loop treats as a
// transient-LLM-error signal worth retrying.
var TokenLimitErrorKeywords = []string{
	"context_length_exceeded",
	"maximum context length",
	"context window",
	"token limit",
	"too many tokens",
}

// Context levels in ascending scope, duplicated here as plain strings
// only for YAML/flag validation; the authoritative enum lives in
// internal/domain.
var ValidContextLevels = []string{"diff_only", "function", "file_context", "full_file"}

// Diff modes accepted by ReviewRequest.DiffMode / the CLI --diff-mode flag.
var ValidDiffModes = []string{"working", "staged", "pr", "commit", "auto"}

// Extra-request types the planner/fusion/scheduler recognize.
var ValidExtraRequestTypes = []string{"callers", "previous_version", "search", "search_config_usage"}
