// Package domain defines the data model shared by every pipeline stage:
// ReviewUnit, ReviewIndex, the planner/fusion/scheduler projections of
// it, and the request/report types at the edges of the kernel.
package domain

import (
	"strconv"
	"time"
)

// Language is the enum of source languages the pipeline can reason
// about. Documentation extensions map to LanguageText; unrecognized
// extensions map to LanguageUnknown.
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageTypeScript Language = "ts"
	LanguageJavaScript Language = "js"
	LanguageJava       Language = "java"
	LanguageRuby       Language = "ruby"
	LanguageC          Language = "c"
	LanguageCPP        Language = "cpp"
	LanguageRust       Language = "rust"
	LanguageText       Language = "text"
	LanguageUnknown    Language = "unknown"
)

// ChangeType distinguishes additions from modifications. Pure
// deletions never produce a ReviewUnit.
type ChangeType string

const (
	ChangeTypeAdd    ChangeType = "add"
	ChangeTypeModify ChangeType = "modify"
)

// ContextLevel is the ordered scope vocabulary used by the rule engine,
// planner, fusion and scheduler. "unknown" is deliberately absent: the
// rule engine's contract is to never emit it.
type ContextLevel string

const (
	ContextLevelDiffOnly    ContextLevel = "diff_only"
	ContextLevelFunction    ContextLevel = "function"
	ContextLevelFileContext ContextLevel = "file_context"
	ContextLevelFullFile    ContextLevel = "full_file"
)

// String returns the canonical lowercase language tag used in rule
// notes ("<lang>:<rule-id>") and JSON payloads.
func (l Language) String() string {
	return string(l)
}

// Rank orders context levels by scope, used by fusion's "planner may
// only upgrade" rule.
func (c ContextLevel) Rank() int {
	switch c {
	case ContextLevelDiffOnly:
		return 0
	case ContextLevelFunction:
		return 1
	case ContextLevelFileContext:
		return 2
	case ContextLevelFullFile:
		return 3
	default:
		return 0
	}
}

// ExtraRequestType enumerates the scheduler's extra-context fetch kinds.
type ExtraRequestType string

const (
	ExtraRequestPreviousVersion ExtraRequestType = "previous_version"
	ExtraRequestCallers         ExtraRequestType = "callers"
	ExtraRequestSearch          ExtraRequestType = "search"
	ExtraRequestSearchConfig    ExtraRequestType = "search_config_usage"
)

// HunkRange is the four-corner coordinate of one unified-diff hunk.
type HunkRange struct {
	OldStart int `json:"old_start"`
	OldLines int `json:"old_lines"`
	NewStart int `json:"new_start"`
	NewLines int `json:"new_lines"`
}

// LineNumbers carries both the explicit per-line sets and their
// run-length-encoded "compact" form, e.g. "L10-12,L20".
type LineNumbers struct {
	New        []int  `json:"new"`
	Old        []int  `json:"old"`
	NewCompact string `json:"new_compact"`
	OldCompact string `json:"old_compact"`
}

// CodeSnippets holds the pre/post-image text around a unit's hunk.
type CodeSnippets struct {
	Before       string `json:"before"`
	After        string `json:"after"`
	Context      string `json:"context"`
	ContextStart int    `json:"context_start"`
	ContextEnd   int    `json:"context_end"`
}

// Symbol identifies the enclosing function/class/method a unit sits in.
type Symbol struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// UnitMetrics are cheap counts derived straight from the hunk.
type UnitMetrics struct {
	AddedLines      int  `json:"added_lines"`
	RemovedLines    int  `json:"removed_lines"`
	HunkCount       int  `json:"hunk_count"`
	InSingleFunction bool `json:"in_single_function"`
}

// AgentDecision is the rule engine's fallback structured suggestion,
// richer than the plain (level, confidence, notes) triple, used when a
// language handler wants to justify its pick with line-range detail.
type AgentDecision struct {
	ContextLevel ContextLevel `json:"context_level"`
	BeforeLines  int          `json:"before_lines"`
	AfterLines   int          `json:"after_lines"`
	Focus        string       `json:"focus"`
	Priority     string       `json:"priority"`
	Reason       string       `json:"reason"`
}

// ReviewUnit is the atom of review: one contiguous hunk within one file,
// plus every piece of metadata derived from it.
type ReviewUnit struct {
	UnitID     string     `json:"unit_id"`
	FilePath   string     `json:"file_path"`
	Language   Language   `json:"language"`
	ChangeType ChangeType `json:"change_type"`

	HunkRange   HunkRange    `json:"hunk_range"`
	LineNumbers LineNumbers  `json:"line_numbers"`

	UnifiedDiff         string `json:"unified_diff"`
	UnifiedDiffNumbered string `json:"unified_diff_with_lines"`

	CodeSnippets CodeSnippets `json:"code_snippets"`

	// Tags preserves first-occurrence insertion order, stable across
	// re-runs on the same input.
	Tags []string `json:"tags"`

	Symbol  *Symbol     `json:"symbol,omitempty"`
	Metrics UnitMetrics `json:"metrics"`

	RuleContextLevel ContextLevel `json:"rule_context_level"`
	RuleConfidence   float64      `json:"rule_confidence"`
	RuleNotes        string       `json:"rule_notes"`
	RuleExtraRequests []ExtraRequestType `json:"rule_extra_requests,omitempty"`
	AgentDecision    *AgentDecision     `json:"agent_decision,omitempty"`
}

// HasTag reports whether the unit already carries the given tag.
func (u *ReviewUnit) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends tag if not already present, preserving first-occurrence
// order.
func (u *ReviewUnit) AddTag(tag string) {
	if !u.HasTag(tag) {
		u.Tags = append(u.Tags, tag)
	}
}

// FileSummary aggregates per-file counts for the ReviewIndex.
type FileSummary struct {
	FilePath     string `json:"file_path"`
	Language     Language `json:"language"`
	UnitCount    int    `json:"unit_count"`
	AddedLines   int    `json:"added_lines"`
	RemovedLines int    `json:"removed_lines"`
}

// ReviewMetadata carries session identity and timing for the index.
type ReviewMetadata struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	DiffMode  string    `json:"diff_mode"`
}

// ReviewSummary is the aggregate change-volume view.
type ReviewSummary struct {
	ChangesByType map[ChangeType]int `json:"changes_by_type"`
	TotalLines    int                `json:"total_lines"`
	FilesChanged  int                `json:"files_changed"`
}

// ReviewIndex is the derived per-session document handed to the
// planner. Units holds the full units, diff bodies included;
// LightUnits() builds the diff-body-free payload sent to the planner.
type ReviewIndex struct {
	Metadata ReviewMetadata `json:"review_metadata"`
	Summary  ReviewSummary  `json:"summary"`
	Units    []*ReviewUnit  `json:"units"`
	Files    []FileSummary  `json:"files"`
}

// LightUnit is the diff-body-free projection of a ReviewUnit that the
// planner actually receives ("units only, no diff bodies").
type LightUnit struct {
	UnitID           string       `json:"unit_id"`
	FilePath         string       `json:"file_path"`
	Language         Language     `json:"language"`
	ChangeType       ChangeType   `json:"change_type"`
	LineRangeNew     string       `json:"line_range_new"`
	Tags             []string     `json:"tags"`
	Symbol           *Symbol      `json:"symbol,omitempty"`
	Metrics          UnitMetrics  `json:"metrics"`
	RuleContextLevel ContextLevel `json:"rule_context_level"`
	RuleConfidence   float64      `json:"rule_confidence"`
}

// LightUnits projects the index's units into their planner-facing form.
func (idx *ReviewIndex) LightUnits() []LightUnit {
	out := make([]LightUnit, 0, len(idx.Units))
	for _, u := range idx.Units {
		out = append(out, LightUnit{
			UnitID:           u.UnitID,
			FilePath:         u.FilePath,
			Language:         u.Language,
			ChangeType:       u.ChangeType,
			LineRangeNew:     u.LineNumbers.NewCompact,
			Tags:             u.Tags,
			Symbol:           u.Symbol,
			Metrics:          u.Metrics,
			RuleContextLevel: u.RuleContextLevel,
			RuleConfidence:   u.RuleConfidence,
		})
	}
	return out
}

// UnitByID returns the unit with the given id, or nil.
func (idx *ReviewIndex) UnitByID(id string) *ReviewUnit {
	for _, u := range idx.Units {
		if u.UnitID == id {
			return u
		}
	}
	return nil
}

// ContextPlanItem is the planner/fusion output per unit.
type ContextPlanItem struct {
	UnitID           string             `json:"unit_id"`
	LLMContextLevel  ContextLevel       `json:"llm_context_level,omitempty"`
	ExtraRequests    []ExtraRequestType `json:"extra_requests,omitempty"`
	SkipReview       bool               `json:"skip_review"`
	Reason           string             `json:"reason,omitempty"`
	FinalContextLevel ContextLevel      `json:"final_context_level,omitempty"`
}

// CallerHit is one search/caller result enriched with a small snippet.
type CallerHit struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Snippet  string `json:"snippet"`
}

// BundleMeta is the location/descriptive header of a bundle entry.
type BundleMeta struct {
	FilePath    string    `json:"file_path"`
	Tags        []string  `json:"tags"`
	HunkRange   HunkRange `json:"hunk_range"`
	LineNumbers LineNumbers `json:"line_numbers"`
	Location    string    `json:"location"`
}

// ContextBundleEntry is the scheduler's per-unit payload to the reviewer.
//
type ContextBundleEntry struct {
	UnitID            string             `json:"unit_id"`
	Meta              BundleMeta         `json:"meta"`
	FinalContextLevel ContextLevel       `json:"final_context_level"`
	ExtraRequests     []ExtraRequestType `json:"extra_requests,omitempty"`
	Diff              string             `json:"diff"`
	FunctionContext   *string            `json:"function_context,omitempty"`
	FileContext       *string            `json:"file_context,omitempty"`
	FullFile          *string            `json:"full_file,omitempty"`
	PreviousVersion   *string            `json:"previous_version,omitempty"`
	Callers           []CallerHit        `json:"callers,omitempty"`
}

// IntentCache is the persisted one-paragraph project summary.
type IntentCache struct {
	ProjectName string    `json:"project_name"`
	ProjectRoot string    `json:"project_root"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Source      string    `json:"source"` // "agent" | "manual"
}

// Empty reports whether the cache carries no usable content.
func (c *IntentCache) Empty() bool {
	return c == nil || c.Content == ""
}

// DiffMode selects how the working diff is obtained.
type DiffMode string

const (
	DiffModeWorking DiffMode = "working"
	DiffModeStaged  DiffMode = "staged"
	DiffModePR      DiffMode = "pr"
	DiffModeCommit  DiffMode = "commit"
	DiffModeAuto    DiffMode = "auto"
)

// AgentKind enumerates the optional per-session agent toggles.
type AgentKind string

const (
	AgentIntent   AgentKind = "intent"
	AgentPlanner  AgentKind = "planner"
	AgentReviewer AgentKind = "reviewer"
)

// ToolApprover is supplied by the caller to approve a subset of pending
// tool calls for one LLM turn.
type ToolApprover func(ctx ToolApprovalContext) []string

// ToolApprovalContext carries the pending calls offered for approval.
type ToolApprovalContext struct {
	PendingToolCalls []ToolCall
}

// ToolCall is one normalized tool invocation request from the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Index     int                    `json:"index"`
	Arguments map[string]interface{} `json:"arguments"`
}

// StreamCallback receives every event the kernel emits.
type StreamCallback func(event map[string]interface{})

// ReviewRequest is the upstream input to the kernel.
type ReviewRequest struct {
	Prompt              string
	LLMPreference       string
	PlannerLLMPreference string
	ToolNames           []string
	AutoApprove         bool
	ProjectRoot         string
	SessionID           string
	DiffMode            DiffMode
	CommitFrom          string
	CommitTo            string
	MessageHistory      []ConversationMessage
	Agents              []AgentKind
	EnableStaticScan    bool
	StreamCallback      StreamCallback
	ToolApprover        ToolApprover
}

// ConversationMessage is one role/content turn of prior history the
// caller may seed the reviewer with.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReviewComment is one finding in the final report.
type ReviewComment struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Comment  string `json:"comment"`
}

// Comment severities.
const (
	CommentSeverityInfo     = "info"
	CommentSeverityMinor    = "minor"
	CommentSeverityMajor    = "major"
	CommentSeverityCritical = "critical"
)

// Fingerprint is a stable dedup key for a comment, built from its
// file, line and severity.
func (c ReviewComment) Fingerprint() string {
	return c.File + ":" + strconv.Itoa(c.Line) + ":" + c.Severity
}

// ReviewReport is the final structured output of a review session.
type ReviewReport struct {
	Comments []ReviewComment `json:"comments"`
	Score    int             `json:"score"`
	Summary  string          `json:"summary"`
	Model    string          `json:"model"`
	Title    string          `json:"title,omitempty"`
}

// UsageRecord is one LLM call's token accounting.
type UsageRecord struct {
	Stage            string `json:"usage_stage"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// NonZero reports whether the record carries any real accounting.
func (u UsageRecord) NonZero() bool {
	return u.PromptTokens != 0 || u.CompletionTokens != 0 || u.TotalTokens != 0
}

// FallbackEvent is one degraded-path record.
type FallbackEvent struct {
	Key     string                 `json:"key"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
	At      time.Time              `json:"at"`
}
