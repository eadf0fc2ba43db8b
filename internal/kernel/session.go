// Package kernel implements the orchestration kernel: it
// wires the Diff Collector, Rule Engine, Intent Agent, Planner Agent,
// Fusion, Context Scheduler and Review Agent Loop into one
// cancellable, streaming, event-emitting review session.
package kernel

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pr-review-automation/internal/config"
	"pr-review-automation/internal/contextsched"
	"pr-review-automation/internal/diffcollect"
	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/eventbus"
	"pr-review-automation/internal/fallback"
	"pr-review-automation/internal/fusion"
	"pr-review-automation/internal/gitio"
	"pr-review-automation/internal/intent"
	"pr-review-automation/internal/llmclient"
	"pr-review-automation/internal/logging"
	"pr-review-automation/internal/metrics"
	"pr-review-automation/internal/planner"
	"pr-review-automation/internal/reviewagent"
	"pr-review-automation/internal/rules"
	"pr-review-automation/internal/staticscan"
	"pr-review-automation/internal/toolruntime"
	"pr-review-automation/internal/usage"
)

// Kernel owns one process's configuration and hands out sessions. It
// carries no per-session state itself: usage, fallback, and the
// intent cache are not shared across sessions here — each Run
// call is one review, one trace, per the "one review = one
// trace" non-goal of multi-tenancy.
type Kernel struct {
	cfg    *config.Config
	models config.ModelsCatalog
}

// New builds a Kernel from loaded configuration.
func New(cfg *config.Config) *Kernel {
	return &Kernel{cfg: cfg, models: config.LoadModelsCatalog()}
}

// Run executes one full review session: Diff → Rules → Intent (cached)
// → Planner → Fusion → ContextBundle → Reviewer, emitting progress to
// req.StreamCallback throughout, and returns the final report.
func (k *Kernel) Run(ctx context.Context, req domain.ReviewRequest) (domain.ReviewReport, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.ReviewReport{}, errors.New("kernel: prompt must not be empty")
	}
	if req.ProjectRoot == "" {
		return domain.ReviewReport{}, errors.New("kernel: project_root is required")
	}

	traceID := req.SessionID
	if traceID == "" {
		traceID = newTraceID()
	}

	bus := eventbus.New(eventbus.Subscriber(req.StreamCallback))
	fb := fallback.New()
	usageAgg := usage.New()

	sessLog, err := logging.NewSessionLogger(k.cfg, traceID)
	if err != nil {
		return domain.ReviewReport{}, fmt.Errorf("kernel: start session log: %w", err)
	}

	result, runErr := k.run(ctx, req, traceID, bus, fb, usageAgg, sessLog)

	cancelled := errors.Is(runErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
	if runErr != nil {
		bus.Error("session", runErr.Error(), cancelled)
		metrics.ReviewSessionsTotal.WithLabelValues(outcomeLabel(cancelled)).Inc()
	} else {
		metrics.ReviewSessionsTotal.WithLabelValues("success").Inc()
	}

	summary := fb.Summary()
	summary["session_usage"] = usageAgg.Session()
	bus.Emit(map[string]interface{}{"type": "session_end", "trace_id": traceID, "summary": summary})
	sessLog.AppendHuman("Session end", fmt.Sprintf("trace_id=%s cancelled=%v error=%v", traceID, cancelled, runErr))

	return result, runErr
}

func outcomeLabel(cancelled bool) string {
	if cancelled {
		return "cancelled"
	}
	return "error"
}

func newTraceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("trace-%d", time.Now().UnixNano())
	}
	return "trace-" + hex.EncodeToString(b[:])
}

func (k *Kernel) run(ctx context.Context, req domain.ReviewRequest, traceID string, bus *eventbus.Bus, fb *fallback.Tracker, usageAgg *usage.Aggregator, sessLog *logging.SessionLogger) (domain.ReviewReport, error) {
	repo := gitio.New(req.ProjectRoot)
	if err := repo.EnsureRepository(ctx); err != nil {
		return domain.ReviewReport{}, fmt.Errorf("kernel: not a git repository: %w", err)
	}
	repo.Timeout = k.cfg.Git.CommandTimeout

	// Background static scan: detached from the main pipeline.
	// It shares ctx directly (no independent cancel) so it
	// is cancelled at the very same instant as every other suspension
	// point when the caller cancels — there is no ordering to enforce
	// beyond that shared signal.
	if req.EnableStaticScan && len(k.cfg.Scanners) > 0 {
		scanners := make([]staticscan.Scanner, len(k.cfg.Scanners))
		for i, s := range k.cfg.Scanners {
			scanners[i] = staticscan.Scanner{Name: s.Name, Argv: s.Command, Timeout: s.Timeout}
		}
		go staticscan.Run(ctx, scanners, req.ProjectRoot, bus, fb)
	}

	// --- Stage: Diff Collection ---
	bus.StageStart("diff")
	diffText, mode, err := repo.ResolveDiff(ctx, string(req.DiffMode), req.CommitFrom, req.CommitTo, k.cfg.Diff.BaseBranch)
	if err != nil {
		bus.StageEnd("diff", map[string]interface{}{"error": err.Error()})
		return domain.ReviewReport{}, fmt.Errorf("kernel: resolve diff: %w", err)
	}
	idx, err := diffcollect.BuildReviewIndex(diffcollect.Options{
		SessionID:  traceID,
		DiffMode:   mode,
		DiffText:   diffText,
		Fallback:   fb,
		MergeGap:   k.cfg.Diff.MergeGap,
		ClusterGap: k.cfg.Diff.ClusterGap,
		ReadFile: func(path string) (string, bool) {
			return diffcollect.ReadFileLenient(req.ProjectRoot, path)
		},
	})
	if err != nil {
		bus.StageEnd("diff", map[string]interface{}{"error": err.Error()})
		return domain.ReviewReport{}, fmt.Errorf("kernel: build review index: %w", err)
	}
	for _, u := range idx.Units {
		metrics.ReviewUnitsTotal.WithLabelValues(u.Language.String()).Inc()
	}
	bus.Emit(map[string]interface{}{"type": eventbus.TypeDiffUnitsSnapshot, "diff_files": idx.Files, "diff_units": idx.Units})
	sessLog.LogPipeline("diff", map[string]interface{}{"unit_count": len(idx.Units), "files": len(idx.Files)})
	bus.StageEnd("diff", map[string]interface{}{"unit_count": len(idx.Units), "files_changed": len(idx.Files)})

	if len(idx.Units) == 0 {
		return domain.ReviewReport{Summary: "no reviewable changes found", Model: ""}, nil
	}

	// --- Stage: Rule Engine ---
	bus.StageStart("rules")
	engine := rules.NewEngine()
	for _, u := range idx.Units {
		engine.Apply(u)
	}
	bus.StageEnd("rules", map[string]interface{}{"unit_count": len(idx.Units)})

	// --- Stage: Intent Agent ---
	bus.StageStart("intent")
	var intentContent string
	if wantsAgent(req.Agents, domain.AgentIntent) {
		intentClient := llmclient.New(k.cfg, k.modelFor(req.LLMPreference, k.cfg.Intent.Model))
		intentAgent := intent.New(intentClient, k.cfg.DataDir, req.ProjectRoot)
		cache, ierr := intentAgent.Ensure(ctx, func(delta string) {
			bus.Emit(map[string]interface{}{"type": eventbus.TypeIntentDelta, "content_delta": delta})
		})
		if ierr != nil {
			fb.Record("intent_failed", ierr.Error(), nil)
			bus.Warning("intent", ierr.Error())
		} else {
			intentContent = cache.Content
		}
	}
	bus.StageEnd("intent", map[string]interface{}{"cached": intentContent != ""})

	// --- Stage: Planner Agent ---
	bus.StageStart("planner")
	var plannerItems []domain.ContextPlanItem
	if wantsAgent(req.Agents, domain.AgentPlanner) {
		plannerClient := llmclient.New(k.cfg, k.modelFor(req.PlannerLLMPreference, k.cfg.Planner.Model))
		pl := planner.New(plannerClient, *k.cfg, bus)
		items, rec, perr := pl.Plan(ctx, idx, intentContent)
		if perr != nil {
			fb.Record("planner_failed", perr.Error(), nil)
			bus.Warning("planner", perr.Error())
		}
		plannerItems = items
		if rec.NonZero() {
			usageAgg.Record(rec)
			bus.Emit(map[string]interface{}{"type": eventbus.TypeUsageSummary, "usage_stage": "planner", "usage": rec, "call_usage": rec, "session_usage": usageAgg.Session()})
		}
	}
	bus.StageEnd("planner", map[string]interface{}{"plan_items": len(plannerItems)})

	// --- Stage: Fusion (pure) ---
	fused := fusion.FuseAll(idx.Units, plannerItems)
	deepPlan := make([]domain.ContextPlanItem, 0, len(fused))
	skipped := 0
	for _, item := range fused {
		if item.SkipReview {
			skipped++
			continue
		}
		deepPlan = append(deepPlan, item)
	}

	// --- Stage: Context Scheduler ---
	bus.StageStart("context")
	sched := contextsched.New(req.ProjectRoot, *k.cfg, repo, fb)
	bundle := sched.Build(ctx, idx.Units, deepPlan)
	for _, entry := range bundle {
		bus.Emit(map[string]interface{}{
			"type":                eventbus.TypeBundleItem,
			"unit_id":             entry.UnitID,
			"final_context_level": entry.FinalContextLevel,
			"location":            entry.Meta.Location,
		})
	}
	bus.StageEnd("context", map[string]interface{}{"bundle_count": len(bundle), "skipped_units": skipped})

	if ctx.Err() != nil {
		return domain.ReviewReport{}, ctx.Err()
	}

	// --- Stage: Review Agent Loop ---
	bus.StageStart("review")
	report := domain.ReviewReport{Summary: "review skipped: reviewer agent not requested"}
	if wantsAgent(req.Agents, domain.AgentReviewer) {
		reviewClient := llmclient.New(k.cfg, k.modelFor(req.LLMPreference, k.cfg.Reviewer.Model))
		registry := toolruntime.NewRegistry()
		toolruntime.RegisterBuiltins(registry, req.ProjectRoot)

		loop := reviewagent.New(reviewClient, registry, bus, usageAgg, *k.cfg)
		userMessage := buildReviewerMessage(req.Prompt, intentContent, idx, bundle)
		specs := filterToolSpecs(builtinToolSpecs, req.ToolNames)

		var autoApprove []string
		if req.AutoApprove {
			for _, t := range specs {
				autoApprove = append(autoApprove, t.Name)
			}
		}

		res, rerr := loop.Run(ctx, reviewerSystemPrompt, userMessage, req.MessageHistory, specs, autoApprove, req.ToolApprover)
		if rerr != nil {
			bus.StageEnd("review", map[string]interface{}{"error": rerr.Error()})
			return domain.ReviewReport{}, fmt.Errorf("kernel: review: %w", rerr)
		}
		report = parseReport(res.Content, res.Title, reviewClient.Model())
		sessLog.AppendHuman("Review report", res.Content)
	}
	bus.StageEnd("review", map[string]interface{}{"score": report.Score})

	return report, nil
}

// wantsAgent reports whether kind should run: an empty Agents slice
// means "run every agent" (the default).
func wantsAgent(agents []domain.AgentKind, kind domain.AgentKind) bool {
	if len(agents) == 0 {
		return true
	}
	for _, a := range agents {
		if a == kind {
			return true
		}
	}
	return false
}

// resolveModel implements the llm_preference grammar: "auto"
// or empty defers to fallback, "<provider>:<model>" takes the model
// suffix, a bare "<provider>" defers to fallback (the kernel's
// modelFor layers the models_config.json catalogue on top of this for
// bare-provider lookups).
func resolveModel(pref, fallbackModel string) string {
	if pref == "" || pref == "auto" {
		return fallbackModel
	}
	if idx := strings.LastIndex(pref, ":"); idx >= 0 && idx+1 < len(pref) {
		return pref[idx+1:]
	}
	return fallbackModel
}

// modelFor resolves a preference against the merged models catalogue:
// a bare "<provider>" picks that provider's first listed model, every
// other form falls through to resolveModel.
func (k *Kernel) modelFor(pref, fallbackModel string) string {
	if pref != "" && pref != "auto" && !strings.Contains(pref, ":") {
		if m, ok := k.models.FirstModel(pref); ok {
			return m
		}
	}
	return resolveModel(pref, fallbackModel)
}

const reviewerSystemPrompt = `You are an expert code reviewer. You receive a project intent summary, a metadata index of changed review units, and a context bundle of diffs and surrounding source. You may call tools to fetch additional file content, search the project, or inspect dependencies before answering.

Produce a final Markdown code review report with a short top-level heading that names the change (not a generic title like "Code Review Report"), followed by a concise summary and any findings organized by file and line. Be specific about file paths and line numbers. When you have nothing more to investigate, stop calling tools and write the final report.`

func buildReviewerMessage(prompt, intentContent string, idx *domain.ReviewIndex, bundle []domain.ContextBundleEntry) string {
	var b strings.Builder
	b.WriteString("## Review request\n\n")
	b.WriteString(prompt)
	b.WriteString("\n\n")
	if intentContent != "" {
		b.WriteString("## Project intent\n\n")
		b.WriteString(intentContent)
		b.WriteString("\n\n")
	}
	b.WriteString("## Review index\n\n")
	if idxJSON, err := json.Marshal(idx); err == nil {
		b.Write(idxJSON)
	}
	b.WriteString("\n\n## Context bundle\n\n")
	if bundleJSON, err := json.Marshal(bundle); err == nil {
		b.Write(bundleJSON)
	}
	return b.String()
}

// parseReport wraps the reviewer's final Markdown content into a
// ReviewReport; a best-effort JSON object embedded in the content (the
// model may choose to emit one) is merged in for structured comments.
func parseReport(content, title, model string) domain.ReviewReport {
	report := domain.ReviewReport{Summary: content, Model: model, Title: title}
	if obj, ok := extractJSONObject(content); ok {
		var parsed struct {
			Comments []domain.ReviewComment `json:"comments"`
			Score    int                    `json:"score"`
			Summary  string                 `json:"summary"`
		}
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil {
			if len(parsed.Comments) > 0 {
				report.Comments = parsed.Comments
			}
			if parsed.Score != 0 {
				report.Score = parsed.Score
			}
			if parsed.Summary != "" {
				report.Summary = parsed.Summary
			}
		}
	}
	return report
}

// extractJSONObject finds the first balanced {...} span in text,
// respecting quoted strings and escapes, mirroring the planner's
// markdown/brace tolerant extraction (internal/planner.extractJSONArray)
// but for a top-level object instead of an array.
func extractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
