// Package planner issues the streamed, single-call LLM request that
// upgrades or confirms the rule engine's per-unit context-level guess.
// It enforces a first-token and an idle-chunk watchdog, retries a
// bounded number of times on transient failure, and tolerantly
// extracts a JSON plan from whatever markdown-wrapped or partially
// truncated text the model actually returns.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"pr-review-automation/internal/config"
	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/eventbus"
	"pr-review-automation/internal/llmclient"
	"pr-review-automation/internal/streamproc"
	"pr-review-automation/internal/types"
	"pr-review-automation/internal/usage"
)

// Planner issues one streamed plan call per review session.
type Planner struct {
	client *llmclient.Client
	cfg    config.Config
	bus    *eventbus.Bus
}

// New builds a Planner from a shared LLM client, the loaded config, and
// the session's event bus (for planner_delta/warning events).
func New(client *llmclient.Client, cfg config.Config, bus *eventbus.Bus) *Planner {
	return &Planner{client: client, cfg: cfg, bus: bus}
}

var systemPrompt = `You plan how much surrounding code context a reviewer needs for each changed unit.
For every unit, respond with how much context is needed: "diff_only", "function", "file_context", or "full_file".
You may request extra context: "previous_version", "callers", "search", or "search_config_usage".
You may mark a unit "skip_review" if it is trivial (e.g. whitespace, comment-only, generated file) and does not need review.
Respond with ONLY a JSON array, one object per unit you have an opinion on:
[{"unit_id": "...", "context_level": "...", "extra_requests": [...], "skip_review": false, "reason": "..."}]
Omit units you have no opinion on; the rule engine's own guess will be used for those.`

// Plan runs the planner call (with retries) and returns the validated,
// clamped plan items plus the usage this call consumed. If every
// attempt fails it returns nil items and the last attempt's error; the
// kernel records that and falls through to the rule engine's
// suggestions alone.
func (p *Planner) Plan(ctx context.Context, idx *domain.ReviewIndex, intentContent string) ([]domain.ContextPlanItem, domain.UsageRecord, error) {
	knownIDs := make(map[string]bool, len(idx.Units))
	for _, u := range idx.Units {
		knownIDs[u.UnitID] = true
	}

	prompt, err := p.buildUserPrompt(idx, intentContent)
	if err != nil {
		return nil, domain.UsageRecord{}, fmt.Errorf("planner: build prompt: %w", err)
	}

	maxAttempts := p.cfg.Planner.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var sessionUsage domain.UsageRecord
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		msg, rec, err := p.runOnce(ctx, prompt)
		if rec.NonZero() {
			sessionUsage = usage.MaxMerge(sessionUsage, rec)
		}
		if err != nil {
			lastErr = err
			if p.bus != nil {
				p.bus.Warning("planner", fmt.Sprintf("attempt %d/%d failed: %v", attempt, maxAttempts, err))
			}
			if attempt < maxAttempts {
				select {
				case <-time.After(p.cfg.Planner.RetryDelay):
				case <-ctx.Done():
					return nil, sessionUsage, ctx.Err()
				}
			}
			continue
		}

		raw, ok := extractJSONArray(msg.Content)
		if !ok {
			lastErr = fmt.Errorf("planner: no JSON array found in response")
			if p.bus != nil {
				p.bus.Warning("planner", fmt.Sprintf("attempt %d/%d: %v", attempt, maxAttempts, lastErr))
			}
			if attempt < maxAttempts {
				select {
				case <-time.After(p.cfg.Planner.RetryDelay):
				case <-ctx.Done():
					return nil, sessionUsage, ctx.Err()
				}
			}
			continue
		}

		items, err := parsePlanItems(raw, knownIDs)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				continue
			}
			break
		}
		return items, sessionUsage, nil
	}

	return nil, sessionUsage, lastErr
}

// runOnce issues one streamed call guarded by the first-token and idle
// timeouts, returning the normalized message and its usage.
func (p *Planner) runOnce(ctx context.Context, userPrompt string) (streamproc.NormalizedMessage, domain.UsageRecord, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, streamErr := p.client.Stream(cctx, []llmclient.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, nil)

	watched := make(chan llmclient.StreamChunk)
	watchdogErrCh := make(chan error, 1)

	go p.watchdog(cctx, cancel, chunks, watched, watchdogErrCh)

	var sessionRec domain.UsageRecord
	msg := streamproc.Collect(watched, func(event map[string]interface{}) {
		if p.bus == nil {
			return
		}
		event["type"] = eventbus.TypePlannerDelta
		p.bus.Emit(event)
	})
	if msg.Usage != nil {
		sessionRec = domain.UsageRecord{
			Stage:            "planner",
			PromptTokens:     int(msg.Usage.PromptTokens),
			CompletionTokens: int(msg.Usage.CompletionTokens),
			TotalTokens:      int(msg.Usage.TotalTokens),
		}
	}

	if werr := <-watchdogErrCh; werr != nil {
		return msg, sessionRec, werr
	}
	if err := streamErr(); err != nil {
		return msg, sessionRec, err
	}
	return msg, sessionRec, nil
}

// watchdog forwards chunks from raw to watched, enforcing
// FirstTokenTimeout (extended once to ThinkingFirstToken if the model's
// first output is inside a <think> block) before any chunk arrives, and
// IdleTimeout between chunks thereafter. It cancels cctx and reports an
// error on timeout.
func (p *Planner) watchdog(cctx context.Context, cancel context.CancelFunc, raw <-chan llmclient.StreamChunk, watched chan<- llmclient.StreamChunk, errCh chan<- error) {
	defer close(watched)

	firstTokenTimeout := p.cfg.Planner.FirstTokenTimeout
	if firstTokenTimeout <= 0 {
		firstTokenTimeout = 20 * time.Second
	}
	idleTimeout := p.cfg.Planner.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Second
	}

	timer := time.NewTimer(firstTokenTimeout)
	defer timer.Stop()

	receivedFirst := false
	thinkingExtended := false

	for {
		select {
		case chunk, ok := <-raw:
			if !ok {
				errCh <- nil
				return
			}
			if !receivedFirst && strings.Contains(chunk.ContentDelta, "<think>") && !strings.Contains(chunk.ContentDelta, "</think>") && !thinkingExtended {
				thinkingExtended = true
				stopTimer(timer)
				timer.Reset(p.thinkingTimeout())
			} else {
				receivedFirst = true
				stopTimer(timer)
				timer.Reset(idleTimeout)
			}
			select {
			case watched <- chunk:
			case <-cctx.Done():
				errCh <- cctx.Err()
				return
			}
		case <-timer.C:
			cancel()
			if receivedFirst {
				errCh <- fmt.Errorf("planner: idle timeout after %s with no further output", idleTimeout)
			} else {
				errCh <- fmt.Errorf("planner: first-token timeout after %s with no output", firstTokenTimeout)
			}
			return
		case <-cctx.Done():
			errCh <- cctx.Err()
			return
		}
	}
}

func (p *Planner) thinkingTimeout() time.Duration {
	if p.cfg.Planner.ThinkingFirstToken > 0 {
		return p.cfg.Planner.ThinkingFirstToken
	}
	return 90 * time.Second
}

// stopTimer stops t, draining an already-fired channel so a later
// Reset doesn't race against a stale tick.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func (p *Planner) buildUserPrompt(idx *domain.ReviewIndex, intentContent string) (string, error) {
	light := idx.LightUnits()
	data, err := json.Marshal(light)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if intentContent != "" {
		b.WriteString("Project summary:\n")
		b.WriteString(intentContent)
		b.WriteString("\n\n")
	}
	b.WriteString("Units (no diff bodies, rule engine's own guess included per unit):\n")
	b.Write(data)
	return b.String(), nil
}

// extractJSONArray finds the first balanced top-level JSON array in
// text, tolerating markdown code fences and trailing prose. It tracks
// bracket depth while skipping over characters inside string literals
// so brackets embedded in a "reason" field never confuse the scan.
func extractJSONArray(text string) (string, bool) {
	text = types.CleanJSONFromMarkdown(text)

	start := strings.IndexByte(text, '[')
	if start == -1 {
		// Fall back to an object wrapper like {"units": [...]}, probed
		// tolerantly with gjson rather than re-scanning by hand.
		if arr := gjson.Get(text, "units"); arr.IsArray() {
			return arr.Raw, true
		}
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
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

type rawPlanItem struct {
	UnitID        string          `json:"unit_id"`
	ContextLevel  string          `json:"context_level"`
	ExtraRequests []string        `json:"extra_requests"`
	SkipReview    json.RawMessage `json:"skip_review"`
	Reason        string          `json:"reason"`
}

var validContextLevels = map[string]domain.ContextLevel{
	string(domain.ContextLevelDiffOnly):    domain.ContextLevelDiffOnly,
	string(domain.ContextLevelFunction):    domain.ContextLevelFunction,
	string(domain.ContextLevelFileContext): domain.ContextLevelFileContext,
	string(domain.ContextLevelFullFile):    domain.ContextLevelFullFile,
}

var validExtraRequests = map[string]domain.ExtraRequestType{
	string(domain.ExtraRequestPreviousVersion): domain.ExtraRequestPreviousVersion,
	string(domain.ExtraRequestCallers):         domain.ExtraRequestCallers,
	string(domain.ExtraRequestSearch):          domain.ExtraRequestSearch,
	string(domain.ExtraRequestSearchConfig):    domain.ExtraRequestSearchConfig,
}

// parsePlanItems unmarshals raw plan JSON, dropping items whose
// unit_id is missing, unknown, or a repeat of an earlier entry, and
// clamping every other field to the validated domain vocabulary.
func parsePlanItems(raw string, knownIDs map[string]bool) ([]domain.ContextPlanItem, error) {
	var rawItems []rawPlanItem
	if err := json.Unmarshal([]byte(raw), &rawItems); err != nil {
		return nil, fmt.Errorf("planner: unmarshal plan items: %w", err)
	}

	seen := map[string]bool{}
	out := make([]domain.ContextPlanItem, 0, len(rawItems))
	for _, r := range rawItems {
		if r.UnitID == "" || !knownIDs[r.UnitID] || seen[r.UnitID] {
			continue
		}
		seen[r.UnitID] = true

		// An unrecognized context_level is dropped, not defaulted:
		// substituting diff_only would make a malformed response
		// indistinguishable from a genuine diff_only opinion, which
		// fusion treats very differently from "planner had no opinion".
		level := validContextLevels[strings.ToLower(strings.TrimSpace(r.ContextLevel))]

		var extras []domain.ExtraRequestType
		for _, e := range r.ExtraRequests {
			if v, ok := validExtraRequests[strings.ToLower(strings.TrimSpace(e))]; ok {
				extras = append(extras, v)
			}
		}

		out = append(out, domain.ContextPlanItem{
			UnitID:          r.UnitID,
			LLMContextLevel: level,
			ExtraRequests:   extras,
			SkipReview:      coerceBool(r.SkipReview),
			Reason:          strings.TrimSpace(r.Reason),
		})
	}
	return out, nil
}

// coerceBool tolerates a JSON bool, a quoted "true"/"false" string, or
// an absent field (default false) — models occasionally quote booleans.
func coerceBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return v
		}
	}
	return false
}
