// Package usage implements the per-call and per-session token
// accounting: a max-merge across streaming
// updates (providers re-announce cumulative or per-chunk deltas
// inconsistently), all-zero suppression, and a BPE token estimator
// (EstimateTokens).
package usage

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"pr-review-automation/internal/domain"
)

// Aggregator accumulates usage across the LLM calls of one session.
type Aggregator struct {
	mu      sync.Mutex
	perCall []domain.UsageRecord
	session domain.UsageRecord
}

// New returns an empty per-session Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Record folds in one LLM call's usage. Only non-zero records are
// kept; an all-zero record is treated as invalid and suppressed —
// some providers emit all-zero usage on streamed calls.
func (a *Aggregator) Record(rec domain.UsageRecord) {
	if !rec.NonZero() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.perCall = append(a.perCall, rec)
	a.session.PromptTokens += rec.PromptTokens
	a.session.CompletionTokens += rec.CompletionTokens
	a.session.TotalTokens += rec.TotalTokens
}

// MaxMerge folds multiple same-call streaming snapshots by taking the
// maximum of each field seen so far, since providers disagree on
// whether usage fields are cumulative or incremental.
func MaxMerge(existing, next domain.UsageRecord) domain.UsageRecord {
	merged := existing
	if next.PromptTokens > merged.PromptTokens {
		merged.PromptTokens = next.PromptTokens
	}
	if next.CompletionTokens > merged.CompletionTokens {
		merged.CompletionTokens = next.CompletionTokens
	}
	if next.TotalTokens > merged.TotalTokens {
		merged.TotalTokens = next.TotalTokens
	}
	if next.Stage != "" {
		merged.Stage = next.Stage
	}
	return merged
}

// PerCall returns a copy of every non-zero usage record recorded.
func (a *Aggregator) PerCall() []domain.UsageRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.UsageRecord, len(a.perCall))
	copy(out, a.perCall)
	return out
}

// Session returns the running session total.
func (a *Aggregator) Session() domain.UsageRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// charsPerToken is the fallback heuristic used when no tiktoken
// encoding can be resolved for a model name.
const charsPerToken = 3.5

var (
	encodingCache   = map[string]*tiktoken.Tiktoken{}
	encodingCacheMu sync.Mutex
)

// EstimateTokens returns a best-effort token count for text under the
// given model name, using a real BPE encoder when available and
// falling back to the char/3.5 heuristic otherwise.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return int(float64(len(text))/charsPerToken) + 1
}

func encodingFor(model string) *tiktoken.Tiktoken {
	key := strings.ToLower(model)
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()
	if enc, ok := encodingCache[key]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(key)
	if err != nil || enc == nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			encodingCache[key] = nil
			return nil
		}
	}
	encodingCache[key] = enc
	return enc
}
