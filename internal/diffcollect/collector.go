package diffcollect

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/fallback"
)

// FileReader resolves a file path (relative to the session's project
// root) to its current text content. The kernel supplies the working
// tree by default; session modes that review a historical commit
// supply a reader backed by `git show`.
type FileReader func(path string) (content string, ok bool)

// Options configures one collection pass.
type Options struct {
	SessionID  string
	DiffMode   string
	DiffText   string
	ReadFile   FileReader
	Fallback   *fallback.Tracker
	MergeGap   int // default 20 "Hunk merging"
	ClusterGap int // default 10 "Smart context expansion"
}

var unitSeq uint64

func nextUnitID(session string) string {
	n := atomic.AddUint64(&unitSeq, 1)
	return fmt.Sprintf("%s-u%06d", session, n)
}

// BuildReviewIndex parses opts.DiffText and constructs the full
// ReviewIndex: one ReviewUnit per (possibly merged) hunk, tagged and
// context-expanded
func BuildReviewIndex(opts Options) (*domain.ReviewIndex, error) {
	if opts.MergeGap <= 0 {
		opts.MergeGap = 20
	}
	if opts.ClusterGap <= 0 {
		opts.ClusterGap = 10
	}
	if opts.Fallback == nil {
		opts.Fallback = fallback.New()
	}

	files, err := ParseUnifiedDiff(opts.DiffText)
	if err != nil {
		return nil, err
	}

	idx := &domain.ReviewIndex{
		Metadata: domain.ReviewMetadata{
			SessionID: opts.SessionID,
			CreatedAt: time.Now(),
			DiffMode:  opts.DiffMode,
		},
		Summary: domain.ReviewSummary{ChangesByType: map[domain.ChangeType]int{}},
	}

	for _, fd := range files {
		if fd.IsDeleted {
			continue // pure deletions never produce a unit
		}
		if fd.IsBinary {
			opts.Fallback.Record("binary_file_skip", "skipped binary file diff", map[string]interface{}{"file": fd.NewPath})
			continue
		}
		units := collectFileUnits(fd, opts)
		if len(units) == 0 {
			continue
		}
		idx.Units = append(idx.Units, units...)

		added, removed := 0, 0
		for _, u := range units {
			added += u.Metrics.AddedLines
			removed += u.Metrics.RemovedLines
		}
		idx.Files = append(idx.Files, domain.FileSummary{
			FilePath:     fd.NewPath,
			Language:     DetectLanguage(fd.NewPath),
			UnitCount:    len(units),
			AddedLines:   added,
			RemovedLines: removed,
		})
	}

	for _, u := range idx.Units {
		idx.Summary.ChangesByType[u.ChangeType]++
		idx.Summary.TotalLines += u.Metrics.AddedLines + u.Metrics.RemovedLines
	}
	idx.Summary.FilesChanged = len(idx.Files)

	return idx, nil
}

func collectFileUnits(fd FileDiff, opts Options) []*domain.ReviewUnit {
	lang := DetectLanguage(fd.NewPath)
	var content string
	var hasContent bool
	if opts.ReadFile != nil {
		content, hasContent = opts.ReadFile(fd.NewPath)
	}
	if !hasContent {
		opts.Fallback.Record("file_unreadable", "could not read post-image content, context will be empty", map[string]interface{}{"file": fd.NewPath})
	}
	var lines []string
	if hasContent {
		lines = strings.Split(content, "\n")
	}

	changeType := domain.ChangeTypeModify
	if fd.IsNew {
		changeType = domain.ChangeTypeAdd
	}

	raw := make([]*domain.ReviewUnit, 0, len(fd.Hunks))
	for _, h := range fd.Hunks {
		if h.NewLines == 0 && h.OldLines == 0 {
			continue // malformed hunk: produces no unit "Failure semantics"
		}
		u := buildUnit(opts.SessionID, fd, h, lang, lines, changeType, opts)
		raw = append(raw, u)
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].HunkRange.NewStart < raw[j].HunkRange.NewStart })
	return mergeUnits(raw, lines, opts)
}

func buildUnit(session string, fd FileDiff, h Hunk, lang domain.Language, lines []string, changeType domain.ChangeType, opts Options) *domain.ReviewUnit {
	u := &domain.ReviewUnit{
		UnitID:     nextUnitID(session),
		FilePath:   fd.NewPath,
		Language:   lang,
		ChangeType: changeType,
		HunkRange: domain.HunkRange{
			OldStart: h.OldStart, OldLines: h.OldLines,
			NewStart: h.NewStart, NewLines: h.NewLines,
		},
		LineNumbers: h.LineNumbers(),
	}

	added, removed, hunkCount := 0, 0, 1
	for _, l := range h.Lines {
		if len(l) == 0 {
			continue
		}
		switch l[0] {
		case '+':
			added++
		case '-':
			removed++
		}
	}

	if IsDocFile(fd.NewPath) {
		u.UnifiedDiff = truncateLines(h.UnifiedDiff(), 60)
		u.UnifiedDiffNumbered = truncateLines(h.UnifiedDiffNumbered(), 60)
		u.AddTag("doc_file")
	} else {
		u.UnifiedDiff = h.UnifiedDiff()
		u.UnifiedDiffNumbered = h.UnifiedDiffNumbered()
	}

	for _, t := range InferPathTags(fd.NewPath) {
		u.AddTag(t)
	}
	for _, t := range InferContentTags(changedBodyLines(h.Lines)) {
		u.AddTag(t)
	}

	if maxGap(u.LineNumbers.New) <= opts.ClusterGap && len(u.LineNumbers.New) > 1 {
		u.AddTag("clustered_changes")
	}

	sym := detectSymbol(lang, lines, h.NewStart, h.NewStart+h.NewLines-1)
	u.Symbol = sym
	inFunc := sym != nil && sym.Kind == "function"
	addTagIf(u, inFunc, "in_single_function")
	if sym != nil {
		complete := h.NewStart <= sym.StartLine && h.NewStart+h.NewLines-1 >= sym.EndLine
		if complete && sym.Kind == "function" {
			u.AddTag("complete_function")
		}
		if complete && sym.Kind == "class" {
			u.AddTag("complete_class")
		}
	}

	contextMax := 50
	if IsDocFile(fd.NewPath) {
		contextMax = 50
	}
	snippet, start, end := expandContext(lines, h.NewStart, h.NewLines, sym, opts.ClusterGap, contextMax)
	before, after := h.BeforeAfter()
	u.CodeSnippets = domain.CodeSnippets{
		Before:       before,
		After:        after,
		Context:      snippet,
		ContextStart: start,
		ContextEnd:   end,
	}

	u.Metrics = domain.UnitMetrics{
		AddedLines:       added,
		RemovedLines:     removed,
		HunkCount:        hunkCount,
		InSingleFunction: inFunc,
	}
	return u
}

// addTagIf is a small conditional-tag helper kept local to this
// package rather than on domain.ReviewUnit itself.
func addTagIf(u *domain.ReviewUnit, cond bool, tag string) {
	if cond {
		u.AddTag(tag)
	}
}

func detectSymbol(lang domain.Language, lines []string, startLine, endLine int) *domain.Symbol {
	if len(lines) == 0 {
		return nil
	}
	if lang == domain.LanguageGo {
		if sym := findGoSymbol(strings.Join(lines, "\n"), startLine, endLine); sym != nil {
			return sym
		}
	}
	return findGenericSymbol(lang, lines, startLine, endLine)
}

// DetectSymbol is the exported form of detectSymbol, reused by
// internal/contextsched to find the enclosing function/class for a
// hunk when assembling "function" level context (the innermost one for
// Go, the outermost regex-matched block for other languages).
func DetectSymbol(lang domain.Language, lines []string, startLine, endLine int) *domain.Symbol {
	return detectSymbol(lang, lines, startLine, endLine)
}

// expandContext implements smart context expansion: a function or
// class symbol, or any symbol shorter than 15 lines, expands to cover
// the whole symbol; a longer symbol of another kind keeps just the
// hunk's own lines; with no symbol, a window of ±3 lines (hunks of at
// most clusterGap lines) or ±10 lines is taken around the hunk.
func expandContext(lines []string, newStart, newLines int, sym *domain.Symbol, clusterGap, windowMax int) (string, int, int) {
	if len(lines) == 0 {
		return "", 0, 0
	}
	hunkEnd := newStart + newLines - 1
	if newLines <= 0 {
		hunkEnd = newStart
	}

	start, end := newStart, hunkEnd
	if sym != nil {
		span := sym.EndLine - sym.StartLine + 1
		highImportance := sym.Kind == "function" || sym.Kind == "class"
		if (highImportance) || span < 15 {
			start, end = sym.StartLine, sym.EndLine
		}
	} else {
		// Clustered-changes heuristic: only meaningfully differs from the
		// plain window when there is more than one change run, which the
		// caller's hunk-level view doesn't carry separately; approximate
		// with a slightly wider window when the hunk itself is small.
		if newLines > 0 && newLines <= clusterGap {
			start = max(1, newStart-3)
			end = hunkEnd + 3
		} else {
			start = max(1, newStart-10)
			end = hunkEnd + 10
		}
	}

	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if end < start {
		end = start
	}
	snippetLines := lines[start-1 : min(end, len(lines))]
	snippet := strings.Join(snippetLines, "\n")
	if windowMax > 0 {
		snippet = truncateLines(snippet, windowMax)
	}
	return snippet, start, end
}

func maxGap(nums []int) int {
	if len(nums) < 2 {
		return 0
	}
	sorted := dedupSorted(nums)
	gap := 0
	for i := 1; i < len(sorted); i++ {
		if d := sorted[i] - sorted[i-1]; d > gap {
			gap = d
		}
	}
	return gap
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func truncateLines(s string, max int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	return strings.Join(lines[:max], "\n")
}

// mergeUnits merges consecutive units (ordered by new_start) whose gap
// is <= opts.MergeGap lines into one super-unit
// "Hunk merging".
func mergeUnits(units []*domain.ReviewUnit, lines []string, opts Options) []*domain.ReviewUnit {
	if len(units) <= 1 {
		return units
	}
	var out []*domain.ReviewUnit
	cur := units[0]
	for _, next := range units[1:] {
		gap := next.HunkRange.NewStart - (cur.HunkRange.NewStart + cur.HunkRange.NewLines - 1)
		if gap <= opts.MergeGap {
			cur = mergeTwo(cur, next, lines, opts)
		} else {
			out = append(out, cur)
			cur = next
		}
	}
	out = append(out, cur)
	return out
}

func mergeTwo(a, b *domain.ReviewUnit, lines []string, opts Options) *domain.ReviewUnit {
	merged := &domain.ReviewUnit{
		UnitID:     nextUnitID(opts.SessionID),
		FilePath:   a.FilePath,
		Language:   a.Language,
		ChangeType: a.ChangeType,
		HunkRange: domain.HunkRange{
			OldStart: min(a.HunkRange.OldStart, b.HunkRange.OldStart),
			NewStart: min(a.HunkRange.NewStart, b.HunkRange.NewStart),
			OldLines: (b.HunkRange.OldStart + b.HunkRange.OldLines) - min(a.HunkRange.OldStart, b.HunkRange.OldStart),
			NewLines: (b.HunkRange.NewStart + b.HunkRange.NewLines) - min(a.HunkRange.NewStart, b.HunkRange.NewStart),
		},
		UnifiedDiff:         a.UnifiedDiff + "\n…\n" + b.UnifiedDiff,
		UnifiedDiffNumbered: a.UnifiedDiffNumbered + "\n…\n" + b.UnifiedDiffNumbered,
	}
	merged.LineNumbers = domain.LineNumbers{
		New:        append(append([]int{}, a.LineNumbers.New...), b.LineNumbers.New...),
		Old:        append(append([]int{}, a.LineNumbers.Old...), b.LineNumbers.Old...),
	}
	merged.LineNumbers.NewCompact = CompactRanges(merged.LineNumbers.New)
	merged.LineNumbers.OldCompact = CompactRanges(merged.LineNumbers.Old)

	for _, t := range a.Tags {
		merged.AddTag(t)
	}
	for _, t := range b.Tags {
		merged.AddTag(t)
	}
	merged.AddTag("merged_block")

	sym := detectSymbol(a.Language, lines, merged.HunkRange.NewStart, merged.HunkRange.NewStart+merged.HunkRange.NewLines-1)
	merged.Symbol = sym
	snippet, start, end := expandContext(lines, merged.HunkRange.NewStart, merged.HunkRange.NewLines, sym, opts.ClusterGap, 80)
	merged.CodeSnippets = domain.CodeSnippets{
		Before:       a.CodeSnippets.Before + "\n…\n" + b.CodeSnippets.Before,
		After:        a.CodeSnippets.After + "\n…\n" + b.CodeSnippets.After,
		Context:      snippet,
		ContextStart: start,
		ContextEnd:   end,
	}

	merged.Metrics = domain.UnitMetrics{
		AddedLines:   a.Metrics.AddedLines + b.Metrics.AddedLines,
		RemovedLines: a.Metrics.RemovedLines + b.Metrics.RemovedLines,
		HunkCount:    a.Metrics.HunkCount + b.Metrics.HunkCount,
	}
	return merged
}
