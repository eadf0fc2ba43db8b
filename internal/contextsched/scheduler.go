// Package contextsched implements the Context Scheduler:
// it turns a fused plan into a ContextBundle by actually reading the
// tree — function/file/full-file slicing, git-show previous versions,
// ripgrep caller/search hits — all under a per-field character budget.
package contextsched

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"pr-review-automation/internal/config"
	"pr-review-automation/internal/diffcollect"
	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/fallback"
)

// Scheduler assembles ContextBundleEntry values for a fused plan. It
// caches file reads for the lifetime of one session to avoid
// redundant I/O across units in the same file.
type Scheduler struct {
	projectRoot string
	cfg         config.Config
	repo        gitShower
	fb          *fallback.Tracker

	mu        sync.Mutex
	fileCache map[string][]string // path -> lines, nil entry means unreadable

	group singleflight.Group
}

// gitShower is the subset of gitio.Repo the scheduler needs, narrowed
// to an interface so tests can supply a fake.
type gitShower interface {
	Show(ctx context.Context, ref, path string) (string, error)
}

// New builds a Scheduler rooted at projectRoot.
func New(projectRoot string, cfg config.Config, repo gitShower, fb *fallback.Tracker) *Scheduler {
	return &Scheduler{
		projectRoot: projectRoot,
		cfg:         cfg,
		repo:        repo,
		fb:          fb,
		fileCache:   make(map[string][]string),
	}
}

// Build assembles one ContextBundleEntry per fused plan item, in the
// fused plan's own order.
func (s *Scheduler) Build(ctx context.Context, units []*domain.ReviewUnit, plan []domain.ContextPlanItem) []domain.ContextBundleEntry {
	byID := make(map[string]*domain.ReviewUnit, len(units))
	for _, u := range units {
		byID[u.UnitID] = u
	}

	out := make([]domain.ContextBundleEntry, 0, len(plan))
	for _, item := range plan {
		u, ok := byID[item.UnitID]
		if !ok {
			continue
		}
		out = append(out, s.buildOne(ctx, u, item))
	}
	return out
}

func (s *Scheduler) maxChars() int {
	if s.cfg.Scheduler.MaxCharsPerField > 0 {
		return s.cfg.Scheduler.MaxCharsPerField
	}
	return 8000
}

func (s *Scheduler) functionWindow() int {
	if s.cfg.Scheduler.FunctionWindow > 0 {
		return s.cfg.Scheduler.FunctionWindow
	}
	return 30
}

func (s *Scheduler) fileContextWindow() int {
	if s.cfg.Scheduler.FileContextWindow > 0 {
		return s.cfg.Scheduler.FileContextWindow
	}
	return 20
}

func (s *Scheduler) fullFileMaxLines() int {
	if s.cfg.Scheduler.FullFileMaxLines > 0 {
		return s.cfg.Scheduler.FullFileMaxLines
	}
	return 300
}

func (s *Scheduler) callersMaxHits() int {
	if s.cfg.Scheduler.CallersMaxHits > 0 {
		return s.cfg.Scheduler.CallersMaxHits
	}
	return 5
}

func (s *Scheduler) buildOne(ctx context.Context, u *domain.ReviewUnit, item domain.ContextPlanItem) domain.ContextBundleEntry {
	level := item.FinalContextLevel
	if level == "" {
		level = domain.ContextLevelFunction
	}

	entry := domain.ContextBundleEntry{
		UnitID: u.UnitID,
		Meta: domain.BundleMeta{
			FilePath:    u.FilePath,
			Tags:        u.Tags,
			HunkRange:   u.HunkRange,
			LineNumbers: u.LineNumbers,
			Location:    fmt.Sprintf("%s:%s", u.FilePath, u.LineNumbers.NewCompact),
		},
		FinalContextLevel: level,
		ExtraRequests:     item.ExtraRequests,
		Diff:              s.truncate(s.withLocationHint(u)),
	}

	var lines []string
	var ok bool
	if level != domain.ContextLevelDiffOnly {
		lines, ok = s.readFile(u.FilePath)
	}

	switch level {
	case domain.ContextLevelFunction:
		entry.FunctionContext = s.nilIfEmpty(s.truncate(s.functionContext(u, lines, ok)))
	case domain.ContextLevelFileContext:
		entry.FileContext = s.nilIfEmpty(s.truncate(s.windowSlice(lines, u.HunkRange.NewStart, u.HunkRange.NewLines, s.fileContextWindow())))
	case domain.ContextLevelFullFile:
		entry.FullFile = s.nilIfEmpty(s.truncate(s.fullFileSlice(u, lines, ok)))
	}

	for _, req := range item.ExtraRequests {
		switch req {
		case domain.ExtraRequestPreviousVersion:
			entry.PreviousVersion = s.nilIfEmpty(s.truncate(s.previousVersion(ctx, u)))
		case domain.ExtraRequestCallers, domain.ExtraRequestSearch, domain.ExtraRequestSearchConfig:
			entry.Callers = append(entry.Callers, s.search(ctx, u)...)
		}
	}
	entry.Callers = dedupCallers(entry.Callers)

	return entry
}

// withLocationHint prefixes the unit's numbered diff with an
// "@@ <location> @@" hint line so the reviewer can anchor the diff
// without re-deriving file/line coordinates.
func (s *Scheduler) withLocationHint(u *domain.ReviewUnit) string {
	hint := fmt.Sprintf("@@ %s:%s @@\n", u.FilePath, u.LineNumbers.NewCompact)
	if u.UnifiedDiffNumbered != "" {
		return hint + u.UnifiedDiffNumbered
	}
	return hint + u.UnifiedDiff
}

func (s *Scheduler) readFile(path string) ([]string, bool) {
	s.mu.Lock()
	if lines, ok := s.fileCache[path]; ok {
		s.mu.Unlock()
		return lines, lines != nil
	}
	s.mu.Unlock()

	res, _, _ := s.group.Do(path, func() (interface{}, error) {
		content, ok := diffcollect.ReadFileLenient(s.projectRoot, path)
		var lines []string
		if ok {
			lines = strings.Split(content, "\n")
		}
		s.mu.Lock()
		s.fileCache[path] = lines
		s.mu.Unlock()
		if !ok {
			s.fb.Record("context_file_unreadable", "file unreadable while assembling context", map[string]interface{}{"path": path})
		}
		return lines, nil
	})
	lines, _ := res.([]string)
	return lines, lines != nil
}

// functionContext tries enclosing-symbol extraction first (the
// smallest enclosing declaration via the Go AST; for other languages
// the outermost enclosing regex-matched block), falling back to a
// windowed slice when the language isn't supported or no symbol was
// found.
func (s *Scheduler) functionContext(u *domain.ReviewUnit, lines []string, ok bool) string {
	if !ok || len(lines) == 0 {
		return ""
	}
	startLine := u.HunkRange.NewStart
	endLine := startLine + u.HunkRange.NewLines - 1
	if endLine < startLine {
		endLine = startLine
	}
	if sym := diffcollect.DetectSymbol(u.Language, lines, startLine, endLine); sym != nil && sym.StartLine > 0 {
		return sliceLines(lines, sym.StartLine, sym.EndLine)
	}
	s.fb.Record("context_function_fallback", "no enclosing symbol found, using windowed slice", map[string]interface{}{"path": u.FilePath})
	return s.windowSlice(lines, u.HunkRange.NewStart, u.HunkRange.NewLines, s.functionWindow())
}

func (s *Scheduler) windowSlice(lines []string, start, count, window int) string {
	if len(lines) == 0 {
		return ""
	}
	end := start + count - 1
	if end < start {
		end = start
	}
	return sliceLines(lines, start-window, end+window)
}

// fullFileSlice implements the full_file policy: entire file when
// short, else head(50)/middle-window/tail(30) joined by truncation
// markers — exactly three "…TRUNCATED…" markers for an oversize file.
func (s *Scheduler) fullFileSlice(u *domain.ReviewUnit, lines []string, ok bool) string {
	if !ok || len(lines) == 0 {
		return ""
	}
	if len(lines) <= s.fullFileMaxLines() {
		return strings.Join(lines, "\n")
	}
	head := sliceLines(lines, 1, 50)
	mid := s.windowSlice(lines, u.HunkRange.NewStart, u.HunkRange.NewLines, s.fileContextWindow())
	tail := sliceLines(lines, len(lines)-29, len(lines))

	const marker = "…TRUNCATED…"
	omitted := len(lines) - 50 - 30
	if omitted < 0 {
		omitted = 0
	}
	return head + "\n" + marker + "\n" + mid + "\n" + marker + "\n" + tail + "\n" + marker + fmt.Sprintf(" (%d lines omitted)", omitted)
}

func (s *Scheduler) previousVersion(ctx context.Context, u *domain.ReviewUnit) string {
	ref := "HEAD"
	if err := validateRefAndPath(ref, u.FilePath); err != nil {
		s.fb.Record("context_previous_version_rejected", err.Error(), map[string]interface{}{"path": u.FilePath})
		return ""
	}
	out, err := s.repo.Show(ctx, ref, u.FilePath)
	if err != nil {
		s.fb.Record("context_previous_version_failed", err.Error(), map[string]interface{}{"path": u.FilePath})
		return ""
	}
	lines := strings.Split(out, "\n")
	start := u.HunkRange.OldStart
	count := u.HunkRange.OldLines
	if count <= 0 {
		count = 1
	}
	return s.windowSlice(lines, start, count, s.fileContextWindow())
}

// validateRefAndPath rejects refs and paths reaching git show that
// contain ".." or anything outside the conservative charset.
func validateRefAndPath(ref, path string) error {
	if strings.Contains(ref, "..") || strings.Contains(path, "..") || strings.HasPrefix(path, "/") {
		return fmt.Errorf("contextsched: unsafe ref/path %q/%q", ref, path)
	}
	for _, r := range ref + path {
		if !(r == '/' || r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return fmt.Errorf("contextsched: unsafe ref/path %q/%q", ref, path)
		}
	}
	return nil
}

// search shells out to ripgrep for callers/search extra requests,
// capping hits and enriching each with a ±3-line snippet from the
// matched file.
func (s *Scheduler) search(ctx context.Context, u *domain.ReviewUnit) []domain.CallerHit {
	query := u.FilePath
	if u.Symbol != nil && u.Symbol.Name != "" {
		query = u.Symbol.Name
	}
	if _, err := exec.LookPath("rg"); err != nil {
		s.fb.Record("context_ripgrep_missing", "ripgrep not available, skipping caller search", nil)
		return nil
	}
	cmd := exec.CommandContext(ctx, "rg", "--line-number", "--no-heading", "--max-count", "50", query, s.projectRoot)
	out, err := cmd.Output()
	if err != nil && len(out) == 0 {
		s.fb.Record("context_ripgrep_failed", "ripgrep invocation failed", map[string]interface{}{"query": query})
		return nil
	}
	var hits []domain.CallerHit
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" || len(hits) >= s.callersMaxHits() {
			break
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}
		lineNo, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		path := strings.TrimPrefix(strings.TrimPrefix(parts[0], s.projectRoot), "/")
		hits = append(hits, domain.CallerHit{
			FilePath: path,
			Line:     lineNo,
			Snippet:  s.snippetAround(path, lineNo, 3),
		})
	}
	return hits
}

func (s *Scheduler) snippetAround(path string, line, radius int) string {
	lines, ok := s.readFile(path)
	if !ok {
		return ""
	}
	return s.windowSlice(lines, line, 1, radius)
}

func dedupCallers(hits []domain.CallerHit) []domain.CallerHit {
	seen := make(map[string]bool, len(hits))
	out := make([]domain.CallerHit, 0, len(hits))
	for _, h := range hits {
		key := h.FilePath + "\x00" + h.Snippet
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// truncate enforces max_chars_per_field, line-truncating with head/tail
// preservation when a straight character cut would land mid-line.
func (s *Scheduler) truncate(text string) string {
	max := s.maxChars()
	if len(text) <= max {
		return text
	}
	const marker = "…TRUNCATED…\n"
	budget := max - len(marker)
	if budget < 0 {
		budget = 0
	}
	lines := strings.Split(text, "\n")
	headBudget := budget * 2 / 3
	tailBudget := budget - headBudget
	var head, tail strings.Builder
	for _, l := range lines {
		if head.Len()+len(l)+1 > headBudget {
			break
		}
		head.WriteString(l)
		head.WriteString("\n")
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if tail.Len()+len(lines[i])+1 > tailBudget {
			break
		}
		tail.WriteString(lines[i])
		tail.WriteString("\n")
	}
	return head.String() + marker + reverseLines(tail.String())
}

func reverseLines(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

func (s *Scheduler) nilIfEmpty(text string) *string {
	if text == "" {
		return nil
	}
	return &text
}

func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if end < start {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
