// Package diffcollect implements the Diff Collector: it
// obtains a unified diff via the whitelisted git surface, parses it
// into per-file hunks, and turns each hunk into a ReviewUnit with
// language-aware symbol detection, smart context expansion, tagging,
// and nearby-hunk merging.
package diffcollect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pr-review-automation/internal/domain"
)

// Hunk is one `@@ -a,b +c,d @@` block and its body lines, each still
// carrying its leading '+'/'-'/' ' marker.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Header   string
	Lines    []string
}

// FileDiff is one file's section of a unified diff.
type FileDiff struct {
	OldPath    string
	NewPath    string
	IsNew      bool
	IsDeleted  bool
	IsBinary   bool
	Hunks      []Hunk
}

var (
	diffGitRe  = regexp.MustCompile(`(?m)^diff --git `)
	hunkHdrRe  = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)
	oldFileRe  = regexp.MustCompile(`^--- (?:a/)?(.+)$`)
	newFileRe  = regexp.MustCompile(`^\+\+\+ (?:b/)?(.+)$`)
)

// ParseUnifiedDiff splits a full unified diff into per-file sections,
// each with its parsed hunks. Files are split on the "diff --git"
// preamble, with a fallback to scanning bare "--- "/"+++ " pairs for
// diffs produced without it (e.g. `git show` single-file output).
func ParseUnifiedDiff(diffText string) ([]FileDiff, error) {
	if strings.TrimSpace(diffText) == "" {
		return nil, nil
	}
	idx := diffGitRe.FindAllStringIndex(diffText, -1)
	if len(idx) == 0 {
		fd, ok := parseFileSection(diffText)
		if !ok {
			return nil, nil
		}
		return []FileDiff{fd}, nil
	}
	var out []FileDiff
	for i, loc := range idx {
		end := len(diffText)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		section := diffText[loc[0]:end]
		if fd, ok := parseFileSection(section); ok {
			out = append(out, fd)
		}
	}
	return out, nil
}

func parseFileSection(section string) (FileDiff, bool) {
	lines := strings.Split(section, "\n")
	fd := FileDiff{}
	if strings.Contains(section, "Binary files ") || strings.Contains(section, "GIT binary patch") {
		fd.IsBinary = true
	}

	var currentHunk *Hunk
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "--- "):
			if m := oldFileRe.FindStringSubmatch(line); m != nil {
				fd.OldPath = m[1]
				if fd.OldPath == "/dev/null" {
					fd.IsNew = true
				}
			}
		case strings.HasPrefix(line, "+++ "):
			if m := newFileRe.FindStringSubmatch(line); m != nil {
				fd.NewPath = m[1]
				if fd.NewPath == "/dev/null" {
					fd.IsDeleted = true
				}
			}
		case strings.HasPrefix(line, "@@ "):
			if m := hunkHdrRe.FindStringSubmatch(line); m != nil {
				h := Hunk{Header: line}
				h.OldStart, _ = strconv.Atoi(m[1])
				h.OldLines = atoiDefault(m[2], 1)
				h.NewStart, _ = strconv.Atoi(m[3])
				h.NewLines = atoiDefault(m[4], 1)
				fd.Hunks = append(fd.Hunks, h)
				currentHunk = &fd.Hunks[len(fd.Hunks)-1]
			}
		default:
			if currentHunk != nil && (strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") || strings.HasPrefix(line, " ")) {
				currentHunk.Lines = append(currentHunk.Lines, line)
			}
		}
	}
	if fd.NewPath == "" && fd.OldPath != "" {
		fd.NewPath = fd.OldPath
	}
	if fd.NewPath == "" {
		return fd, false
	}
	fd.NewPath = domain.NormalizePath(fd.NewPath)
	fd.OldPath = domain.NormalizePath(fd.OldPath)
	return fd, true
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// NewLineNumbers and OldLineNumbers of a hunk, and the diff rendered
// with/without per-line numbering.
func (h Hunk) LineNumbers() domain.LineNumbers {
	var newLines, oldLines []int
	oldLn, newLn := h.OldStart, h.NewStart
	for _, l := range h.Lines {
		if len(l) == 0 {
			continue
		}
		switch l[0] {
		case '+':
			newLines = append(newLines, newLn)
			newLn++
		case '-':
			oldLines = append(oldLines, oldLn)
			oldLn++
		default:
			oldLn++
			newLn++
		}
	}
	return domain.LineNumbers{
		New:        newLines,
		Old:        oldLines,
		NewCompact: CompactRanges(newLines),
		OldCompact: CompactRanges(oldLines),
	}
}

// BeforeAfter derives the hunk's pre-image and post-image text
// directly from each line's '-'/'+'/' ' marker: a '-' or context line
// contributes to before, a '+' or context line contributes to after.
// This needs no file re-read: the concatenation of '-'-marked and
// context lines reconstructs the pre-image region, and likewise '+'
// and context lines the post-image.
func (h Hunk) BeforeAfter() (before, after string) {
	var b, a strings.Builder
	for _, l := range h.Lines {
		if len(l) == 0 {
			continue
		}
		content := l[1:]
		switch l[0] {
		case '-':
			b.WriteString(content)
			b.WriteString("\n")
		case '+':
			a.WriteString(content)
			a.WriteString("\n")
		default:
			b.WriteString(content)
			b.WriteString("\n")
			a.WriteString(content)
			a.WriteString("\n")
		}
	}
	return strings.TrimSuffix(b.String(), "\n"), strings.TrimSuffix(a.String(), "\n")
}

// UnifiedDiff renders the hunk header followed by its body lines.
func (h Hunk) UnifiedDiff() string {
	var b strings.Builder
	b.WriteString(h.Header)
	b.WriteString("\n")
	b.WriteString(strings.Join(h.Lines, "\n"))
	return b.String()
}

// UnifiedDiffNumbered renders the hunk body with each +/- line prefixed
// by its line number, e.g. "+42: foo()".
func (h Hunk) UnifiedDiffNumbered() string {
	var b strings.Builder
	b.WriteString(h.Header)
	b.WriteString("\n")
	oldLn, newLn := h.OldStart, h.NewStart
	for _, l := range h.Lines {
		if len(l) == 0 {
			b.WriteString(l)
			b.WriteString("\n")
			continue
		}
		switch l[0] {
		case '+':
			fmt.Fprintf(&b, "+%d: %s\n", newLn, l[1:])
			newLn++
		case '-':
			fmt.Fprintf(&b, "-%d: %s\n", oldLn, l[1:])
			oldLn++
		default:
			fmt.Fprintf(&b, " %d: %s\n", newLn, l[1:])
			oldLn++
			newLn++
		}
	}
	return b.String()
}

// CompactRanges run-length-encodes a sorted-unique set of ints into
// the "L10-12,L20" form used by the *_compact fields.
func CompactRanges(nums []int) string {
	if len(nums) == 0 {
		return ""
	}
	uniq := dedupSorted(nums)
	var parts []string
	start, prev := uniq[0], uniq[0]
	flush := func(end int) {
		if start == end {
			parts = append(parts, fmt.Sprintf("L%d", start))
		} else {
			parts = append(parts, fmt.Sprintf("L%d-%d", start, end))
		}
	}
	for _, n := range uniq[1:] {
		if n == prev+1 {
			prev = n
			continue
		}
		flush(prev)
		start, prev = n, n
	}
	flush(prev)
	return strings.Join(parts, ",")
}

func dedupSorted(nums []int) []int {
	cp := append([]int(nil), nums...)
	for i := 1; i < len(cp); i++ {
		for j := i; j > 0 && cp[j] < cp[j-1]; j-- {
			cp[j], cp[j-1] = cp[j-1], cp[j]
		}
	}
	out := cp[:0]
	var last int
	for i, n := range cp {
		if i == 0 || n != last {
			out = append(out, n)
		}
		last = n
	}
	return out
}
