package diffcollect

import (
	"strings"
	"testing"
)

const sampleDiff = `diff --git a/foo.py b/foo.py
--- a/foo.py
+++ b/foo.py
@@ -10,3 +10,3 @@
 ctx
-# old
+# new
 ctx
`

func readerFor(files map[string]string) FileReader {
	return func(path string) (string, bool) {
		c, ok := files[path]
		return c, ok
	}
}

func TestBuildReviewIndex_SingleCommentChange(t *testing.T) {
	content := strings.Repeat("line\n", 9) + "ctx\n# new\nctx\n" + strings.Repeat("line\n", 5)
	idx, err := BuildReviewIndex(Options{
		SessionID: "s1",
		DiffMode:  "working",
		DiffText:  sampleDiff,
		ReadFile:  readerFor(map[string]string{"foo.py": content}),
	})
	if err != nil {
		t.Fatalf("BuildReviewIndex: %v", err)
	}
	if len(idx.Units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(idx.Units))
	}
	u := idx.Units[0]
	if !u.HasTag("only_comments") {
		t.Errorf("expected only_comments tag, got %v", u.Tags)
	}
}

func TestLineNumberClosure(t *testing.T) {
	files, err := ParseUnifiedDiff(sampleDiff)
	if err != nil || len(files) != 1 {
		t.Fatalf("parse: %v files=%d", err, len(files))
	}
	h := files[0].Hunks[0]
	ln := h.LineNumbers()
	numbered := h.UnifiedDiffNumbered()
	for _, n := range ln.New {
		if !strings.Contains(numbered, "+"+itoa(n)+":") {
			t.Errorf("new line %d not found in numbered diff", n)
		}
	}
	for _, n := range ln.Old {
		if !strings.Contains(numbered, "-"+itoa(n)+":") {
			t.Errorf("old line %d not found in numbered diff", n)
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestTagMonotonicity(t *testing.T) {
	content := strings.Repeat("line\n", 20)
	opts := Options{SessionID: "s2", DiffMode: "working", DiffText: sampleDiff, ReadFile: readerFor(map[string]string{"foo.py": content})}
	idx1, _ := BuildReviewIndex(opts)
	idx2, _ := BuildReviewIndex(opts)
	if len(idx1.Units) != len(idx2.Units) {
		t.Fatalf("unit count differs across runs")
	}
	for i := range idx1.Units {
		if strings.Join(idx1.Units[i].Tags, ",") != strings.Join(idx2.Units[i].Tags, ",") {
			t.Errorf("tag order differs: %v vs %v", idx1.Units[i].Tags, idx2.Units[i].Tags)
		}
	}
}

// TestBeforeAfterRoundTrip checks the diff round-trip property:
// the concatenation of before-marked and context lines reconstructs
// the pre-image region, and likewise after for the post-image.
func TestBeforeAfterRoundTrip(t *testing.T) {
	diff := `diff --git a/foo.py b/foo.py
--- a/foo.py
+++ b/foo.py
@@ -1,4 +1,5 @@
 ctx1
-removed
+added1
+added2
 ctx2
`
	files, err := ParseUnifiedDiff(diff)
	if err != nil || len(files) != 1 {
		t.Fatalf("parse: %v files=%d", err, len(files))
	}
	h := files[0].Hunks[0]
	before, after := h.BeforeAfter()

	wantBefore := "ctx1\nremoved\nctx2"
	wantAfter := "ctx1\nadded1\nadded2\nctx2"
	if before != wantBefore {
		t.Errorf("before = %q, want %q", before, wantBefore)
	}
	if after != wantAfter {
		t.Errorf("after = %q, want %q", after, wantAfter)
	}
	if before == after {
		t.Errorf("before and after must differ when the hunk adds/removes lines")
	}
}

func TestBuildReviewIndex_BeforeAfterDistinctOnUnit(t *testing.T) {
	diff := `diff --git a/foo.py b/foo.py
--- a/foo.py
+++ b/foo.py
@@ -10,2 +10,3 @@
 ctx
-removed line
+added line one
+added line two
`
	content := strings.Repeat("line\n", 9) + "ctx\nadded line one\nadded line two\n" + strings.Repeat("line\n", 5)
	idx, err := BuildReviewIndex(Options{
		SessionID: "s4",
		DiffMode:  "working",
		DiffText:  diff,
		ReadFile:  readerFor(map[string]string{"foo.py": content}),
	})
	if err != nil {
		t.Fatalf("BuildReviewIndex: %v", err)
	}
	if len(idx.Units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(idx.Units))
	}
	u := idx.Units[0]
	if !strings.Contains(u.CodeSnippets.Before, "removed line") {
		t.Errorf("expected Before to contain the removed line, got %q", u.CodeSnippets.Before)
	}
	if strings.Contains(u.CodeSnippets.After, "removed line") {
		t.Errorf("expected After to not contain the removed line, got %q", u.CodeSnippets.After)
	}
	if !strings.Contains(u.CodeSnippets.After, "added line one") || !strings.Contains(u.CodeSnippets.After, "added line two") {
		t.Errorf("expected After to contain both added lines, got %q", u.CodeSnippets.After)
	}
	if u.CodeSnippets.Before == u.CodeSnippets.After {
		t.Errorf("Before and After must be distinct when the hunk adds/removes lines, got identical %q", u.CodeSnippets.Before)
	}
}

func TestMergeGap(t *testing.T) {
	diff := `diff --git a/h.go b/h.go
--- a/h.go
+++ b/h.go
@@ -1,2 +1,2 @@
-a
+b
@@ -10,2 +10,2 @@
-c
+d
`
	content := strings.Repeat("x\n", 30)
	idx, err := BuildReviewIndex(Options{SessionID: "s3", DiffText: diff, ReadFile: readerFor(map[string]string{"h.go": content})})
	if err != nil {
		t.Fatalf("BuildReviewIndex: %v", err)
	}
	if len(idx.Units) != 1 {
		t.Fatalf("expected hunks within 20 lines to merge into 1 unit, got %d", len(idx.Units))
	}
	if !idx.Units[0].HasTag("merged_block") {
		t.Errorf("expected merged_block tag")
	}
}
