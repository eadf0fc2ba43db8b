package intent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAgent_SeedThenLoadRoundTrips(t *testing.T) {
	dataDir := t.TempDir()
	projectRoot := t.TempDir()
	a := New(nil, dataDir, projectRoot)

	seeded, err := a.Seed("this project is a widget factory")
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if seeded.Source != "manual" {
		t.Errorf("expected manual source, got %q", seeded.Source)
	}

	loaded, err := a.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil || loaded.Content != "this project is a widget factory" {
		t.Fatalf("expected seeded content to round-trip, got %+v", loaded)
	}
	if loaded.ProjectName != filepath.Base(projectRoot) {
		t.Errorf("expected project name %q, got %q", filepath.Base(projectRoot), loaded.ProjectName)
	}
}

func TestAgent_LoadMissingCacheReturnsNil(t *testing.T) {
	a := New(nil, t.TempDir(), t.TempDir())
	cache, err := a.Load()
	if err != nil {
		t.Fatalf("expected no error for missing cache, got %v", err)
	}
	if cache != nil {
		t.Errorf("expected nil cache, got %+v", cache)
	}
}

func TestAgent_SaveLeavesNoTempFileBehind(t *testing.T) {
	dataDir := t.TempDir()
	a := New(nil, dataDir, t.TempDir())
	if _, err := a.Seed("content"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dataDir, "Analysis"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file in Analysis dir, got %d: %v", len(entries), entries)
	}
	if filepath.Ext(entries[0].Name()) != ".json" {
		t.Errorf("expected a .json cache file, got %q", entries[0].Name())
	}
}

func TestClamp_TruncatesLongStrings(t *testing.T) {
	s := clamp("0123456789", 5)
	if s != "01234\n…TRUNCATED…" {
		t.Errorf("unexpected clamp output: %q", s)
	}
	if clamp("short", 10) != "short" {
		t.Errorf("expected short string unchanged")
	}
}

func TestGatherManifests_ReadsKnownManifestFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/foo\n"), 0o644); err != nil {
		t.Fatalf("write go.mod: %v", err)
	}
	a := New(nil, t.TempDir(), root)
	out := a.gatherManifests([]string{"go.mod", "README.md"})
	if out == "" {
		t.Fatal("expected manifest content, got empty string")
	}
}
