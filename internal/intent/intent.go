// Package intent implements the Intent Agent: a one-shot,
// cached project-summary LLM call. The summary is gathered once per
// project (file tree, README, recent commits, manifest files),
// persisted to <data_dir>/Analysis/<project_name>.json (project_name is
// the base name of the project root), and reused on every later
// session unless the caller calls Seed to override it manually.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/prompts"

	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/gitio"
	"pr-review-automation/internal/llmclient"
)

const maxGatheredChars = 6000

// summaryTemplate is a langchaingo prompt template: a
// Go-template-style string plus an explicit input variable list,
// formatted once per call.
var summaryTemplate = prompts.NewPromptTemplate(
	`You are generating a one-paragraph orientation summary for an automated code reviewer that will see only diffs, never the whole project.

Project root: {{.project_root}}

File tree (partial):
{{.file_tree}}

README excerpt:
{{.readme}}

Recent commits:
{{.commits}}

Manifest files:
{{.manifests}}

Write a single paragraph (4-8 sentences) describing what this project is, its primary language(s) and frameworks, and anything a reviewer should know about its architecture or conventions before reviewing a diff. Do not use headings or bullet points.`,
	[]string{"project_root", "file_tree", "readme", "commits", "manifests"},
)

// Agent gathers a project summary once and caches it to disk.
type Agent struct {
	client      *llmclient.Client
	dataDir     string
	projectRoot string
	projectName string
}

// New builds an intent Agent for one project root.
func New(client *llmclient.Client, dataDir, projectRoot string) *Agent {
	return &Agent{
		client:      client,
		dataDir:     dataDir,
		projectRoot: projectRoot,
		projectName: filepath.Base(strings.TrimRight(projectRoot, string(os.PathSeparator))),
	}
}

func (a *Agent) cachePath() string {
	return filepath.Join(a.dataDir, "Analysis", a.projectName+".json")
}

// Load reads the cached IntentCache for this project, if any.
func (a *Agent) Load() (*domain.IntentCache, error) {
	data, err := os.ReadFile(a.cachePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("intent: read cache: %w", err)
	}
	var cache domain.IntentCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("intent: unmarshal cache: %w", err)
	}
	return &cache, nil
}

// Seed manually overrides the cache with caller-supplied content,
// bypassing the LLM entirely, per the manual override path.
func (a *Agent) Seed(content string) (*domain.IntentCache, error) {
	now := time.Now()
	cache := &domain.IntentCache{
		ProjectName: a.projectName,
		ProjectRoot: a.projectRoot,
		Content:     content,
		CreatedAt:   now,
		UpdatedAt:   now,
		Source:      "manual",
	}
	if err := a.save(cache); err != nil {
		return nil, err
	}
	return cache, nil
}

// Ensure returns the cached summary, generating and persisting a fresh
// one via the LLM if no cache exists yet. The summary call is a single
// non-streaming request; emitDelta, if non-nil, is called once with the
// whole summary text after it returns (the kernel wires this to an
// intent_delta event).
func (a *Agent) Ensure(ctx context.Context, emitDelta func(string)) (*domain.IntentCache, error) {
	if cached, err := a.Load(); err != nil {
		return nil, err
	} else if !cached.Empty() {
		return cached, nil
	}

	vars, err := a.gather(ctx)
	if err != nil {
		return nil, fmt.Errorf("intent: gather project context: %w", err)
	}
	prompt, err := summaryTemplate.Format(vars)
	if err != nil {
		return nil, fmt.Errorf("intent: format prompt: %w", err)
	}

	content, _, err := a.client.CompleteSampled(ctx, []llmclient.Message{
		{Role: "system", Content: "You write concise, accurate project orientation summaries for code reviewers."},
		{Role: "user", Content: prompt},
	}, 0.7, 0.95)
	if err != nil {
		return nil, fmt.Errorf("intent: llm call: %w", err)
	}
	content = strings.TrimSpace(content)
	if emitDelta != nil && content != "" {
		emitDelta(content)
	}

	now := time.Now()
	cache := &domain.IntentCache{
		ProjectName: a.projectName,
		ProjectRoot: a.projectRoot,
		Content:     content,
		CreatedAt:   now,
		UpdatedAt:   now,
		Source:      "agent",
	}
	if err := a.save(cache); err != nil {
		return nil, err
	}
	return cache, nil
}

// save writes the cache via a temp-file-then-rename so a crash mid
// write never leaves a half-written cache file behind.
func (a *Agent) save(cache *domain.IntentCache) error {
	path := a.cachePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("intent: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("intent: marshal cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".intent-*.tmp")
	if err != nil {
		return fmt.Errorf("intent: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("intent: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("intent: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("intent: rename temp file: %w", err)
	}
	return nil
}

// gather assembles the prompt's input variables from the project
// directory: a trimmed file tree, a README excerpt, recent commit
// subjects, and any manifest file contents found.
func (a *Agent) gather(ctx context.Context) (map[string]interface{}, error) {
	repo := gitio.New(a.projectRoot)

	files, err := repo.LsFiles(ctx)
	if err != nil {
		files = a.walkFallback()
	}
	sort.Strings(files)
	tree := strings.Join(truncateList(files, 200), "\n")

	readme := a.readFirst([]string{"README.md", "README", "Readme.md", "readme.md"})

	commits, err := repo.Log(ctx, "-n", "15", "--pretty=format:%s")
	if err != nil {
		commits = ""
	}

	manifests := a.gatherManifests(files)

	return map[string]interface{}{
		"project_root": a.projectRoot,
		"file_tree":    clamp(tree, maxGatheredChars),
		"readme":       clamp(readme, maxGatheredChars),
		"commits":      clamp(commits, 2000),
		"manifests":    clamp(manifests, maxGatheredChars),
	}, nil
}

func (a *Agent) walkFallback() []string {
	var out []string
	_ = filepath.Walk(a.projectRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(a.projectRoot, path)
		if rerr == nil {
			out = append(out, rel)
		}
		return nil
	})
	return out
}

func (a *Agent) readFirst(candidates []string) string {
	for _, name := range candidates {
		data, err := os.ReadFile(filepath.Join(a.projectRoot, name))
		if err == nil {
			return string(data)
		}
	}
	return ""
}

var manifestNames = []string{
	"go.mod", "package.json", "requirements.txt", "pyproject.toml",
	"pom.xml", "build.gradle", "Gemfile", "Cargo.toml",
}

func (a *Agent) gatherManifests(files []string) string {
	var b strings.Builder
	seen := map[string]bool{}
	for _, f := range files {
		base := filepath.Base(f)
		for _, m := range manifestNames {
			if base == m && !seen[f] {
				seen[f] = true
				data, err := os.ReadFile(filepath.Join(a.projectRoot, f))
				if err == nil {
					fmt.Fprintf(&b, "--- %s ---\n%s\n", f, clamp(string(data), 1500))
				}
			}
		}
	}
	return b.String()
}

func truncateList(items []string, max int) []string {
	if len(items) <= max {
		return items
	}
	return items[:max]
}

func clamp(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n…TRUNCATED…"
}
