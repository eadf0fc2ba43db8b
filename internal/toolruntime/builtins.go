package toolruntime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pr-review-automation/internal/gitio"
)

// RegisterBuiltins installs the built-in handlers:
// list_project_files, read_file_hunk (with a line-numbered variant),
// read_file_info, search_in_project (git-grep backed), and
// get_dependencies.
func RegisterBuiltins(r *Registry, projectRoot string) {
	r.Register("list_project_files", listProjectFiles(projectRoot))
	r.Register("read_file_hunk", readFileHunk(projectRoot))
	r.Register("read_file_info", readFileInfo(projectRoot))
	r.Register("search_in_project", searchInProject(projectRoot))
	r.Register("get_dependencies", getDependencies(projectRoot))
}

func argString(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func argInt(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func argBool(args map[string]interface{}, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

func resolveInRoot(root, rel string) (string, error) {
	if err := gitio.ValidatePath(rel); err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

func listProjectFiles(root string) Handler {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		repo := gitio.New(root)
		files, err := repo.LsFiles(ctx)
		if err != nil {
			return nil, fmt.Errorf("list_project_files: %w", err)
		}
		prefix := argString(args, "prefix")
		if prefix == "" {
			return files, nil
		}
		var filtered []string
		for _, f := range files {
			if strings.HasPrefix(f, prefix) {
				filtered = append(filtered, f)
			}
		}
		return filtered, nil
	}
}

func readFileHunk(root string) Handler {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		path := argString(args, "file_path")
		start := argInt(args, "start_line", 1)
		end := argInt(args, "end_line", 0)
		numbered := argBool(args, "numbered")

		full, err := resolveInRoot(root, path)
		if err != nil {
			return nil, fmt.Errorf("read_file_hunk: %w", err)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read_file_hunk: %w", err)
		}
		lines := strings.Split(string(data), "\n")
		if start < 1 {
			start = 1
		}
		if end <= 0 || end > len(lines) {
			end = len(lines)
		}
		if start > end {
			return "", nil
		}
		slice := lines[start-1 : end]
		if !numbered {
			return strings.Join(slice, "\n"), nil
		}
		var b strings.Builder
		for i, l := range slice {
			fmt.Fprintf(&b, "%d: %s\n", start+i, l)
		}
		return b.String(), nil
	}
}

func readFileInfo(root string) Handler {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		path := argString(args, "file_path")
		full, err := resolveInRoot(root, path)
		if err != nil {
			return nil, fmt.Errorf("read_file_info: %w", err)
		}
		info, err := os.Stat(full)
		if err != nil {
			return nil, fmt.Errorf("read_file_info: %w", err)
		}
		data, err := os.ReadFile(full)
		lineCount := 0
		if err == nil {
			lineCount = strings.Count(string(data), "\n") + 1
		}
		return map[string]interface{}{
			"file_path":  path,
			"size_bytes": info.Size(),
			"lines":      lineCount,
			"modified":   info.ModTime().UTC().Format(time.RFC3339),
		}, nil
	}
}

func searchInProject(root string) Handler {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		query := argString(args, "query")
		if query == "" {
			return nil, fmt.Errorf("search_in_project: query is required")
		}
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		cmd := exec.CommandContext(cctx, "git", "grep", "-n", "--fixed-strings", query)
		cmd.Dir = root
		out, err := cmd.Output()
		if err != nil {
			// git grep exits 1 when there are no matches; that's not a tool error.
			if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
				return []string{}, nil
			}
			return nil, fmt.Errorf("search_in_project: %w", err)
		}
		lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
		limit := argInt(args, "max_hits", 20)
		if limit > 0 && len(lines) > limit {
			lines = lines[:limit]
		}
		return lines, nil
	}
}

func getDependencies(root string) Handler {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		manifests := []string{"go.mod", "package.json", "requirements.txt", "Pipfile", "pom.xml", "build.gradle", "Gemfile", "Cargo.toml"}
		found := map[string]string{}
		for _, m := range manifests {
			data, err := os.ReadFile(filepath.Join(root, m))
			if err == nil {
				found[m] = string(data)
			}
		}
		return found, nil
	}
}
