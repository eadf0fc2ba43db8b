package kernel

import "pr-review-automation/internal/llmclient"

// builtinToolSpecs describes the JSON schemas for the built-in tools
// internal/toolruntime.RegisterBuiltins installs, so the reviewer LLM
// knows how to call them.
var builtinToolSpecs = []llmclient.ToolSpec{
	{
		Name:        "list_project_files",
		Description: "List files tracked in the project's git index, optionally filtered by path prefix.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"prefix": map[string]interface{}{"type": "string", "description": "Only return paths starting with this prefix."},
			},
		},
	},
	{
		Name:        "read_file_hunk",
		Description: "Read a range of lines from a project file, optionally with line numbers prefixed.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path":  map[string]interface{}{"type": "string"},
				"start_line": map[string]interface{}{"type": "integer"},
				"end_line":   map[string]interface{}{"type": "integer"},
				"numbered":   map[string]interface{}{"type": "boolean"},
			},
			"required": []string{"file_path"},
		},
	},
	{
		Name:        "read_file_info",
		Description: "Get size, line count, and modified time for a project file.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{"type": "string"},
			},
			"required": []string{"file_path"},
		},
	},
	{
		Name:        "search_in_project",
		Description: "Search the project tree for a literal string via git grep.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":    map[string]interface{}{"type": "string"},
				"max_hits": map[string]interface{}{"type": "integer"},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        "get_dependencies",
		Description: "Read the project's dependency manifest files (go.mod, package.json, requirements.txt, etc.).",
		Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
	},
}

// filterToolSpecs narrows all (the kernel passes builtinToolSpecs) to
// the caller's requested tool_names. An empty list means "offer every
// spec in all".
func filterToolSpecs(all []llmclient.ToolSpec, names []string) []llmclient.ToolSpec {
	if len(names) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	out := make([]llmclient.ToolSpec, 0, len(all))
	for _, t := range all {
		if allowed[t.Name] {
			out = append(out, t)
		}
	}
	return out
}
