package config

import (
	"encoding/json"
	"os"
	"sort"
)

// ModelsCatalog maps a provider name to its ordered model list. The
// first entry per provider is the one a bare "<provider>" llm
// preference resolves to.
type ModelsCatalog map[string][]string

var defaultModelsCatalog = ModelsCatalog{
	"openai":   {"gpt-4o", "gpt-4o-mini"},
	"deepseek": {"deepseek-chat", "deepseek-reasoner"},
	"qwen":     {"qwen-max", "qwen-plus"},
	"moonshot": {"kimi-k2-0711-preview"},
}

// DefaultModelsConfigPath is read unless MODELS_CONFIG_PATH overrides it.
const DefaultModelsConfigPath = "models_config.json"

// LoadModelsCatalog reads models_config.json (or $MODELS_CONFIG_PATH)
// and merges its provider entries over the hardcoded defaults: a
// provider listed in the file replaces that provider's default list
// wholesale, providers it omits keep their defaults. A missing or
// malformed file yields the defaults unchanged.
func LoadModelsCatalog() ModelsCatalog {
	out := make(ModelsCatalog, len(defaultModelsCatalog))
	for provider, models := range defaultModelsCatalog {
		out[provider] = append([]string(nil), models...)
	}

	path := getEnv("MODELS_CONFIG_PATH", DefaultModelsConfigPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	var fromFile map[string][]string
	if err := json.Unmarshal(data, &fromFile); err != nil {
		return out
	}
	for provider, models := range fromFile {
		if len(models) > 0 {
			out[provider] = models
		}
	}
	return out
}

// FirstModel returns the provider's preferred (first) model.
func (c ModelsCatalog) FirstModel(provider string) (string, bool) {
	models, ok := c[provider]
	if !ok || len(models) == 0 {
		return "", false
	}
	return models[0], true
}

// Providers returns the catalogue's provider names, sorted.
func (c ModelsCatalog) Providers() []string {
	out := make([]string, 0, len(c))
	for p := range c {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
