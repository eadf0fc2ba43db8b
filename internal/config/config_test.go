package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Unsetenv("LLM_ENDPOINT")
	os.Unsetenv("LLM_API_KEY")
	os.Unsetenv("CONFIG_PATH")
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("PLANNER_IDLE_TIMEOUT_SECONDS")

	cfg := LoadConfig()

	if cfg.LLM.Endpoint != "https://api.openai.com/v1" {
		t.Errorf("expected default endpoint, got %s", cfg.LLM.Endpoint)
	}
	if cfg.Reviewer.CallTimeout != 120*time.Second {
		t.Errorf("expected reviewer call timeout 120s, got %v", cfg.Reviewer.CallTimeout)
	}
	if cfg.Planner.MaxRetries != 2 {
		t.Errorf("expected planner max retries 2, got %d", cfg.Planner.MaxRetries)
	}
	if cfg.Scheduler.FullFileMaxLines != 300 {
		t.Errorf("expected full_file_max_lines 300, got %d", cfg.Scheduler.FullFileMaxLines)
	}
	if cfg.Diff.MergeGap != 20 {
		t.Errorf("expected merge_gap 20, got %d", cfg.Diff.MergeGap)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	os.Setenv("LLM_API_KEY", "sk-test")
	os.Setenv("DATA_DIR", "/tmp/review-data")
	os.Setenv("PLANNER_IDLE_TIMEOUT_SECONDS", "45")
	defer func() {
		os.Unsetenv("LLM_API_KEY")
		os.Unsetenv("DATA_DIR")
		os.Unsetenv("PLANNER_IDLE_TIMEOUT_SECONDS")
	}()

	cfg := LoadConfig()

	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("expected api key from env, got %s", cfg.LLM.APIKey)
	}
	if cfg.DataDir != "/tmp/review-data" {
		t.Errorf("expected data dir from env, got %s", cfg.DataDir)
	}
	if cfg.Planner.IdleTimeout != 45*time.Second {
		t.Errorf("expected idle timeout 45s, got %v", cfg.Planner.IdleTimeout)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	yamlContent := `
log:
  level: DEBUG
llm:
  model: custom-model
scheduler:
  full_file_max_lines: 500
planner:
  max_retries: 1
`
	tmpfile, err := os.CreateTemp("", "config*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(yamlContent)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CONFIG_PATH", tmpfile.Name())
	defer os.Unsetenv("CONFIG_PATH")

	cfg := LoadConfig()

	if cfg.Log.Level != "DEBUG" {
		t.Errorf("expected Log.Level DEBUG, got %s", cfg.Log.Level)
	}
	if cfg.LLM.Model != "custom-model" {
		t.Errorf("expected LLM Model custom-model, got %s", cfg.LLM.Model)
	}
	if cfg.Scheduler.FullFileMaxLines != 500 {
		t.Errorf("expected full_file_max_lines 500, got %d", cfg.Scheduler.FullFileMaxLines)
	}
	if cfg.Planner.MaxRetries != 1 {
		t.Errorf("expected planner.max_retries 1, got %d", cfg.Planner.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	cfg := LoadConfig()
	cfg.LLM.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing API key")
	}
	cfg.LLM.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadModelsCatalog_DefaultsWhenFileMissing(t *testing.T) {
	os.Setenv("MODELS_CONFIG_PATH", "/nonexistent/models_config.json")
	defer os.Unsetenv("MODELS_CONFIG_PATH")
	cat := LoadModelsCatalog()
	if m, ok := cat.FirstModel("openai"); !ok || m == "" {
		t.Errorf("expected a default openai model, got %q ok=%v", m, ok)
	}
}

func TestLoadModelsCatalog_FileMergesOverDefaults(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "models*.json")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())
	if _, err := tmpfile.WriteString(`{"openai": ["my-tuned-model"], "acme": ["acme-1"]}`); err != nil {
		t.Fatal(err)
	}
	tmpfile.Close()
	os.Setenv("MODELS_CONFIG_PATH", tmpfile.Name())
	defer os.Unsetenv("MODELS_CONFIG_PATH")

	cat := LoadModelsCatalog()
	if m, _ := cat.FirstModel("openai"); m != "my-tuned-model" {
		t.Errorf("expected file to replace openai default, got %q", m)
	}
	if m, _ := cat.FirstModel("acme"); m != "acme-1" {
		t.Errorf("expected new provider from file, got %q", m)
	}
	if _, ok := cat.FirstModel("deepseek"); !ok {
		t.Errorf("expected untouched provider to keep its default")
	}
}
