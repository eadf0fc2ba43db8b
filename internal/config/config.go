// Package config loads the kernel's YAML + environment configuration:
// logging, the LLM provider, and the per-stage tunables (planner
// timeouts, reviewer call timeout, scheduler windows).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is read unless CONFIG_PATH overrides it.
const DefaultConfigPath = "config.yaml"

// Config holds every tunable the kernel and its stage collaborators need.
type Config struct {
	Log struct {
		Level    string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
		Format   string `yaml:"format"` // text, json
		Output   string `yaml:"output"` // stdout, stderr, or comma-separated /path/to/file entries
		Dir      string `yaml:"dir"`    // root of log/api_log, log/pipeline, log/human_log
		Rotation struct {
			MaxSize    int  `yaml:"max_size"` // MB
			MaxBackups int  `yaml:"max_backups"`
			MaxAge     int  `yaml:"max_age"` // days
			Compress   bool `yaml:"compress"`
		} `yaml:"rotation"`
		ChunkSampleN   int `yaml:"chunk_sample_n"`   // sample every Nth streaming chunk, default 20
		ChunkSampleCap int `yaml:"chunk_sample_cap"` // hard cap on sampled chunks, default 200
	} `yaml:"log"`

	DataDir string `yaml:"data_dir"` // root of <data_dir>/Analysis/<project>.json intent caches

	LLM struct {
		Endpoint       string        `yaml:"endpoint"`
		APIKey         string        `yaml:"api_key"` // from YAML or env, see LoadConfig
		Model          string        `yaml:"model"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"` // TCP/TLS dial budget, default 10s
	} `yaml:"llm"`

	Planner struct {
		Model              string `yaml:"model"`
		MaxRetries         int    `yaml:"max_retries"`          // attempts per plan call, default 2
		RetryDelay         time.Duration `yaml:"retry_delay"`   // "the delay is fixed"
		IdleTimeout        time.Duration `yaml:"idle_timeout"`  // planner_idle_timeout
		FirstTokenTimeout  time.Duration `yaml:"first_token_timeout"`
		ThinkingFirstToken time.Duration `yaml:"thinking_first_token_timeout"`
	} `yaml:"planner"`

	Intent struct {
		Model string `yaml:"model"`
	} `yaml:"intent"`

	Reviewer struct {
		Model       string        `yaml:"model"`
		CallTimeout time.Duration `yaml:"call_timeout"` // LLM_CALL_TIMEOUT, default 120s
		MaxRounds   int           `yaml:"max_rounds"`
	} `yaml:"reviewer"`

	Scheduler struct {
		FunctionWindow    int `yaml:"function_window"`     // default 30
		FileContextWindow int `yaml:"file_context_window"` // default 20
		FullFileMaxLines  int `yaml:"full_file_max_lines"` // default 300
		MaxCharsPerField  int `yaml:"max_chars_per_field"` // default 8000
		CallersMaxHits    int `yaml:"callers_max_hits"`    // default 5
	} `yaml:"scheduler"`

	Diff struct {
		MergeGap   int `yaml:"merge_gap"`   // default 20
		ClusterGap int `yaml:"cluster_gap"` // default 10
		BaseBranch string `yaml:"base_branch"`
	} `yaml:"diff"`

	Git struct {
		CommandTimeout time.Duration `yaml:"command_timeout"` // GIT_COMMAND_TIMEOUT, default 60s
	} `yaml:"git"`

	Prompts struct {
		Dir string `yaml:"dir"`
	} `yaml:"prompts"`

	Scanners []ScannerSpec `yaml:"scanners"` // background static-scan commands, see internal/staticscan
}

// ScannerSpec configures one third-party static analyzer the
// background scan may run alongside the main pipeline.
type ScannerSpec struct {
	Name    string        `yaml:"name"`
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// GetLogLevel maps Log.Level to a slog.Level.
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig reads config.yaml (or $CONFIG_PATH), overlays defaults,
// then supplements secrets/critical fields from the environment,
// loading a .env file first if present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Log.Level = "INFO"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"
	cfg.Log.Dir = "log"
	cfg.Log.Rotation.MaxSize = 100
	cfg.Log.Rotation.MaxBackups = 5
	cfg.Log.Rotation.MaxAge = 28
	cfg.Log.Rotation.Compress = true
	cfg.Log.ChunkSampleN = 20
	cfg.Log.ChunkSampleCap = 200
	cfg.DataDir = "data"
	cfg.LLM.Endpoint = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o"
	cfg.LLM.ConnectTimeout = 10 * time.Second
	cfg.Planner.Model = "gpt-4o"
	cfg.Planner.MaxRetries = 2
	cfg.Planner.RetryDelay = 2 * time.Second
	cfg.Planner.IdleTimeout = 30 * time.Second
	cfg.Planner.FirstTokenTimeout = 20 * time.Second
	cfg.Planner.ThinkingFirstToken = 90 * time.Second
	cfg.Intent.Model = "gpt-4o"
	cfg.Reviewer.Model = "gpt-4o"
	cfg.Reviewer.CallTimeout = 120 * time.Second
	cfg.Reviewer.MaxRounds = 20
	cfg.Scheduler.FunctionWindow = 30
	cfg.Scheduler.FileContextWindow = 20
	cfg.Scheduler.FullFileMaxLines = 300
	cfg.Scheduler.MaxCharsPerField = 8000
	cfg.Scheduler.CallersMaxHits = 5
	cfg.Diff.MergeGap = 20
	cfg.Diff.ClusterGap = 10
	cfg.Diff.BaseBranch = "main"
	cfg.Git.CommandTimeout = 60 * time.Second
	cfg.Prompts.Dir = "prompts"

	configPath := getEnv("CONFIG_PATH", DefaultConfigPath)
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Error("unmarshal config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", configPath)
	} else if !os.IsNotExist(err) {
		slog.Error("read config failed", "error", err, "path", configPath)
		os.Exit(1)
	} else {
		slog.Info("config not found, using defaults", "path", configPath)
	}

	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Endpoint = getEnv("LLM_ENDPOINT", cfg.LLM.Endpoint)
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		cfg.Log.Level = envLevel
	}
	if envFormat := os.Getenv("LOG_FORMAT"); envFormat != "" {
		cfg.Log.Format = envFormat
	}
	if envOutput := os.Getenv("LOG_OUTPUT"); envOutput != "" {
		cfg.Log.Output = envOutput
	}
	if envDataDir := os.Getenv("DATA_DIR"); envDataDir != "" {
		cfg.DataDir = envDataDir
	}
	if v := getEnvInt("PLANNER_IDLE_TIMEOUT_SECONDS", 0); v != 0 {
		cfg.Planner.IdleTimeout = time.Duration(v) * time.Second
	}

	return cfg
}

// Validate rejects a config that cannot start a session.
func (c *Config) Validate() error {
	var errs []string
	if c.LLM.APIKey == "" {
		errs = append(errs, "LLM_API_KEY is required")
	}
	if c.LLM.Endpoint == "" {
		errs = append(errs, "llm.endpoint is required")
	}
	if c.Planner.MaxRetries < 0 {
		errs = append(errs, "planner.max_retries must be >= 0")
	}
	if c.Scheduler.MaxCharsPerField <= 0 {
		errs = append(errs, "scheduler.max_chars_per_field must be > 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
