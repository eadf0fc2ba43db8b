// Package logging sets up the kernel's slog handler (json/text,
// multi-writer, lumberjack rotation) per cmd/reviewcli's wiring, and
// implements the three append-only session log writers:
// log/api_log (REQUEST/RESPONSE_*/SESSION_END JSONL),
// log/pipeline (stage-level JSONL with uptime_ms), and log/human_log
// (a human-readable Markdown summary).
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"pr-review-automation/internal/config"
)

// NewLogger builds the process-wide slog.Logger from cfg.Log, writing
// to any mix of stdout/stderr/rotating files (comma-separated in
// cfg.Log.Output). The returned cleanup func flushes rotation writers.
func NewLogger(cfg *config.Config) (*slog.Logger, func()) {
	var writers []io.Writer
	var closers []io.Closer
	for _, output := range strings.Split(cfg.Log.Output, ",") {
		output = strings.TrimSpace(output)
		if output == "" {
			continue
		}
		var w io.Writer
		switch output {
		case "stderr":
			w = os.Stderr
		case "stdout":
			w = os.Stdout
		default:
			l := &lumberjack.Logger{
				Filename:   output,
				MaxSize:    cfg.Log.Rotation.MaxSize,
				MaxBackups: cfg.Log.Rotation.MaxBackups,
				MaxAge:     cfg.Log.Rotation.MaxAge,
				Compress:   cfg.Log.Rotation.Compress,
			}
			w = l
			closers = append(closers, l)
		}
		writers = append(writers, w)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	multi := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: cfg.GetLogLevel()}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(multi, opts)
	} else {
		handler = slog.NewTextHandler(multi, opts)
	}

	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
	return slog.New(handler), cleanup
}

// SessionLogger owns one session's three log streams: api_log (raw
// request/response JSONL, with redaction and streaming-chunk
// sampling), pipeline (stage-event JSONL with uptime_ms), and
// human_log (a Markdown narrative). One SessionLogger is constructed
// per kernel session and threaded through every stage.
type SessionLogger struct {
	mu      sync.Mutex
	traceID string
	start   time.Time

	apiPath      string
	pipelinePath string
	humanPath    string

	sampleN   int
	sampleCap int
	chunkSeen map[string]int

	redactedKeys map[string]bool
}

// redactedFields are the large text fields stripped from api_log
// entries to keep the JSONL readable, mirroring the original's
// `redacted_keys` default set.
var redactedFields = []string{
	"unified_diff", "unified_diff_with_lines", "context", "code_snippets",
	"file_context", "full_file", "function_context",
}

// NewSessionLogger creates the three log files for traceID under
// cfg.Log.Dir/{api_log,pipeline,human_log}, each named
// "<timestamp>_<traceID>.<ext>".
func NewSessionLogger(cfg *config.Config, traceID string) (*SessionLogger, error) {
	now := time.Now().UTC()
	ts := now.Format("20060102_150405")

	apiDir := filepath.Join(cfg.Log.Dir, "api_log")
	pipelineDir := filepath.Join(cfg.Log.Dir, "pipeline")
	humanDir := filepath.Join(cfg.Log.Dir, "human_log")
	for _, d := range []string{apiDir, pipelineDir, humanDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create dir %s: %w", d, err)
		}
	}

	redacted := make(map[string]bool, len(redactedFields))
	for _, k := range redactedFields {
		redacted[k] = true
	}

	sl := &SessionLogger{
		traceID:      traceID,
		start:        now,
		apiPath:      filepath.Join(apiDir, fmt.Sprintf("%s_%s.jsonl", ts, traceID)),
		pipelinePath: filepath.Join(pipelineDir, fmt.Sprintf("%s_%s.jsonl", ts, traceID)),
		humanPath:    filepath.Join(humanDir, fmt.Sprintf("%s_%s.md", ts, traceID)),
		sampleN:      cfg.Log.ChunkSampleN,
		sampleCap:    cfg.Log.ChunkSampleCap,
		chunkSeen:    make(map[string]int),
		redactedKeys: redacted,
	}
	if sl.sampleN <= 0 {
		sl.sampleN = 20
	}
	if sl.sampleCap <= 0 {
		sl.sampleCap = 200
	}
	if err := sl.writeHumanHeader(); err != nil {
		return nil, err
	}
	return sl, nil
}

func (sl *SessionLogger) redact(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if sl.redactedKeys[k] {
			if s, ok := v.(string); ok {
				out[k] = fmt.Sprintf("<redacted %d chars>", len(s))
				continue
			}
		}
		out[k] = v
	}
	return out
}

// LogAPI appends one REQUEST/RESPONSE_HEADERS/RESPONSE_CHUNK/
// RESPONSE_SUMMARY/TOOLS_EXECUTION/SESSION_END record to api_log.
// Streaming chunk records are sampled per label: the first, every Nth
// and the sampleCap-th chunk are kept, and chunks past the sampleCap-th
// are dropped. The stream's final chunk is kept only when it falls on
// one of those positions.
func (sl *SessionLogger) LogAPI(section, label string, payload map[string]interface{}) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if strings.HasPrefix(section, "RESPONSE_CHUNK") {
		seen := sl.chunkSeen[label] + 1
		sl.chunkSeen[label] = seen
		if seen > sl.sampleCap {
			return
		}
		if seen != 1 && seen%sl.sampleN != 0 && seen != sl.sampleCap {
			return
		}
	}

	record := map[string]interface{}{
		"section":  section,
		"label":    label,
		"payload":  sl.redact(payload),
		"trace_id": sl.traceID,
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
	}
	sl.appendJSONL(sl.apiPath, record)
}

// LogPipeline appends a stage-level event with uptime_ms attached.
func (sl *SessionLogger) LogPipeline(stage string, event map[string]interface{}) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	record := map[string]interface{}{
		"stage":      stage,
		"event":      event,
		"trace_id":   sl.traceID,
		"uptime_ms":  time.Since(sl.start).Milliseconds(),
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
	}
	sl.appendJSONL(sl.pipelinePath, record)
}

func (sl *SessionLogger) appendJSONL(path string, record map[string]interface{}) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("logging: open jsonl failed", "path", path, "error", err)
		return
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	if err := enc.Encode(record); err != nil {
		slog.Warn("logging: encode jsonl failed", "path", path, "error", err)
	}
}

func (sl *SessionLogger) writeHumanHeader() error {
	f, err := os.OpenFile(sl.humanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open human log: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "# Review session %s\n\nstarted %s\n\n", sl.traceID, sl.start.Format(time.RFC3339))
	return err
}

// AppendHuman appends one Markdown section to the human-readable
// session summary.
func (sl *SessionLogger) AppendHuman(heading, body string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	f, err := os.OpenFile(sl.humanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("logging: open human log failed", "error", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "## %s\n\n%s\n\n", heading, body)
}

// TraceID returns the session's opaque correlation id.
func (sl *SessionLogger) TraceID() string { return sl.traceID }
