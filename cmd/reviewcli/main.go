package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pr-review-automation/internal/config"
	"pr-review-automation/internal/domain"
	"pr-review-automation/internal/kernel"
	"pr-review-automation/internal/logging"
)

func main() {
	var (
		prompt        = flag.String("prompt", "Review this change for correctness, security, and style.", "instruction given to the reviewer agent")
		projectRoot   = flag.String("project-root", ".", "path to the git working tree to review")
		diffMode      = flag.String("diff-mode", "auto", "auto|working|staged|pr|commit")
		commitFrom    = flag.String("commit-from", "", "base commit/ref for diff-mode=commit")
		commitTo      = flag.String("commit-to", "", "target commit/ref for diff-mode=commit (default HEAD)")
		baseBranch    = flag.String("base-branch", "", "base branch for diff-mode=pr, overrides config")
		agentsFlag    = flag.String("agents", "", "comma-separated subset of intent,planner,reviewer (default: all)")
		toolNames     = flag.String("tools", "", "comma-separated allow-list of tool names (default: all builtins)")
		autoApprove   = flag.Bool("auto-approve", true, "auto-approve every tool call without an interactive gate")
		llmPreference = flag.String("llm", "", "auto|<provider>:<model> override for intent/reviewer calls")
		metricsAddr   = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
		quiet         = flag.Bool("quiet", false, "suppress streamed event output, print only the final report")
		staticScan    = flag.Bool("static-scan", false, "run the configured background static scanners alongside the review")
	)
	flag.Parse()

	cfg := config.LoadConfig()
	if *baseBranch != "" {
		cfg.Diff.BaseBranch = *baseBranch
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, logCleanup := logging.NewLogger(cfg)
	defer logCleanup()
	slog.SetDefault(logger)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req := domain.ReviewRequest{
		Prompt:           *prompt,
		ProjectRoot:      *projectRoot,
		DiffMode:         domain.DiffMode(*diffMode),
		CommitFrom:       *commitFrom,
		CommitTo:         *commitTo,
		LLMPreference:    *llmPreference,
		AutoApprove:      *autoApprove,
		Agents:           parseAgents(*agentsFlag),
		ToolNames:        splitCSV(*toolNames),
		EnableStaticScan: *staticScan,
	}
	if !*quiet {
		req.StreamCallback = printEvent
	}

	k := kernel.New(cfg)
	report, err := k.Run(ctx, req)
	if err != nil {
		slog.Error("review session failed", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	if report.Title != "" {
		fmt.Printf("# %s\n\n", report.Title)
	}
	fmt.Println(report.Summary)
	if len(report.Comments) > 0 {
		fmt.Println()
		for _, c := range report.Comments {
			fmt.Printf("- [%s] %s:%d — %s\n", c.Severity, c.File, c.Line, c.Comment)
		}
	}
}

func parseAgents(s string) []domain.AgentKind {
	names := splitCSV(s)
	if len(names) == 0 {
		return nil
	}
	out := make([]domain.AgentKind, 0, len(names))
	for _, n := range names {
		out = append(out, domain.AgentKind(n))
	}
	return out
}

func splitCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// printEvent renders one kernel event per line as compact JSON, so the
// CLI can be piped into jq or a log collector.
func printEvent(event map[string]interface{}) {
	b, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stdout, string(b))
}
