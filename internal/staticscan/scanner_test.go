package staticscan

import (
	"context"
	"sync"
	"testing"
	"time"

	"pr-review-automation/internal/eventbus"
	"pr-review-automation/internal/fallback"
)

func collectEvents(bus *eventbus.Bus) *eventsSink {
	sink := &eventsSink{}
	bus.Subscribe(sink.add)
	return sink
}

type eventsSink struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (s *eventsSink) add(e map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventsSink) statuses(scanner string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if e["scanner"] == scanner {
			out = append(out, e["status"].(string))
		}
	}
	return out
}

func TestRun_EmptyScannersIsNoop(t *testing.T) {
	bus := eventbus.New(nil)
	sink := collectEvents(bus)
	Run(context.Background(), nil, t.TempDir(), bus, fallback.New())
	if len(sink.events) != 0 {
		t.Errorf("expected no events for empty scanner list, got %+v", sink.events)
	}
}

func TestRun_MissingBinaryRecordsFallbackAndErrorEvent(t *testing.T) {
	bus := eventbus.New(nil)
	sink := collectEvents(bus)
	fb := fallback.New()
	Run(context.Background(), []Scanner{{Name: "ghost", Argv: []string{"definitely-not-a-real-binary-xyz"}}}, t.TempDir(), bus, fb)

	got := sink.statuses("ghost")
	if len(got) != 2 || got[0] != "start" || got[1] != "error" {
		t.Fatalf("expected [start error], got %v", got)
	}
	if fb.Empty() {
		t.Errorf("expected a fallback record for the missing scanner binary")
	}
}

func TestRun_SuccessfulScannerEmitsCompleteWithIssueCount(t *testing.T) {
	bus := eventbus.New(nil)
	sink := collectEvents(bus)
	Run(context.Background(), []Scanner{{
		Name: "echoer",
		Argv: []string{"sh", "-c", "printf 'issue1\\nissue2\\n'"},
	}}, t.TempDir(), bus, fallback.New())

	got := sink.statuses("echoer")
	if len(got) != 2 || got[0] != "start" || got[1] != "complete" {
		t.Fatalf("expected [start complete], got %v", got)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, e := range sink.events {
		if e["status"] == "complete" {
			if e["issue_count"] != 2 {
				t.Errorf("expected issue_count=2, got %v", e["issue_count"])
			}
		}
	}
}

func TestRun_RunsScannersConcurrently(t *testing.T) {
	bus := eventbus.New(nil)
	sink := collectEvents(bus)
	start := time.Now()
	Run(context.Background(), []Scanner{
		{Name: "a", Argv: []string{"sh", "-c", "sleep 0.2"}},
		{Name: "b", Argv: []string{"sh", "-c", "sleep 0.2"}},
	}, t.TempDir(), bus, fallback.New())
	elapsed := time.Since(start)
	if elapsed > 350*time.Millisecond {
		t.Errorf("expected concurrent execution to take ~0.2s, took %s", elapsed)
	}
	if len(sink.statuses("a")) != 2 || len(sink.statuses("b")) != 2 {
		t.Errorf("expected both scanners to complete")
	}
}

func TestRun_ContextCancellationStopsScanner(t *testing.T) {
	bus := eventbus.New(nil)
	fb := fallback.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Run(ctx, []Scanner{{Name: "a", Argv: []string{"sh", "-c", "sleep 5"}}}, t.TempDir(), bus, fb)
}
