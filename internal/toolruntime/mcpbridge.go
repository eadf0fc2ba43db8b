package toolruntime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pr-review-automation/internal/metrics"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPBridge forwards tool calls to one external MCP server, registering
// its advertised tools into a Registry under an optional name prefix.
// Reconnection is deduplicated via singleflight and gated by a circuit
// breaker, so a flapping server degrades to denied calls rather than
// stalling every concurrent caller.
type MCPBridge struct {
	endpoint   string
	token      string
	authHeader string
	prefix     string

	mu      sync.RWMutex
	session *mcp.ClientSession
	stale   bool
	circuit circuitState

	group singleflight.Group
}

type circuitState struct {
	failures  int
	openUntil time.Time
}

func (cs circuitState) isOpen() bool {
	return !cs.openUntil.IsZero() && time.Now().Before(cs.openUntil)
}

const (
	circuitFailureThreshold = 3
	circuitOpenDuration     = 30 * time.Second
)

// NewMCPBridge configures (without yet connecting to) an MCP server.
// prefix namespaces the server's tools in the Registry, e.g. "mcp_jira_".
func NewMCPBridge(endpoint, token, authHeader, prefix string) *MCPBridge {
	return &MCPBridge{endpoint: endpoint, token: token, authHeader: authHeader, prefix: prefix, stale: true}
}

// Connect establishes the session and registers every advertised tool
// with r under the bridge's prefix.
func (b *MCPBridge) Connect(ctx context.Context, r *Registry) error {
	session, err := b.getOrReconnect(ctx)
	if err != nil {
		return err
	}
	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return fmt.Errorf("mcpbridge: list tools: %w", err)
	}
	for _, t := range tools.Tools {
		name := t.Name
		r.Register(b.prefix+name, b.callHandler(name))
	}
	return nil
}

func (b *MCPBridge) callHandler(toolName string) Handler {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		session, err := b.getOrReconnect(ctx)
		if err != nil {
			metrics.MCPToolCalls.WithLabelValues(b.prefix, toolName, "circuit_breaker").Inc()
			return nil, err
		}
		result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: args})
		if err != nil {
			b.recordFailure()
			metrics.MCPToolCalls.WithLabelValues(b.prefix, toolName, "error").Inc()
			return nil, fmt.Errorf("mcpbridge: call %s: %w", toolName, err)
		}
		metrics.MCPToolCalls.WithLabelValues(b.prefix, toolName, "ok").Inc()
		return result, nil
	}
}

func (b *MCPBridge) getOrReconnect(ctx context.Context) (*mcp.ClientSession, error) {
	b.mu.RLock()
	session, stale, circuit := b.session, b.stale, b.circuit
	b.mu.RUnlock()

	if circuit.isOpen() {
		return nil, fmt.Errorf("mcpbridge: circuit open, retry after %v", time.Until(circuit.openUntil))
	}
	if session != nil && !stale {
		return session, nil
	}

	val, err, _ := b.group.Do(b.endpoint, func() (interface{}, error) {
		b.mu.RLock()
		session, stale := b.session, b.stale
		b.mu.RUnlock()
		if session != nil && !stale {
			return session, nil
		}
		return b.reconnect(ctx)
	})
	if err != nil {
		b.recordFailure()
		return nil, err
	}
	return val.(*mcp.ClientSession), nil
}

func (b *MCPBridge) reconnect(ctx context.Context) (*mcp.ClientSession, error) {
	slog.Info("mcpbridge: connecting", "endpoint", b.endpoint)
	transport, err := b.newTransport(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcpbridge: transport: %w", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "pr-review-automation", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpbridge: connect: %w", err)
	}
	b.mu.Lock()
	b.session = session
	b.stale = false
	b.circuit = circuitState{}
	b.mu.Unlock()
	return session, nil
}

func (b *MCPBridge) newTransport(ctx context.Context) (mcp.Transport, error) {
	switch {
	case strings.HasPrefix(b.endpoint, "stdio://"):
		parts := strings.Fields(strings.TrimPrefix(b.endpoint, "stdio://"))
		if len(parts) == 0 {
			return nil, fmt.Errorf("empty stdio command")
		}
		return &mcp.CommandTransport{Command: exec.CommandContext(ctx, parts[0], parts[1:]...)}, nil
	case strings.HasPrefix(b.endpoint, "http://"), strings.HasPrefix(b.endpoint, "https://"):
		return &mcp.SSEClientTransport{
			Endpoint:   b.endpoint,
			HTTPClient: &http.Client{Transport: &tokenRoundTripper{token: b.token, authHeader: b.authHeader}},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported mcp endpoint scheme: %s", b.endpoint)
	}
}

func (b *MCPBridge) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stale = true
	b.circuit.failures++
	if b.circuit.failures >= circuitFailureThreshold {
		b.circuit.openUntil = time.Now().Add(circuitOpenDuration)
		slog.Warn("mcpbridge: circuit opened", "endpoint", b.endpoint, "failures", b.circuit.failures)
	}
}

type tokenRoundTripper struct {
	token      string
	authHeader string
}

func (t *tokenRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		if t.authHeader != "" {
			req.Header.Set(t.authHeader, t.token)
		} else {
			req.Header.Set("Authorization", "Bearer "+t.token)
		}
	}
	return http.DefaultTransport.RoundTrip(req)
}
