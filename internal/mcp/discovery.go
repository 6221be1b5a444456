package mcp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tradenerd/internal/logging"
)

// ServerSpec describes one configured MCP server.
type ServerSpec struct {
	Name      string
	Endpoint  string
	Transport string // "http" or "stdio"
	Timeout   time.Duration
}

// DiscoveredTool is a tool listed by a reachable server, tagged with
// the server it came from.
type DiscoveredTool struct {
	Server string
	Schema ToolSchema
}

// Manager owns the connections opened during discovery so that
// discovered tools stay invocable for the life of the session.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]Transport
}

// NewManager creates an empty connection manager.
func NewManager() *Manager {
	return &Manager{connections: make(map[string]Transport)}
}

// Discover connects to every server and lists its tools. Server order
// is name-sorted so repeated discovery yields the same tool order.
//
// Partial failure is expected: tools from reachable servers are
// returned alongside an error wrapping ErrDiscoveryFailure for the
// rest. Callers absorb the error and work with what was found.
func (m *Manager) Discover(ctx context.Context, servers []ServerSpec) ([]DiscoveredTool, error) {
	sorted := make([]ServerSpec, len(servers))
	copy(sorted, servers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var tools []DiscoveredTool
	var failed []string

	for _, spec := range sorted {
		found, err := m.discoverServer(ctx, spec)
		if err != nil {
			logging.Get(logging.CategoryTools).Warn("Discovery failed for server %s: %v", spec.Name, err)
			failed = append(failed, spec.Name)
			continue
		}
		tools = append(tools, found...)
	}

	logging.Tools("Discovery complete: %d tools from %d/%d servers",
		len(tools), len(sorted)-len(failed), len(sorted))

	if len(failed) > 0 {
		return tools, fmt.Errorf("%w: servers %v unreachable", ErrDiscoveryFailure, failed)
	}
	return tools, nil
}

func (m *Manager) discoverServer(ctx context.Context, spec ServerSpec) ([]DiscoveredTool, error) {
	var transport Transport
	switch spec.Transport {
	case "http":
		transport = NewHTTPTransport(spec.Endpoint, spec.Timeout)
	case "stdio":
		transport = NewStdioTransport(spec.Endpoint)
	default:
		return nil, fmt.Errorf("unsupported transport: %s", spec.Transport)
	}

	if err := transport.Connect(ctx); err != nil {
		return nil, err
	}

	schemas, err := transport.ListTools(ctx)
	if err != nil {
		_ = transport.Disconnect()
		return nil, err
	}

	m.mu.Lock()
	if old, ok := m.connections[spec.Name]; ok {
		_ = old.Disconnect()
	}
	m.connections[spec.Name] = transport
	m.mu.Unlock()

	tools := make([]DiscoveredTool, 0, len(schemas))
	for _, schema := range schemas {
		tools = append(tools, DiscoveredTool{Server: spec.Name, Schema: schema})
	}
	return tools, nil
}

// Call invokes a discovered tool on its origin server.
func (m *Manager) Call(ctx context.Context, server, tool string, args map[string]interface{}) (*CallResult, error) {
	m.mu.RLock()
	transport, ok := m.connections[server]
	m.mu.RUnlock()

	if !ok || !transport.IsConnected() {
		return &CallResult{
			Success: false,
			Error:   fmt.Sprintf("MCP server %s is not connected", server),
		}, nil
	}
	return transport.CallTool(ctx, tool, args)
}

// Close disconnects all servers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, transport := range m.connections {
		if err := transport.Disconnect(); err != nil {
			logging.Get(logging.CategoryTools).Warn("Error disconnecting from %s: %v", name, err)
		}
		delete(m.connections, name)
	}
}
