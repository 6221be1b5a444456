package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"tradenerd/internal/logging"
)

// HTTPTransport implements Transport over HTTP JSON-RPC.
type HTTPTransport struct {
	mu sync.RWMutex

	baseURL   string
	timeout   time.Duration
	client    *http.Client
	connected bool
}

// NewHTTPTransport creates a new HTTP transport for MCP communication.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		baseURL: baseURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Connect performs the initialize handshake to verify the server.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.call(ctx, "initialize", initializeParams()); err != nil {
		t.connected = false
		return fmt.Errorf("failed to connect to MCP server at %s: %w", t.baseURL, err)
	}

	t.connected = true
	logging.Tools("MCP HTTP transport connected to %s", t.baseURL)
	return nil
}

// Disconnect closes the connection.
func (t *HTTPTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// ListTools retrieves available tools from the server.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
	if !t.IsConnected() {
		return nil, fmt.Errorf("not connected to MCP server")
	}

	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var result struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools response: %w", err)
	}

	logging.ToolsDebug("MCP server %s returned %d tools", t.baseURL, len(result.Tools))
	return result.Tools, nil
}

// CallTool invokes a tool on the MCP server. Transport errors are
// reported inside the result so callers get latency either way.
func (t *HTTPTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error) {
	if !t.IsConnected() {
		return nil, fmt.Errorf("not connected to MCP server")
	}

	start := time.Now()
	resp, err := t.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		return &CallResult{Success: false, Error: err.Error(), LatencyMs: latencyMs}, nil
	}
	if resp.Error != nil {
		return &CallResult{Success: false, Error: resp.Error.Message, LatencyMs: latencyMs}, nil
	}
	return &CallResult{Success: true, Output: resp.Result, LatencyMs: latencyMs}, nil
}

// IsConnected returns current connection status.
func (t *HTTPTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// call makes a JSON-RPC call to the MCP server.
func (t *HTTPTransport) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", httpResp.StatusCode, string(bodyBytes))
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != nil {
		return &resp, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

// Ensure HTTPTransport implements Transport.
var _ Transport = (*HTTPTransport)(nil)
