package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"tradenerd/internal/logging"
)

// StdioTransport implements Transport over a subprocess speaking
// line-delimited JSON-RPC on stdin/stdout.
type StdioTransport struct {
	mu sync.RWMutex

	command string
	args    []string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser

	connected bool

	pendingReqs map[int]chan *rpcResponse
	nextID      int

	wg sync.WaitGroup
}

// NewStdioTransport creates a transport that launches the given command
// line. The endpoint string is split on whitespace into command + args.
func NewStdioTransport(endpoint string) *StdioTransport {
	parts := strings.Fields(endpoint)
	var cmd string
	var args []string
	if len(parts) > 0 {
		cmd = parts[0]
		args = parts[1:]
	}

	return &StdioTransport{
		command:     cmd,
		args:        args,
		pendingReqs: make(map[int]chan *rpcResponse),
		nextID:      1,
	}
}

// Connect starts the subprocess, the reader loops, and performs the
// initialize handshake.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	if t.command == "" {
		t.mu.Unlock()
		return fmt.Errorf("empty command for stdio transport")
	}

	t.cmd = exec.Command(t.command, t.args...)

	var err error
	if t.stdin, err = t.cmd.StdinPipe(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	if t.stdout, err = t.cmd.StdoutPipe(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if t.stderr, err = t.cmd.StderrPipe(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := t.cmd.Start(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to start command %s: %w", t.command, err)
	}

	t.connected = true
	t.wg.Add(2)
	go t.readStderr()
	go t.readStdout()
	t.mu.Unlock()

	// Handshake must run without holding the lock: the stdout reader
	// needs the lock to dispatch the response.
	if _, err := t.call(ctx, "initialize", initializeParams()); err != nil {
		_ = t.Disconnect()
		return fmt.Errorf("initialize handshake failed for %s: %w", t.command, err)
	}
	t.notifyInitialized()

	logging.Tools("MCP stdio transport connected: %s", t.command)
	return nil
}

// notifyInitialized sends the post-handshake notification. No response
// is expected.
func (t *StdioTransport) notifyInitialized() {
	notification := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "notifications/initialized",
	}
	data, _ := json.Marshal(notification)
	t.mu.Lock()
	if t.stdin != nil {
		_, _ = t.stdin.Write(append(data, '\n'))
	}
	t.mu.Unlock()
}

// Disconnect kills the subprocess and cleans up pending requests.
func (t *StdioTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false

	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	for id, ch := range t.pendingReqs {
		close(ch)
		delete(t.pendingReqs, id)
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		logging.Get(logging.CategoryTools).Warn("Timeout waiting for stdio transport goroutines to exit")
	}

	logging.ToolsDebug("MCP stdio transport disconnected: %s", t.command)
	return nil
}

func (t *StdioTransport) readStderr() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		logging.ToolsDebug("[%s stderr] %s", t.command, scanner.Text())
	}
}

// readStdout dispatches JSON-RPC responses to waiting callers.
func (t *StdioTransport) readStdout() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw map[string]interface{}
		if err := json.Unmarshal(line, &raw); err != nil {
			logging.Get(logging.CategoryTools).Warn("Failed to parse JSON from stdout: %v", err)
			continue
		}

		idVal, ok := raw["id"]
		if !ok {
			// Server notification; nothing routes on these.
			logging.ToolsDebug("MCP notification: %s", string(line))
			continue
		}
		idNum, ok := idVal.(float64)
		if !ok {
			continue
		}
		id := int(idNum)

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			logging.Get(logging.CategoryTools).Warn("Failed to unmarshal response: %v", err)
			continue
		}

		t.mu.Lock()
		ch, exists := t.pendingReqs[id]
		if exists {
			delete(t.pendingReqs, id)
			ch <- &resp
		} else {
			logging.Get(logging.CategoryTools).Warn("Received response for unknown ID: %d", id)
		}
		t.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		t.mu.RLock()
		connected := t.connected
		t.mu.RUnlock()
		if connected {
			logging.Get(logging.CategoryTools).Error("Error reading stdout: %v", err)
		}
	}
}

// call sends a request and waits for the matching response.
func (t *StdioTransport) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("not connected to MCP server")
	}

	id := t.nextID
	t.nextID++

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	ch := make(chan *rpcResponse, 1)
	t.pendingReqs[id] = ch

	data, err := json.Marshal(req)
	if err != nil {
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to write to stdin: %w", err)
	}
	t.mu.Unlock()

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// ListTools retrieves available tools from the server.
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
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
	return result.Tools, nil
}

// CallTool invokes a tool on the MCP server.
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error) {
	start := time.Now()
	resp, err := t.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		return &CallResult{Success: false, Error: err.Error(), LatencyMs: latencyMs}, nil
	}
	return &CallResult{Success: true, Output: resp.Result, LatencyMs: latencyMs}, nil
}

// IsConnected returns current connection status.
func (t *StdioTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Ensure StdioTransport implements Transport.
var _ Transport = (*StdioTransport)(nil)
