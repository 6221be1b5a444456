// Package mcp implements a Model Context Protocol client used to
// discover external tools at session start. Discovery is best-effort:
// a failed server degrades the tool set, it never fails the session.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrDiscoveryFailure marks a server that could not be reached or
// queried during tool discovery. Callers absorb it and fall back to the
// static tool set.
var ErrDiscoveryFailure = errors.New("tool discovery failure")

// ToolSchema is the raw tool description returned by an MCP server.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// CallResult is the outcome of invoking a discovered tool.
type CallResult struct {
	Success   bool            `json:"success"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMs int64           `json:"latency_ms"`
}

// Transport abstracts the wire protocol to one MCP server.
type Transport interface {
	// Connect establishes connection to the MCP server.
	Connect(ctx context.Context) error

	// Disconnect closes the connection.
	Disconnect() error

	// ListTools retrieves available tools from the server.
	ListTools(ctx context.Context) ([]ToolSchema, error)

	// CallTool invokes a tool on the MCP server.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error)

	// IsConnected returns current connection status.
	IsConnected() bool
}

// jsonrpc wire types shared by the transports.

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const protocolVersion = "2024-11-05"

func initializeParams() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    "tradenerd",
			"version": "1.0.0",
		},
	}
}
