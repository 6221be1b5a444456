package types

import (
	"context"
)

// LLMClient defines the interface for the external reasoning capability.
// Implementations are pure boundary adapters: they package a prompt and
// return text plus any tool invocations the model requested.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteWithTools sends a prompt with tool definitions and returns
	// the response together with requested tool calls.
	CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []ToolDefinition) (*LLMToolResponse, error)
}

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string                 `json:"id"`    // Unique ID for this tool use
	Name  string                 `json:"name"`  // Tool name to invoke
	Input map[string]interface{} `json:"input"` // Tool arguments
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ControlPacket is the structured trailer an agent turn emits under
// structured-output instructions. Aligned is the explicit convergence
// signal that ends a debate early; it is never inferred from prose.
type ControlPacket struct {
	Aligned bool   `json:"aligned"`
	Action  string `json:"action,omitempty"` // BUY/SELL/HOLD when the role decides
}

// LLMToolResponse contains both text response and tool calls from the LLM.
type LLMToolResponse struct {
	Text       string        `json:"text"`        // Text response (may be empty if only tool calls)
	ToolCalls  []ToolCall    `json:"tool_calls"`  // Tool invocations requested by LLM
	StopReason string        `json:"stop_reason"` // "end_turn", "tool_use", etc.
	Usage      UsageMetadata `json:"usage"`       // Token usage metrics
}
