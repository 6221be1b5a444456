// Package agent wraps single calls to the external reasoning
// capability. The adapter packages role, prompt context, tools, and
// memory context, runs a bounded tool loop, and validates the
// structured output before handing it back. Malformed output is a
// reported error, never coerced.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradenerd/internal/logging"
	"tradenerd/internal/tools"
	"tradenerd/internal/types"
)

// ErrInvocationFailure marks a reasoning call that errored, timed out,
// or returned malformed structured output. It is not retried here; the
// phase controller owns failure policy.
var ErrInvocationFailure = errors.New("invocation failure")

// maxToolIterations bounds the tool loop within one invocation.
const maxToolIterations = 5

// ToolExecutor runs one tool call against a merged descriptor set.
type ToolExecutor interface {
	ExecuteDescriptor(ctx context.Context, d *tools.Descriptor, args map[string]any) (*tools.Result, error)
}

// Output is the validated result of one invocation.
type Output struct {
	Text    string
	Control *types.ControlPacket // nil when no trailer was emitted
}

// Invoker adapts role invocations onto the two configured models.
type Invoker struct {
	quick    types.LLMClient
	deep     types.LLMClient
	executor ToolExecutor
	timeout  time.Duration
}

// NewInvoker creates an invoker. The deep client handles judge and
// decision roles; everything else runs on the quick client.
func NewInvoker(quick, deep types.LLMClient, executor ToolExecutor, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Invoker{quick: quick, deep: deep, executor: executor, timeout: timeout}
}

// clientFor picks the model tier for a role.
func (inv *Invoker) clientFor(role types.Role) types.LLMClient {
	switch role {
	case types.RoleResearchManager, types.RoleRiskManager:
		return inv.deep
	}
	return inv.quick
}

// Invoke performs one reasoning call for a role. When the model
// requests tool calls they are resolved against the supplied
// descriptor set and executed, bounded by maxToolIterations; a tool
// call that references a descriptor not in the set is an
// ErrInvocationFailure.
func (inv *Invoker) Invoke(ctx context.Context, role types.Role, systemPrompt, userPrompt string, toolset []*tools.Descriptor) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	client := inv.clientFor(role)
	defs := tools.Definitions(toolset)

	prompt := userPrompt
	for iteration := 0; ; iteration++ {
		resp, err := client.CompleteWithTools(ctx, systemPrompt, prompt, defs)
		if err != nil {
			return nil, fmt.Errorf("%w: role %s: %v", ErrInvocationFailure, role, err)
		}

		if len(resp.ToolCalls) == 0 {
			return inv.finish(role, resp.Text)
		}
		if iteration >= maxToolIterations {
			return nil, fmt.Errorf("%w: role %s exceeded %d tool iterations", ErrInvocationFailure, role, maxToolIterations)
		}

		results, err := inv.runToolCalls(ctx, role, toolset, resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		prompt = prompt + "\n\n" + results
	}
}

// runToolCalls validates and executes the model's tool requests,
// rendering results back into prompt text.
func (inv *Invoker) runToolCalls(ctx context.Context, role types.Role, toolset []*tools.Descriptor, calls []types.ToolCall) (string, error) {
	var b strings.Builder
	b.WriteString("Tool results:\n")
	for _, call := range calls {
		d := tools.Find(toolset, call.Name)
		if d == nil {
			return "", fmt.Errorf("%w: role %s requested unknown tool %q", ErrInvocationFailure, role, call.Name)
		}
		if inv.executor == nil {
			return "", fmt.Errorf("%w: no tool executor configured but %s requested %q", ErrInvocationFailure, role, call.Name)
		}

		res, err := inv.executor.ExecuteDescriptor(ctx, d, call.Input)
		if err != nil {
			// Tool failure is data the model can reason about, not an
			// invocation failure.
			logging.Get(logging.CategoryAPI).Warn("Tool %s failed for %s: %v", call.Name, role, err)
			fmt.Fprintf(&b, "### %s\nerror: %v\n", call.Name, err)
			continue
		}
		fmt.Fprintf(&b, "### %s\n%s\n", call.Name, res.Output)
	}
	return b.String(), nil
}

// finish validates the terminal text and extracts the control trailer.
func (inv *Invoker) finish(role types.Role, text string) (*Output, error) {
	body, control := splitControlPacket(text)
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: role %s returned empty text", ErrInvocationFailure, role)
	}
	logging.APIDebug("Invocation for %s produced %d chars (aligned=%v)", role, len(body), control != nil && control.Aligned)
	return &Output{Text: body, Control: control}, nil
}

// splitControlPacket extracts a trailing JSON control object from the
// response text. The packet must be the final element of the response
// and must carry an explicit "aligned" field; anything else is treated
// as prose.
func splitControlPacket(text string) (string, *types.ControlPacket) {
	trimmed := strings.TrimSpace(text)
	idx := strings.LastIndex(trimmed, "{")
	if idx < 0 || !strings.HasSuffix(trimmed, "}") {
		return text, nil
	}

	candidate := trimmed[idx:]
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return text, nil
	}
	if _, ok := probe["aligned"]; !ok {
		return text, nil
	}

	var packet types.ControlPacket
	if err := json.Unmarshal([]byte(candidate), &packet); err != nil {
		return text, nil
	}
	return strings.TrimSpace(trimmed[:idx]), &packet
}
