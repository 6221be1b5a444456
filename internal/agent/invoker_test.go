package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"tradenerd/internal/tools"
	"tradenerd/internal/types"
)

// scriptedClient replays canned responses in order.
type scriptedClient struct {
	responses []*types.LLMToolResponse
	errs      []error
	calls     int
	prompts   []string
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.CompleteWithTools(ctx, "", prompt, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return c.Complete(ctx, user)
}

func (c *scriptedClient) CompleteWithTools(ctx context.Context, system, user string, defs []types.ToolDefinition) (*types.LLMToolResponse, error) {
	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, user)
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.responses) {
		return &types.LLMToolResponse{Text: "fallthrough response"}, nil
	}
	return c.responses[i], nil
}

// recordingExecutor runs tools by name against canned outputs.
type recordingExecutor struct {
	outputs  map[string]string
	failWith error
	executed []string
}

func (e *recordingExecutor) ExecuteDescriptor(ctx context.Context, d *tools.Descriptor, args map[string]any) (*tools.Result, error) {
	e.executed = append(e.executed, d.Name)
	if e.failWith != nil {
		return nil, e.failWith
	}
	return &tools.Result{ToolName: d.Name, Output: e.outputs[d.Name]}, nil
}

func textResponse(text string) *types.LLMToolResponse {
	return &types.LLMToolResponse{Text: text, StopReason: "end_turn"}
}

func toolResponse(calls ...types.ToolCall) *types.LLMToolResponse {
	return &types.LLMToolResponse{ToolCalls: calls, StopReason: "tool_use"}
}

func descriptor(name string) *tools.Descriptor {
	return &tools.Descriptor{
		Name:      name,
		Origin:    tools.OriginStatic,
		Available: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		},
	}
}

func TestInvokePlainText(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{textResponse("the market looks strong")}}
	inv := NewInvoker(client, client, nil, 0)

	out, err := inv.Invoke(context.Background(), types.RoleBull, "system", "user", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Text != "the market looks strong" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.Control != nil {
		t.Errorf("Control = %+v, want nil without a trailer", out.Control)
	}
}

func TestInvokeParsesControlTrailer(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		textResponse("I concede the bear case.\n{\"aligned\": true, \"action\": \"HOLD\"}"),
	}}
	inv := NewInvoker(client, client, nil, 0)

	out, err := inv.Invoke(context.Background(), types.RoleBull, "system", "user", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Control == nil || !out.Control.Aligned || out.Control.Action != "HOLD" {
		t.Errorf("Control = %+v, want aligned HOLD", out.Control)
	}
	if strings.Contains(out.Text, "aligned") {
		t.Errorf("trailer not stripped from body: %q", out.Text)
	}
}

func TestInvokeEmptyTextIsFailure(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{textResponse("   ")}}
	inv := NewInvoker(client, client, nil, 0)

	_, err := inv.Invoke(context.Background(), types.RoleBear, "system", "user", nil)
	if !errors.Is(err, ErrInvocationFailure) {
		t.Errorf("error = %v, want ErrInvocationFailure", err)
	}
}

func TestInvokeClientErrorIsFailure(t *testing.T) {
	client := &scriptedClient{errs: []error{fmt.Errorf("connection reset")}}
	inv := NewInvoker(client, client, nil, 0)

	_, err := inv.Invoke(context.Background(), types.RoleBear, "system", "user", nil)
	if !errors.Is(err, ErrInvocationFailure) {
		t.Errorf("error = %v, want ErrInvocationFailure", err)
	}
}

func TestInvokeToolLoop(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{ID: "1", Name: "get_stock_data", Input: map[string]any{"symbol": "NVDA"}}),
		textResponse("report built from price history"),
	}}
	executor := &recordingExecutor{outputs: map[string]string{"get_stock_data": "ohlcv rows"}}
	inv := NewInvoker(client, client, executor, 0)
	toolset := []*tools.Descriptor{descriptor("get_stock_data")}

	out, err := inv.Invoke(context.Background(), types.RoleMarketAnalyst, "system", "user", toolset)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Text != "report built from price history" {
		t.Errorf("Text = %q", out.Text)
	}
	if len(executor.executed) != 1 || executor.executed[0] != "get_stock_data" {
		t.Errorf("executed tools = %v", executor.executed)
	}
	// The second model call sees the tool output.
	if len(client.prompts) != 2 || !strings.Contains(client.prompts[1], "ohlcv rows") {
		t.Errorf("tool output missing from followup prompt: %v", client.prompts)
	}
}

func TestInvokeUnknownToolIsFailure(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{ID: "1", Name: "not_offered"}),
	}}
	inv := NewInvoker(client, client, &recordingExecutor{}, 0)

	_, err := inv.Invoke(context.Background(), types.RoleMarketAnalyst, "system", "user",
		[]*tools.Descriptor{descriptor("get_stock_data")})
	if !errors.Is(err, ErrInvocationFailure) {
		t.Errorf("error = %v, want ErrInvocationFailure", err)
	}
}

func TestInvokeToolFailureIsData(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{ID: "1", Name: "get_stock_data"}),
		textResponse("report despite vendor outage"),
	}}
	executor := &recordingExecutor{failWith: fmt.Errorf("vendor 503")}
	inv := NewInvoker(client, client, executor, 0)

	out, err := inv.Invoke(context.Background(), types.RoleMarketAnalyst, "system", "user",
		[]*tools.Descriptor{descriptor("get_stock_data")})
	if err != nil {
		t.Fatalf("tool execution failure must not fail the invocation: %v", err)
	}
	if !strings.Contains(client.prompts[1], "vendor 503") {
		t.Errorf("tool error not rendered back to the model: %q", client.prompts[1])
	}
	if out.Text != "report despite vendor outage" {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestInvokeToolIterationCap(t *testing.T) {
	// The model keeps asking for tools forever.
	var responses []*types.LLMToolResponse
	for i := 0; i < maxToolIterations+2; i++ {
		responses = append(responses, toolResponse(types.ToolCall{ID: "1", Name: "get_stock_data"}))
	}
	client := &scriptedClient{responses: responses}
	inv := NewInvoker(client, client, &recordingExecutor{}, 0)

	_, err := inv.Invoke(context.Background(), types.RoleMarketAnalyst, "system", "user",
		[]*tools.Descriptor{descriptor("get_stock_data")})
	if !errors.Is(err, ErrInvocationFailure) {
		t.Errorf("error = %v, want ErrInvocationFailure after iteration cap", err)
	}
}

func TestSplitControlPacket(t *testing.T) {
	cases := []struct {
		name        string
		in          string
		wantPacket  bool
		wantAligned bool
		wantBody    string
	}{
		{
			"trailer with aligned true",
			"My argument stands.\n{\"aligned\": true}",
			true, true, "My argument stands.",
		},
		{
			"trailer with aligned false",
			"Still disagree.\n{\"aligned\": false, \"action\": \"SELL\"}",
			true, false, "Still disagree.",
		},
		{
			"no trailer",
			"Plain prose with no JSON at all.",
			false, false, "",
		},
		{
			"json without aligned key is prose",
			"Summary follows.\n{\"sentiment\": \"bullish\"}",
			false, false, "",
		},
		{
			"malformed json is prose",
			"Broken.\n{\"aligned\": tru",
			false, false, "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, packet := splitControlPacket(tc.in)
			if (packet != nil) != tc.wantPacket {
				t.Fatalf("packet = %+v, wantPacket=%v", packet, tc.wantPacket)
			}
			if packet != nil {
				if packet.Aligned != tc.wantAligned {
					t.Errorf("Aligned = %v, want %v", packet.Aligned, tc.wantAligned)
				}
				if body != tc.wantBody {
					t.Errorf("body = %q, want %q", body, tc.wantBody)
				}
			} else if body != tc.in {
				t.Errorf("prose body altered: %q", body)
			}
		})
	}
}

func TestClientForTiers(t *testing.T) {
	quick := &scriptedClient{}
	deep := &scriptedClient{}
	inv := NewInvoker(quick, deep, nil, 0)

	deepRoles := map[types.Role]bool{types.RoleResearchManager: true, types.RoleRiskManager: true}
	for _, role := range []types.Role{
		types.RoleMarketAnalyst, types.RoleBull, types.RoleBear, types.RoleTrader,
		types.RoleRisky, types.RoleSafe, types.RoleNeutral,
		types.RoleResearchManager, types.RoleRiskManager,
	} {
		got := inv.clientFor(role)
		if deepRoles[role] && got != types.LLMClient(deep) {
			t.Errorf("clientFor(%s) should use the deep model", role)
		}
		if !deepRoles[role] && got != types.LLMClient(quick) {
			t.Errorf("clientFor(%s) should use the quick model", role)
		}
	}
}
