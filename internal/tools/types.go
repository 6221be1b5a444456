// Package tools provides the per-role tool sets exposed to agents.
// Static tools wrap the market data vendor adapters and are the
// baseline contract; discovered tools add coverage on top and never
// override a static name.
package tools

import (
	"context"
	"encoding/json"
	"errors"

	"tradenerd/internal/types"
)

// Origin tells where a descriptor came from.
type Origin string

const (
	OriginStatic     Origin = "static"
	OriginDiscovered Origin = "discovered"
)

var (
	ErrToolNameEmpty      = errors.New("tool name is empty")
	ErrToolExecuteNil     = errors.New("tool execute function is nil")
	ErrToolNotFound       = errors.New("tool not found")
	ErrMissingRequiredArg = errors.New("missing required argument")
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// Schema defines the JSON schema for tool arguments.
type Schema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for static tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Descriptor is one callable tool in a merged per-role set. Static
// descriptors carry an Execute func; discovered descriptors carry the
// server they were listed by and are invoked over that connection.
type Descriptor struct {
	Name        string
	Description string
	Origin      Origin

	// Static tools.
	Execute ExecuteFunc
	Schema  Schema

	// Discovered tools.
	Server    string
	RawSchema json.RawMessage

	// Available is false when the origin server has since gone away.
	Available bool
}

// Validate checks if the descriptor is well-formed.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return ErrToolNameEmpty
	}
	if d.Origin == OriginStatic && d.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Definition converts the descriptor to the wire shape the reasoning
// capability consumes.
func (d *Descriptor) Definition() types.ToolDefinition {
	def := types.ToolDefinition{
		Name:        d.Name,
		Description: d.Description,
	}
	if d.Origin == OriginDiscovered {
		var schema map[string]interface{}
		if len(d.RawSchema) > 0 {
			_ = json.Unmarshal(d.RawSchema, &schema)
		}
		def.InputSchema = schema
		return def
	}

	props := make(map[string]interface{}, len(d.Schema.Properties))
	for name, p := range d.Schema.Properties {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	required := d.Schema.Required
	if required == nil {
		required = []string{}
	}
	def.InputSchema = map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	return def
}

// Definitions maps a descriptor set to tool definitions in order.
func Definitions(set []*Descriptor) []types.ToolDefinition {
	defs := make([]types.ToolDefinition, 0, len(set))
	for _, d := range set {
		defs = append(defs, d.Definition())
	}
	return defs
}

// Result wraps the outcome of one tool execution.
type Result struct {
	ToolName   string
	Output     string
	Error      error
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *Result) IsSuccess() bool {
	return r.Error == nil
}
