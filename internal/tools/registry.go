package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradenerd/internal/config"
	"tradenerd/internal/dataflows"
	"tradenerd/internal/logging"
	"tradenerd/internal/mcp"
	"tradenerd/internal/types"
)

// Registry computes the merged tool set per role. The merged set is
// memoized for the registry's lifetime, which is one session: every
// turn of a role within a session sees the same tools.
type Registry struct {
	dataflows *dataflows.Client
	manager   *mcp.Manager
	discovery map[string]config.DiscoveryPolicy

	mu     sync.Mutex
	merged map[types.Role][]*Descriptor
}

// NewRegistry creates a registry for one session. The manager may be
// nil, in which case discovery is skipped entirely.
func NewRegistry(dc *dataflows.Client, manager *mcp.Manager, discovery map[string]config.DiscoveryPolicy) *Registry {
	return &Registry{
		dataflows: dc,
		manager:   manager,
		discovery: discovery,
		merged:    make(map[types.Role][]*Descriptor),
	}
}

// ToolsFor returns the merged tool set for a role. The static set is
// always present; discovered tools are unioned in with static names
// winning collisions. Discovery failure never surfaces to the caller.
// Safe for the concurrent analyst dispatch; the lock also serializes
// discovery so each role's set is computed once.
func (r *Registry) ToolsFor(ctx context.Context, role types.Role) []*Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.merged[role]; ok {
		return set
	}

	static := StaticFor(role, r.dataflows)

	discovered, err := r.discover(ctx, role)
	if err != nil {
		// Static fallback. Partial results still merge below.
		logging.Get(logging.CategoryTools).Warn("Discovery degraded for role %s: %v", role, err)
	}

	set := Merge(static, discovered)
	logging.Tools("Tool set for %s: %d static, %d discovered", role, len(static), len(set)-len(static))
	r.merged[role] = set
	return set
}

// Merge unions discovered tools into the static set. Static names win
// collisions: static tools are the baseline contract, discovered tools
// only add coverage.
func Merge(static []*Descriptor, discovered []mcp.DiscoveredTool) []*Descriptor {
	set := make([]*Descriptor, 0, len(static)+len(discovered))
	names := make(map[string]bool, len(static))
	for _, d := range static {
		set = append(set, d)
		names[d.Name] = true
	}
	for _, dt := range discovered {
		if names[dt.Schema.Name] {
			logging.ToolsDebug("Discovered tool %s collides with static tool, keeping static", dt.Schema.Name)
			continue
		}
		names[dt.Schema.Name] = true
		set = append(set, &Descriptor{
			Name:        dt.Schema.Name,
			Description: dt.Schema.Description,
			Origin:      OriginDiscovered,
			Server:      dt.Server,
			RawSchema:   dt.Schema.InputSchema,
			Available:   true,
		})
	}
	return set
}

// discover lists tools from the role's configured servers. Returns
// whatever was found plus a wrapped ErrDiscoveryFailure for the rest.
func (r *Registry) discover(ctx context.Context, role types.Role) ([]mcp.DiscoveredTool, error) {
	if r.manager == nil {
		return nil, nil
	}
	policy, ok := r.discovery[string(role)]
	if !ok || !policy.Enabled || len(policy.Servers) == 0 {
		return nil, nil
	}

	specs := make([]mcp.ServerSpec, 0, len(policy.Servers))
	for name, sc := range policy.Servers {
		timeout, err := time.ParseDuration(sc.Timeout)
		if err != nil {
			timeout = 0
		}
		specs = append(specs, mcp.ServerSpec{
			Name:      name,
			Endpoint:  sc.Endpoint,
			Transport: sc.Transport,
			Timeout:   timeout,
		})
	}
	return r.manager.Discover(ctx, specs)
}

// Find returns the descriptor with the given name from a merged set.
func Find(set []*Descriptor, name string) *Descriptor {
	for _, d := range set {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Execute runs one tool from a role's merged set.
func (r *Registry) Execute(ctx context.Context, role types.Role, name string, args map[string]any) (*Result, error) {
	d := Find(r.ToolsFor(ctx, role), name)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return r.ExecuteDescriptor(ctx, d, args)
}

// ExecuteDescriptor runs a specific descriptor with the given arguments.
func (r *Registry) ExecuteDescriptor(ctx context.Context, d *Descriptor, args map[string]any) (*Result, error) {
	start := time.Now()

	if d.Origin == OriginStatic {
		if err := validateArgs(d, args); err != nil {
			return &Result{ToolName: d.Name, Error: err, DurationMs: time.Since(start).Milliseconds()}, err
		}
		logging.ToolsDebug("Executing static tool: %s", d.Name)
		out, err := d.Execute(ctx, args)
		return &Result{
			ToolName:   d.Name,
			Output:     out,
			Error:      err,
			DurationMs: time.Since(start).Milliseconds(),
		}, err
	}

	logging.ToolsDebug("Executing discovered tool: %s via %s", d.Name, d.Server)
	callRes, err := r.manager.Call(ctx, d.Server, d.Name, args)
	if err != nil {
		return &Result{ToolName: d.Name, Error: err, DurationMs: time.Since(start).Milliseconds()}, err
	}
	res := &Result{ToolName: d.Name, DurationMs: callRes.LatencyMs}
	if !callRes.Success {
		res.Error = fmt.Errorf("tool %s failed: %s", d.Name, callRes.Error)
		return res, res.Error
	}
	res.Output = string(callRes.Output)
	return res, nil
}

// validateArgs checks that all required arguments are present.
func validateArgs(d *Descriptor, args map[string]any) error {
	for _, required := range d.Schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	return nil
}
