package graph

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tradenerd/internal/agent"
	"tradenerd/internal/debate"
	"tradenerd/internal/logging"
	"tradenerd/internal/types"
)

// runAnalysts dispatches the non-skipped analyst roles concurrently.
// Each role is invoked exactly once; there is no retry loop. The phase
// completes only when every dispatched invocation has returned.
func (rn *run) runAnalysts(ctx context.Context) error {
	s := rn.sess

	var selected []types.Role
	for _, role := range types.AnalystRoles() {
		if skip, reason := rn.shouldSkip(role); skip {
			logging.Router("Session %s: skipping %s (%s)", s.ID, role, reason)
			continue
		}
		selected = append(selected, role)
	}

	if len(selected) == 0 {
		logging.Router("Session %s: no analyst invocations needed", s.ID)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, role := range selected {
		g.Go(func() error {
			return rn.runAnalyst(gctx, role)
		})
	}
	return g.Wait()
}

// shouldSkip is the routing optimizer's cheap pre-check: a role is
// skipped when it is disabled in configuration or its report is
// already present on the session.
func (rn *run) shouldSkip(role types.Role) (bool, string) {
	if rn.cfg.Analysts.IsDisabled(role) {
		return true, "disabled in configuration"
	}
	if rn.sess.Report(role) != "" {
		return true, "report already present"
	}
	return false, ""
}

// runAnalyst performs one analyst invocation and writes its report.
func (rn *run) runAnalyst(ctx context.Context, role types.Role) error {
	s := rn.sess
	start := time.Now()

	toolset := rn.registry.ToolsFor(ctx, role)
	memories, _ := rn.recallFor(ctx, role, fmt.Sprintf("%s on %s", s.Security, s.Date))

	prompt := agent.BuildPrompt(role, agent.Context{
		Security: s.Security,
		Date:     s.Date,
		Memories: memories,
	})

	out, err := rn.invoker.Invoke(ctx, role, agent.SystemPrompt(role), prompt, toolset)
	if err != nil {
		return fmt.Errorf("analyst %s: %w", role, err)
	}

	s.SetReport(role, out.Text)
	logging.Router("Session %s: %s report produced in %v (%d tools available)",
		s.ID, role, time.Since(start), len(toolset))
	return nil
}

// recallFor fetches precedents for any role outside a debate round.
// Failures degrade to no precedent context.
func (rn *run) recallFor(ctx context.Context, role types.Role, query string) (string, []int64) {
	if rn.store == nil {
		return "", nil
	}
	collection := role.Collection()
	res, err := rn.store.Retrieve(ctx, collection, query, rn.cfg.Memory.AlphaFor(collection), rn.cfg.Memory.Limit)
	if err != nil {
		logging.Get(logging.CategoryRouter).Warn("Precedent retrieval failed for %s: %v", role, err)
		return "", nil
	}
	return debate.RenderMatches(res.Matches)
}
