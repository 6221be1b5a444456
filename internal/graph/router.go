// Package graph owns the top-level deliberation state machine: phase
// order, analyst routing, the two bounded debates, and the terminal
// decision. One Propagate call drives a session from pending to
// decided or failed.
package graph

import (
	"context"
	"errors"
	"fmt"

	"tradenerd/internal/agent"
	"tradenerd/internal/config"
	"tradenerd/internal/dataflows"
	"tradenerd/internal/debate"
	"tradenerd/internal/logging"
	"tradenerd/internal/mcp"
	"tradenerd/internal/memory"
	"tradenerd/internal/session"
	"tradenerd/internal/tools"
	"tradenerd/internal/types"
)

// Failure kinds recorded on the session.
const (
	KindInvocationFailure       = "InvocationFailure"
	KindRoundIntegrityViolation = "RoundIntegrityViolation"
)

// Router drives sessions through the deliberation phases.
type Router struct {
	cfg       *config.Config
	quick     types.LLMClient
	deep      types.LLMClient
	store     *memory.Store
	dataflows *dataflows.Client
}

// NewRouter creates a router over shared process-wide resources. The
// per-session pieces (tool registry, MCP connections, invoker) are
// built inside Propagate.
func NewRouter(cfg *config.Config, quick, deep types.LLMClient, store *memory.Store, dc *dataflows.Client) *Router {
	return &Router{
		cfg:       cfg,
		quick:     quick,
		deep:      deep,
		store:     store,
		dataflows: dc,
	}
}

// run bundles the per-session machinery threaded through each phase.
type run struct {
	cfg      *config.Config
	sess     *session.Session
	registry *tools.Registry
	invoker  *agent.Invoker
	engine   *debate.Engine
	store    *memory.Store
}

// Propagate validates the request, creates a session, and advances it
// until terminal. A failed session returns its structured failure
// result, never a fabricated decision.
func (r *Router) Propagate(ctx context.Context, req session.Request) (*session.Result, error) {
	cfg := r.effectiveConfig(req)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	s := session.New(req.Security, req.Date)

	manager := mcp.NewManager()
	defer manager.Close()

	registry := tools.NewRegistry(r.dataflows, manager, cfg.Discovery)
	invoker := agent.NewInvoker(r.quick, r.deep, registry, cfg.LLM.InvocationTimeout())

	rn := &run{
		cfg:      cfg,
		sess:     s,
		registry: registry,
		invoker:  invoker,
		engine:   debate.NewEngine(invoker, r.store, cfg.Memory),
		store:    r.store,
	}

	for s.Status != session.StatusDecided && s.Status != session.StatusFailed {
		if err := ctx.Err(); err != nil {
			// Cancellation at a phase boundary; no partial round exists.
			s.Fail(KindInvocationFailure, err)
			break
		}
		rn.advance(ctx)
	}

	if s.Status == session.StatusDecided {
		rn.reflect(ctx)
	}
	return session.ResultOf(s), nil
}

// effectiveConfig applies per-request overrides to a copy of the
// process configuration, keeping the threaded-config contract.
func (r *Router) effectiveConfig(req session.Request) *config.Config {
	cfg := *r.cfg
	if req.MaxResearchRounds > 0 {
		cfg.Debate.MaxResearchRounds = req.MaxResearchRounds
	}
	if req.MaxRiskRounds > 0 {
		cfg.Debate.MaxRiskRounds = req.MaxRiskRounds
	}
	if req.DeepThinkModel != "" {
		cfg.LLM.DeepThinkModel = req.DeepThinkModel
	}
	if req.QuickThinkModel != "" {
		cfg.LLM.QuickThinkModel = req.QuickThinkModel
	}
	return &cfg
}

// advance performs one phase of work and the transition out of it.
// Failures mark the session failed; advance never panics or retries.
func (rn *run) advance(ctx context.Context) {
	s := rn.sess
	logging.Router("Session %s advancing from %s", s.ID, s.Status)

	switch s.Status {
	case session.StatusPending:
		if err := s.Transition(session.StatusAnalystsRunning); err != nil {
			s.Fail(KindInvocationFailure, err)
		}

	case session.StatusAnalystsRunning:
		if err := rn.runAnalysts(ctx); err != nil {
			s.Fail(classify(err), err)
			return
		}
		if err := s.Transition(session.StatusResearcherDebate); err != nil {
			s.Fail(KindInvocationFailure, err)
		}

	case session.StatusResearcherDebate:
		if err := rn.runResearchPhase(ctx); err != nil {
			s.Fail(classify(err), err)
			return
		}
		if err := s.Transition(session.StatusRiskDebate); err != nil {
			s.Fail(KindInvocationFailure, err)
		}

	case session.StatusRiskDebate:
		if err := rn.runRiskPhase(ctx); err != nil {
			s.Fail(classify(err), err)
			return
		}

	default:
		s.Fail(KindInvocationFailure, fmt.Errorf("cannot advance from status %s", s.Status))
	}
}

// classify maps an error chain to the failure kind recorded on the
// session. A failed turn inside a round is recorded under its
// originating invocation failure; RoundIntegrityViolation covers
// rounds broken for any other reason.
func classify(err error) string {
	if errors.Is(err, agent.ErrInvocationFailure) {
		return KindInvocationFailure
	}
	if errors.Is(err, debate.ErrRoundIntegrity) {
		return KindRoundIntegrityViolation
	}
	return KindInvocationFailure
}

// runDebate loops rounds for one debate type with its two exit edges:
// the hard round cap and the explicit convergence signal.
func (rn *run) runDebate(ctx context.Context, dt session.DebateType, maxRounds int) error {
	for rn.sess.Rounds[dt] < maxRounds {
		aligned, err := rn.engine.RunRound(ctx, rn.sess, dt)
		if err != nil {
			return err
		}
		if aligned {
			logging.Router("Session %s: %s debate converged after round %d", rn.sess.ID, dt, rn.sess.Rounds[dt])
			return nil
		}
	}
	logging.Router("Session %s: %s debate hit round cap %d", rn.sess.ID, dt, maxRounds)
	return nil
}
