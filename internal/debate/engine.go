// Package debate runs the bounded alternating-turn exchanges between
// opposing roles. One call runs exactly one round; the phase controller
// owns the loop and its two exit edges (cap reached, convergence).
package debate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradenerd/internal/agent"
	"tradenerd/internal/config"
	"tradenerd/internal/logging"
	"tradenerd/internal/memory"
	"tradenerd/internal/session"
	"tradenerd/internal/types"
)

// ErrRoundIntegrity marks a round that could not complete because a
// participant's turn failed. Debate integrity requires every configured
// participant to speak each round; the session fails rather than
// silently skipping a voice.
var ErrRoundIntegrity = errors.New("debate round integrity violation")

// Engine produces debate turns using the invocation adapter and the
// precedent store. Debate roles carry no tools; they argue over the
// reports and transcript already in the session.
type Engine struct {
	invoker *agent.Invoker
	store   *memory.Store
	memCfg  config.MemoryConfig
}

// NewEngine creates a debate engine.
func NewEngine(invoker *agent.Invoker, store *memory.Store, memCfg config.MemoryConfig) *Engine {
	return &Engine{invoker: invoker, store: store, memCfg: memCfg}
}

// RunRound runs exactly one round: one turn per participant in fixed
// role order. Turns are appended as produced; a failed turn aborts the
// round with ErrRoundIntegrity and the earlier turns of that round
// remain in the transcript for diagnostics. The round counter advances
// only when every participant has spoken.
//
// Returns true when every participant signaled alignment, the explicit
// early-stop condition.
func (e *Engine) RunRound(ctx context.Context, s *session.Session, dt session.DebateType) (bool, error) {
	participants := dt.Participants()
	if len(participants) == 0 {
		return false, fmt.Errorf("%w: unknown debate type %q", ErrRoundIntegrity, dt)
	}

	round := s.Rounds[dt] + 1
	logging.Debate("Session %s: %s debate round %d starting", s.ID, dt, round)

	aligned := true
	for _, role := range participants {
		turn, turnAligned, err := e.takeTurn(ctx, s, dt, role, round)
		if err != nil {
			return false, fmt.Errorf("%w: round %d, role %s: %w", ErrRoundIntegrity, round, role, err)
		}
		s.AppendTurn(dt, turn)
		aligned = aligned && turnAligned
	}

	s.CompleteRound(dt)
	logging.Debate("Session %s: %s debate round %d complete (aligned=%v)", s.ID, dt, round, aligned)
	return aligned, nil
}

// takeTurn retrieves the role's precedents, assembles the prompt, and
// invokes the reasoning capability once.
func (e *Engine) takeTurn(ctx context.Context, s *session.Session, dt session.DebateType, role types.Role, round int) (session.Turn, bool, error) {
	transcript := s.TranscriptText(dt)

	query := transcript
	if query == "" {
		query = s.ReportsText()
	}
	memories, memoryIDs := e.recall(ctx, role, query)

	prompt := agent.BuildPrompt(role, agent.Context{
		Security:   s.Security,
		Date:       s.Date,
		Reports:    s.ReportsText(),
		Transcript: transcript,
		Memories:   memories,
		TraderPlan: s.TraderPlan,
	})

	out, err := e.invoker.Invoke(ctx, role, agent.SystemPrompt(role), prompt, nil)
	if err != nil {
		return session.Turn{}, false, err
	}

	turn := session.Turn{
		Role:      role,
		Round:     round,
		Text:      out.Text,
		MemoryIDs: memoryIDs,
		CreatedAt: time.Now(),
	}
	return turn, out.Control != nil && out.Control.Aligned, nil
}

// recall fetches top-K precedents for a role. Retrieval failure or
// degradation never fails a turn; the turn just argues without
// precedent context.
func (e *Engine) recall(ctx context.Context, role types.Role, query string) (string, []int64) {
	if e.store == nil || query == "" {
		return "", nil
	}

	collection := role.Collection()
	res, err := e.store.Retrieve(ctx, collection, query, e.memCfg.AlphaFor(collection), e.memCfg.Limit)
	if err != nil {
		logging.Get(logging.CategoryDebate).Warn("Precedent retrieval failed for %s: %v", role, err)
		return "", nil
	}
	if res.Degraded {
		logging.DebateDebug("Precedent retrieval degraded to keyword-only for %s", role)
	}

	return RenderMatches(res.Matches)
}

// RenderMatches formats retrieved precedents for prompt context and
// returns the record IDs consulted.
func RenderMatches(matches []memory.Match) (string, []int64) {
	if len(matches) == 0 {
		return "", nil
	}
	var text string
	ids := make([]int64, 0, len(matches))
	for i, m := range matches {
		text += fmt.Sprintf("%d. Situation: %s\n   Lesson: %s\n", i+1, m.Record.Situation, m.Record.Lesson)
		ids = append(ids, m.Record.ID)
	}
	return text, ids
}
