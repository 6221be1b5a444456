package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"tradenerd/internal/agent"
	"tradenerd/internal/logging"
	"tradenerd/internal/session"
	"tradenerd/internal/types"
)

// runResearchPhase runs the bull/bear debate to its exit edge, then the
// research manager's judgment and the trader's plan at the phase tail.
func (rn *run) runResearchPhase(ctx context.Context) error {
	s := rn.sess

	if err := rn.runDebate(ctx, session.DebateResearch, rn.cfg.Debate.MaxResearchRounds); err != nil {
		return err
	}

	verdict, err := rn.invokeStage(ctx, types.RoleResearchManager, agent.Context{
		Security:   s.Security,
		Date:       s.Date,
		Reports:    s.ReportsText(),
		Transcript: s.TranscriptText(session.DebateResearch),
	})
	if err != nil {
		return fmt.Errorf("research manager: %w", err)
	}
	s.ResearchVerdict = verdict

	plan, err := rn.invokeStage(ctx, types.RoleTrader, agent.Context{
		Security: s.Security,
		Date:     s.Date,
		Reports:  s.ReportsText(),
		Verdict:  verdict,
	})
	if err != nil {
		return fmt.Errorf("trader: %w", err)
	}
	s.TraderPlan = plan
	return nil
}

// runRiskPhase runs the three-way risk debate, then fires the decision
// aggregator exactly once.
func (rn *run) runRiskPhase(ctx context.Context) error {
	s := rn.sess

	if err := rn.runDebate(ctx, session.DebateRisk, rn.cfg.Debate.MaxRiskRounds); err != nil {
		return err
	}

	decision, err := rn.decide(ctx)
	if err != nil {
		return err
	}
	return s.SetDecision(decision)
}

// decide synthesizes everything the session accumulated into the
// terminal decision via one final deep-think invocation.
func (rn *run) decide(ctx context.Context) (*session.Decision, error) {
	s := rn.sess

	out, err := rn.invokeStageOutput(ctx, types.RoleRiskManager, agent.Context{
		Security:   s.Security,
		Date:       s.Date,
		Reports:    s.ReportsText(),
		Transcript: s.TranscriptText(session.DebateRisk),
		TraderPlan: s.TraderPlan,
	})
	if err != nil {
		return nil, fmt.Errorf("risk manager: %w", err)
	}

	action := ""
	if out.Control != nil {
		action = normalizeAction(out.Control.Action)
	}
	if action == "" {
		action = extractAction(out.Text)
	}
	if action == "" {
		action = extractAction(s.TraderPlan)
	}
	if action == "" {
		// No directional signal anywhere; the safe terminal default.
		action = "HOLD"
	}

	decision := &session.Decision{
		Action:    action,
		Magnitude: extractMagnitude(out.Text),
		Rationale: out.Text,
	}
	logging.Router("Session %s: decision %s", s.ID, action)
	return decision, nil
}

// invokeStage runs one tool-less stage invocation and returns its text.
func (rn *run) invokeStage(ctx context.Context, role types.Role, pc agent.Context) (string, error) {
	out, err := rn.invokeStageOutput(ctx, role, pc)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (rn *run) invokeStageOutput(ctx context.Context, role types.Role, pc agent.Context) (*agent.Output, error) {
	memories, _ := rn.recallFor(ctx, role, pc.Transcript+pc.Verdict+pc.Reports)
	pc.Memories = memories
	return rn.invoker.Invoke(ctx, role, agent.SystemPrompt(role), agent.BuildPrompt(role, pc), nil)
}

var proposalPattern = regexp.MustCompile(`FINAL TRANSACTION PROPOSAL:\s*\**\s*(BUY|SELL|HOLD)`)

// extractAction pulls the directional action out of free text. The
// explicit proposal marker wins; otherwise the last standalone mention
// of an action word decides.
func extractAction(text string) string {
	upper := strings.ToUpper(text)
	if m := proposalPattern.FindStringSubmatch(upper); m != nil {
		return m[1]
	}

	last := ""
	lastIdx := -1
	for _, action := range []string{"BUY", "SELL", "HOLD"} {
		if idx := strings.LastIndex(upper, action); idx > lastIdx {
			last = action
			lastIdx = idx
		}
	}
	return last
}

func normalizeAction(action string) string {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "BUY":
		return "BUY"
	case "SELL":
		return "SELL"
	case "HOLD":
		return "HOLD"
	}
	return ""
}

var magnitudePattern = regexp.MustCompile(`(?i)(?:size|sizing|position|allocate|allocation)[^.\n]*`)

// extractMagnitude pulls a sizing hint sentence out of the rationale,
// empty when none is stated.
func extractMagnitude(text string) string {
	if m := magnitudePattern.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}
