package graph

import (
	"context"
	"fmt"
	"strings"

	"tradenerd/internal/logging"
	"tradenerd/internal/session"
	"tradenerd/internal/types"
)

// reflectionRoles maps each collection to the role whose perspective
// the lesson is drawn from.
var reflectionRoles = []struct {
	role       types.Role
	transcript session.DebateType
}{
	{types.RoleBull, session.DebateResearch},
	{types.RoleBear, session.DebateResearch},
	{types.RoleTrader, session.DebateResearch},
	{types.RoleMarketAnalyst, session.DebateResearch}, // shared analyst collection
	{types.RoleRiskManager, session.DebateRisk},
}

// reflect writes one lesson per collection after a session reaches
// decided. Write-back is best effort: a decided session is never
// failed retroactively because a lesson could not be stored.
func (rn *run) reflect(ctx context.Context) {
	if rn.store == nil {
		return
	}
	s := rn.sess

	situation := rn.situationText()

	for _, rr := range reflectionRoles {
		lesson, err := rn.reflectOn(ctx, rr.role, rr.transcript)
		if err != nil {
			logging.Get(logging.CategoryMemory).Warn("Reflection failed for %s: %v", rr.role, err)
			continue
		}
		if _, err := rn.store.Write(ctx, rr.role.Collection(), situation, lesson); err != nil {
			logging.Get(logging.CategoryMemory).Warn("Lesson write failed for %s: %v", rr.role.Collection(), err)
		}
	}
	logging.Memory("Session %s: reflection write-back complete", s.ID)
}

// situationText condenses the session inputs into the retrievable
// situation description future sessions will query against.
func (rn *run) situationText() string {
	s := rn.sess
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s.\n", s.Security, s.Date)
	b.WriteString(s.ReportsText())
	return b.String()
}

// reflectOn asks the quick model what this role group should learn
// from the finished deliberation.
func (rn *run) reflectOn(ctx context.Context, role types.Role, dt session.DebateType) (string, error) {
	s := rn.sess

	var b strings.Builder
	fmt.Fprintf(&b, "Security: %s\nAnalysis date: %s\n\n", s.Security, s.Date)
	fmt.Fprintf(&b, "# Final decision\n%s: %s\n\n", s.Decision.Action, s.Decision.Rationale)
	if t := s.TranscriptText(dt); t != "" {
		fmt.Fprintf(&b, "# Debate\n%s\n", t)
	}
	if s.TraderPlan != "" {
		fmt.Fprintf(&b, "# Trading plan\n%s\n", s.TraderPlan)
	}
	fmt.Fprintf(&b, "\nIn two or three sentences, state the most important lesson the %s should "+
		"carry into future deliberations on similar situations.", role)

	system := "You distill trading deliberations into concise, reusable lessons. " +
		"State the lesson directly; no preamble."

	out, err := rn.invoker.Invoke(ctx, role, system, b.String(), nil)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}
