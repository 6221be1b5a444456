// Package session holds the mutable record threaded through every
// deliberation phase: reports, debate transcripts, round counters, and
// the final decision. Status transitions are monotonic and enforced
// here, not by callers.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradenerd/internal/logging"
	"tradenerd/internal/types"
)

// Status enumerates the session lifecycle. Transitions only move
// forward; any non-terminal status may diverge to StatusFailed.
type Status string

const (
	StatusPending          Status = "pending"
	StatusAnalystsRunning  Status = "analysts_running"
	StatusResearcherDebate Status = "researcher_debate"
	StatusRiskDebate       Status = "risk_debate"
	StatusDecided          Status = "decided"
	StatusFailed           Status = "failed"
)

// order maps each status to its position in the forward chain.
var order = map[Status]int{
	StatusPending:          0,
	StatusAnalystsRunning:  1,
	StatusResearcherDebate: 2,
	StatusRiskDebate:       3,
	StatusDecided:          4,
}

// DebateType distinguishes the two bounded debates.
type DebateType string

const (
	DebateResearch DebateType = "research"
	DebateRisk     DebateType = "risk"
)

// Participants returns the fixed speaking order for a debate type.
func (d DebateType) Participants() []types.Role {
	switch d {
	case DebateResearch:
		return []types.Role{types.RoleBull, types.RoleBear}
	case DebateRisk:
		return []types.Role{types.RoleRisky, types.RoleSafe, types.RoleNeutral}
	}
	return nil
}

// Turn is one exchange in a debate transcript.
type Turn struct {
	Role      types.Role
	Round     int
	Text      string
	MemoryIDs []int64 // precedents consulted for this turn
	CreatedAt time.Time
}

// Decision is the terminal artifact of a decided session.
type Decision struct {
	Action    string // BUY, SELL, or HOLD
	Magnitude string // sizing hint, free text
	Rationale string
}

// FailureRecord captures why a session failed and where.
type FailureRecord struct {
	Phase Status
	Kind  string
	Err   string
}

// Session is one deliberation over a (security, date) pair. It is
// processed by a single logical task; the mutex only guards the report
// map, which concurrent analyst invocations write under distinct keys.
type Session struct {
	ID       string
	Security string
	Date     string

	Status Status

	mu          sync.Mutex
	Reports     map[types.Role]string
	Transcripts map[DebateType][]Turn
	Rounds      map[DebateType]int

	// Tail-of-research artifacts.
	ResearchVerdict string // research manager's judgment of the debate
	TraderPlan      string // trader's plan built on the verdict

	Decision *Decision
	Failure  *FailureRecord

	CreatedAt time.Time
}

// New creates a pending session for a security and analysis date.
func New(security, date string) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		Security:    security,
		Date:        date,
		Status:      StatusPending,
		Reports:     make(map[types.Role]string),
		Transcripts: make(map[DebateType][]Turn),
		Rounds:      make(map[DebateType]int),
		CreatedAt:   time.Now(),
	}
	logging.Get(logging.CategorySession).Info("Session %s created for %s on %s", s.ID, security, date)
	return s
}

// Transition advances the status one step forward. Backward or
// skipping transitions are rejected.
func (s *Session) Transition(to Status) error {
	if s.Status == StatusFailed || s.Status == StatusDecided {
		return fmt.Errorf("session %s is terminal (%s)", s.ID, s.Status)
	}
	from, ok := order[s.Status]
	if !ok {
		return fmt.Errorf("session %s has unknown status %s", s.ID, s.Status)
	}
	target, ok := order[to]
	if !ok {
		return fmt.Errorf("invalid target status %s", to)
	}
	if target != from+1 {
		return fmt.Errorf("illegal transition %s -> %s", s.Status, to)
	}

	logging.Get(logging.CategorySession).Info("Session %s: %s -> %s", s.ID, s.Status, to)
	s.Status = to
	return nil
}

// Fail marks the session failed, recording the phase it was in and the
// originating error. A terminal session cannot fail again.
func (s *Session) Fail(kind string, err error) {
	if s.Status == StatusFailed || s.Status == StatusDecided {
		return
	}
	s.Failure = &FailureRecord{
		Phase: s.Status,
		Kind:  kind,
		Err:   err.Error(),
	}
	logging.Get(logging.CategorySession).Error("Session %s failed in %s: %s: %v", s.ID, s.Status, kind, err)
	s.Status = StatusFailed
}

// SetReport records one role's report. Safe for concurrent analyst
// invocations writing distinct roles.
func (s *Session) SetReport(role types.Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reports[role] = text
}

// Report returns one role's report text, empty if not produced.
func (s *Session) Report(role types.Role) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Reports[role]
}

// AppendTurn records one debate turn.
func (s *Session) AppendTurn(dt DebateType, turn Turn) {
	s.Transcripts[dt] = append(s.Transcripts[dt], turn)
}

// CompleteRound advances the round counter for a debate type. Called
// by the debate engine only after every participant has spoken.
func (s *Session) CompleteRound(dt DebateType) {
	s.Rounds[dt]++
}

// SetDecision records the terminal decision. It is legal exactly once,
// on the risk_debate -> decided transition.
func (s *Session) SetDecision(d *Decision) error {
	if s.Status != StatusRiskDebate {
		return fmt.Errorf("decision requires status %s, have %s", StatusRiskDebate, s.Status)
	}
	if s.Decision != nil {
		return fmt.Errorf("decision already set for session %s", s.ID)
	}
	s.Decision = d
	return s.Transition(StatusDecided)
}

// TranscriptText renders a debate transcript for prompt assembly.
func (s *Session) TranscriptText(dt DebateType) string {
	turns := s.Transcripts[dt]
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "[round %d] %s: %s\n", t.Round, t.Role, t.Text)
	}
	return b.String()
}

// ReportsText renders all analyst reports in fixed role order.
func (s *Session) ReportsText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, role := range types.AnalystRoles() {
		if text := s.Reports[role]; text != "" {
			fmt.Fprintf(&b, "## %s report\n%s\n\n", role, text)
		}
	}
	return b.String()
}
