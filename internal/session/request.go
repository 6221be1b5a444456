package session

import (
	"fmt"
	"time"
)

// Request is the entry payload for one deliberation. Round limits and
// model selection default from configuration when left zero.
type Request struct {
	Security string
	Date     string // YYYY-MM-DD

	// Optional per-request overrides.
	MaxResearchRounds int
	MaxRiskRounds     int
	DeepThinkModel    string
	QuickThinkModel   string
}

// Validate rejects requests that cannot produce a session.
func (r Request) Validate() error {
	if r.Security == "" {
		return fmt.Errorf("security identifier required")
	}
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return fmt.Errorf("analysis date must be YYYY-MM-DD, got %q", r.Date)
	}
	if r.MaxResearchRounds < 0 || r.MaxRiskRounds < 0 {
		return fmt.Errorf("round limit overrides must be non-negative")
	}
	return nil
}

// Result is what a completed deliberation returns to the caller. A
// failed session carries its failure record and accumulated partial
// state; it never carries a decision.
type Result struct {
	SessionID string
	Security  string
	Date      string
	Status    Status

	Decision *Decision
	Failure  *FailureRecord

	Reports         map[string]string
	ResearchVerdict string
	TraderPlan      string
	Transcript      string
}

// ResultOf snapshots a session into a result.
func ResultOf(s *Session) *Result {
	reports := make(map[string]string, len(s.Reports))
	s.mu.Lock()
	for role, text := range s.Reports {
		reports[string(role)] = text
	}
	s.mu.Unlock()

	transcript := s.TranscriptText(DebateResearch)
	if risk := s.TranscriptText(DebateRisk); risk != "" {
		transcript += "\n--- risk debate ---\n" + risk
	}

	return &Result{
		SessionID:       s.ID,
		Security:        s.Security,
		Date:            s.Date,
		Status:          s.Status,
		Decision:        s.Decision,
		Failure:         s.Failure,
		Reports:         reports,
		ResearchVerdict: s.ResearchVerdict,
		TraderPlan:      s.TraderPlan,
		Transcript:      transcript,
	}
}
