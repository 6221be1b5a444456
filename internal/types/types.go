// Package types holds the shared contracts of the deliberation engine:
// the closed set of agent roles, the LLM client interface, and the tool
// calling types exchanged between the invocation adapter and providers.
package types

// Role identifies one reasoning agent in the deliberation pipeline.
// The set is closed: routing and memory-collection mapping switch over
// these constants, never over runtime type inspection.
type Role string

const (
	// Analyst team (first phase).
	RoleMarketAnalyst       Role = "market_analyst"
	RoleSocialAnalyst       Role = "social_analyst"
	RoleNewsAnalyst         Role = "news_analyst"
	RoleFundamentalsAnalyst Role = "fundamentals_analyst"

	// Researcher debate (second phase).
	RoleBull            Role = "bull"
	RoleBear            Role = "bear"
	RoleResearchManager Role = "research_manager"

	// Trader plan (tail of the researcher phase).
	RoleTrader Role = "trader"

	// Risk debate (third phase).
	RoleRisky   Role = "risky"
	RoleSafe    Role = "safe"
	RoleNeutral Role = "neutral"

	// Final synthesis.
	RoleRiskManager Role = "risk_manager"
)

// AnalystRoles returns the analyst team in invocation order.
// The order is fixed so report assembly is deterministic.
func AnalystRoles() []Role {
	return []Role{
		RoleMarketAnalyst,
		RoleSocialAnalyst,
		RoleNewsAnalyst,
		RoleFundamentalsAnalyst,
	}
}

// IsAnalyst reports whether the role belongs to the analyst team.
func (r Role) IsAnalyst() bool {
	switch r {
	case RoleMarketAnalyst, RoleSocialAnalyst, RoleNewsAnalyst, RoleFundamentalsAnalyst:
		return true
	}
	return false
}

// Collection maps a role to its memory collection. Five collections
// exist; all analyst roles share one, and the research manager reads the
// analyst collection because it synthesizes analyst output.
func (r Role) Collection() string {
	switch r {
	case RoleBull:
		return CollectionBull
	case RoleBear:
		return CollectionBear
	case RoleTrader:
		return CollectionTrader
	case RoleRisky, RoleSafe, RoleNeutral, RoleRiskManager:
		return CollectionRiskManager
	default:
		return CollectionAnalyst
	}
}

// Memory collection names. One per role group, logically isolated.
const (
	CollectionBull        = "bull"
	CollectionBear        = "bear"
	CollectionTrader      = "trader"
	CollectionAnalyst     = "analyst"
	CollectionRiskManager = "risk_manager"
)

// Collections returns all memory collection names.
func Collections() []string {
	return []string{
		CollectionBull,
		CollectionBear,
		CollectionTrader,
		CollectionAnalyst,
		CollectionRiskManager,
	}
}
