package agent

import (
	"fmt"
	"strings"

	"tradenerd/internal/types"
)

// controlInstruction tells debate roles how to emit the convergence
// trailer. Alignment is an explicit signal, never inferred from prose.
const controlInstruction = "End your response with a single JSON object on its own line: " +
	`{"aligned": true|false, "action": "BUY"|"SELL"|"HOLD"}. ` +
	"Set aligned to true only if you now agree with the opposing side's recommendation."

// SystemPrompt returns the role persona for one invocation.
func SystemPrompt(role types.Role) string {
	switch role {
	case types.RoleMarketAnalyst:
		return "You are a market analyst on a trading team. Use the provided tools to pull price " +
			"history and technical indicators, then select up to 8 complementary indicators and write " +
			"a detailed report on observed trends. Do not simply state that trends are mixed. " +
			"Finish with a Markdown table summarizing the key points."
	case types.RoleSocialAnalyst:
		return "You are a social media analyst on a trading team. Use the provided tools to gauge " +
			"public sentiment and company-specific chatter over the past week, then write a detailed " +
			"report on implications for traders. Finish with a Markdown table summarizing the key points."
	case types.RoleNewsAnalyst:
		return "You are a news researcher on a trading team. Use the provided tools for targeted and " +
			"macroeconomic news over the past week, then write a comprehensive report on the state of " +
			"the world relevant for trading. Provide fine-grained analysis, not a list of headlines. " +
			"Finish with a Markdown table summarizing the key points."
	case types.RoleFundamentalsAnalyst:
		return "You are a fundamentals analyst on a trading team. Use the provided tools to review the " +
			"company's financial statements and fundamentals, then write a detailed report a trader can " +
			"act on. Finish with a Markdown table summarizing the key points."
	case types.RoleBull:
		return "You are the bull researcher. Argue the strongest evidence-based case FOR investing in " +
			"the security, emphasizing growth potential and competitive advantages. Engage directly with " +
			"the bear's latest points and learn from the lessons in your memory context. " + controlInstruction
	case types.RoleBear:
		return "You are the bear researcher. Argue the strongest evidence-based case AGAINST investing " +
			"in the security, emphasizing risks, overvaluation, and deteriorating signals. Engage " +
			"directly with the bull's latest points and learn from the lessons in your memory context. " + controlInstruction
	case types.RoleResearchManager:
		return "You are the research manager judging a bull/bear debate. Weigh both sides critically, " +
			"pick the stronger case rather than splitting the difference, and state a clear investment " +
			"recommendation with rationale."
	case types.RoleTrader:
		return "You are the trader. Turn the research manager's recommendation into a concrete trading " +
			"plan: direction, sizing hint, entry and exit considerations. Conclude with " +
			"FINAL TRANSACTION PROPOSAL: **BUY/HOLD/SELL**."
	case types.RoleRisky:
		return "You are the aggressive risk debater. Champion high-reward opportunities and argue why " +
			"the trading plan should take more risk. Rebut the conservative and neutral positions " +
			"directly. " + controlInstruction
	case types.RoleSafe:
		return "You are the conservative risk debater. Protect capital above all; argue for reducing " +
			"exposure in the trading plan and rebut the aggressive and neutral positions directly. " + controlInstruction
	case types.RoleNeutral:
		return "You are the neutral risk debater. Argue for a balanced position, challenging both the " +
			"aggressive and conservative extremes where their arguments are weak. " + controlInstruction
	case types.RoleRiskManager:
		return "You are the portfolio risk manager judging a three-way risk debate. Synthesize the " +
			"debate and the trading plan into one final, actionable decision. State the action " +
			"(BUY, SELL, or HOLD), a sizing hint, and the supporting rationale."
	}
	return "You are a financial deliberation agent."
}

// Context carries the shared prompt inputs for one invocation.
type Context struct {
	Security   string
	Date       string
	Reports    string
	Transcript string
	Memories   string
	Verdict    string
	TraderPlan string
}

// BuildPrompt assembles the user prompt for a role from session state.
func BuildPrompt(role types.Role, pc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Security: %s\nAnalysis date: %s\n\n", pc.Security, pc.Date)

	if role.IsAnalyst() {
		fmt.Fprintf(&b, "Produce your %s report for this security and date.\n", role)
		writeSection(&b, "Past lessons", pc.Memories)
		return b.String()
	}

	writeSection(&b, "Analyst reports", pc.Reports)

	switch role {
	case types.RoleBull, types.RoleBear:
		writeSection(&b, "Debate so far", pc.Transcript)
		writeSection(&b, "Past lessons", pc.Memories)
		fmt.Fprintf(&b, "Deliver your next argument as the %s researcher.\n", role)
	case types.RoleResearchManager:
		writeSection(&b, "Full debate", pc.Transcript)
		writeSection(&b, "Past lessons", pc.Memories)
		b.WriteString("Judge the debate and state your investment recommendation.\n")
	case types.RoleTrader:
		writeSection(&b, "Research manager's recommendation", pc.Verdict)
		writeSection(&b, "Past lessons", pc.Memories)
		b.WriteString("Write the trading plan.\n")
	case types.RoleRisky, types.RoleSafe, types.RoleNeutral:
		writeSection(&b, "Trading plan under review", pc.TraderPlan)
		writeSection(&b, "Risk debate so far", pc.Transcript)
		writeSection(&b, "Past lessons", pc.Memories)
		fmt.Fprintf(&b, "Deliver your next argument as the %s debater.\n", roleLabel(role))
	case types.RoleRiskManager:
		writeSection(&b, "Trading plan", pc.TraderPlan)
		writeSection(&b, "Risk debate", pc.Transcript)
		writeSection(&b, "Past lessons", pc.Memories)
		b.WriteString("Produce the final decision.\n")
	}
	return b.String()
}

func writeSection(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(b, "# %s\n%s\n\n", title, body)
}

func roleLabel(role types.Role) string {
	switch role {
	case types.RoleRisky:
		return "aggressive"
	case types.RoleSafe:
		return "conservative"
	default:
		return string(role)
	}
}
