package agentloop

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt frames the assistant for financial analysis work.
// Callers override it through Config.SystemPrompt.
const DefaultSystemPrompt = `You are a financial analysis assistant. You answer questions about ` +
	`listed companies using the tools available to you: price quotes, reported ` +
	`fundamentals, and ratio analysis. Ground every claim in tool results, cite ` +
	`the figures you used, and say plainly when data is unavailable. Keep ` +
	`answers concise and numerate.`

const maxPriorQueryChars = 200

// buildInitialPrompt produces the first-iteration prompt: the raw query,
// optionally prefixed with a condensed list of prior queries from the
// session so the model keeps the conversational thread.
func buildInitialPrompt(query string, prior []Exchange, limit int) string {
	if len(prior) == 0 || limit == 0 {
		return query
	}
	if limit > 0 && len(prior) > limit {
		prior = prior[len(prior)-limit:]
	}

	var sb strings.Builder
	sb.WriteString("Earlier queries in this session:\n")
	for _, ex := range prior {
		sb.WriteString("- ")
		sb.WriteString(condense(ex.Query))
		sb.WriteString("\n")
	}
	sb.WriteString("\nCurrent query: ")
	sb.WriteString(query)
	return sb.String()
}

// buildIterationPrompt rebuilds the prompt for iterations after the first
// from the scratchpad: the original query, all accumulated evidence, and a
// compact tool-usage summary.
func buildIterationPrompt(query string, pad *Scratchpad) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original query: %s\n\n", query)
	sb.WriteString("Evidence gathered so far:\n\n")
	sb.WriteString(pad.ToolResultsText())
	if summary := pad.UsageSummary(); summary != "" {
		fmt.Fprintf(&sb, "\n\nTools used: %s.", summary)
	}
	sb.WriteString("\n\nIf the evidence answers the query, reply with the answer. " +
		"Otherwise call the tools you still need.")
	return sb.String()
}

// buildFinalPrompt produces the consolidated final-answer prompt from the
// full scratchpad. The model call it feeds binds no tools.
func buildFinalPrompt(query string, pad *Scratchpad) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original query: %s\n\n", query)
	if pad.HasToolResults() {
		sb.WriteString("Evidence gathered:\n\n")
		sb.WriteString(pad.ToolResultsText())
		if summary := pad.UsageSummary(); summary != "" {
			fmt.Fprintf(&sb, "\n\nTools used: %s.", summary)
		}
		sb.WriteString("\n\n")
	}
	sb.WriteString("Write the final answer to the original query using the evidence above. " +
		"Do not request any tools.")
	return sb.String()
}

// condense flattens a query to a single trimmed line for the prior-query
// list.
func condense(query string) string {
	flat := strings.Join(strings.Fields(query), " ")
	if len(flat) > maxPriorQueryChars {
		flat = flat[:maxPriorQueryChars] + "..."
	}
	return flat
}
