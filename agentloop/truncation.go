package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how oversized tool output is cut.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Default character limits per built-in tool. Anything not listed falls
// back to defaultCharLimit.
var DefaultToolCharLimits = map[string]int{
	"quote":          4000,
	"fundamentals":   16000,
	"ratio_analysis": 20000,
}

// Default truncation modes per built-in tool. Quote snapshots are small and
// front-loaded; fundamentals and ratio reports keep head and tail so both
// the headline figures and the footnotes survive.
var DefaultTruncationModes = map[string]TruncationMode{
	"quote":          TruncateTail,
	"fundamentals":   TruncateHeadTail,
	"ratio_analysis": TruncateHeadTail,
}

// Default line limits per built-in tool, applied after character
// truncation.
var DefaultToolLineLimits = map[string]int{
	"fundamentals":   300,
	"ratio_analysis": 400,
}

const defaultCharLimit = 30000

// TruncateOutput applies character-based truncation.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[NOTE: output truncated; the first %d characters were removed. "+
			"Re-run the tool with narrower parameters if earlier sections are needed.]\n\n", removed) +
			output[len(output)-maxChars:]
	default:
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[NOTE: output truncated; %d characters were removed from the middle. "+
				"Re-run the tool with narrower parameters if specific sections are needed.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies the full truncation pipeline for a tool:
// character truncation first (bounds pathological outputs), then line
// truncation for readability. The configured limit maps override the
// per-tool defaults. The result is what the scratchpad, the trace file and
// the tool_end event all carry, so every consumer sees the same text.
func TruncateToolOutput(output, toolName string, charLimits, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = defaultCharLimit
		}
	}

	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}

	result := TruncateOutput(output, maxChars, mode)

	maxLines := 0
	if lineLimits != nil {
		if ml, ok := lineLimits[toolName]; ok {
			maxLines = ml
		}
	}
	if maxLines == 0 {
		if ml, ok := DefaultToolLineLimits[toolName]; ok {
			maxLines = ml
		}
	}
	if maxLines > 0 {
		result = TruncateLines(result, maxLines)
	}

	return result
}
