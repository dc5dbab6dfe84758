package agentloop

// DefaultEstimator approximates token count as len/4. The engine never
// needs exact token accounting; the threshold is calibrated against the
// same heuristic.
func DefaultEstimator(text string) int {
	return len(text) / 4
}

// ContextGuard bounds iteration-prompt growth. After each tool round it
// estimates the rebuilt prompt's size and, past the threshold, evicts the
// oldest tool results down to KeepRecent entries.
type ContextGuard struct {
	// Threshold is the estimated size ceiling. Zero disables the guard.
	Threshold int
	// KeepRecent is how many tool_result entries survive an eviction.
	KeepRecent int
	// Estimator maps text to an approximate size. Nil means
	// DefaultEstimator.
	Estimator func(string) int
}

// Check evicts when the estimated prompt size exceeds the threshold.
// Returns the evicted and surviving tool-result counts, and whether an
// eviction happened.
func (g ContextGuard) Check(pad *Scratchpad, systemPrompt, query string) (cleared, kept int, evicted bool) {
	if g.Threshold <= 0 {
		return 0, 0, false
	}
	estimate := g.Estimator
	if estimate == nil {
		estimate = DefaultEstimator
	}

	size := estimate(systemPrompt) + estimate(query) + estimate(pad.ToolResultsText())
	if size <= g.Threshold {
		return 0, 0, false
	}

	cleared = pad.EvictToolResults(g.KeepRecent)
	if cleared == 0 {
		return 0, 0, false
	}
	return cleared, pad.ToolResultCount(), true
}
