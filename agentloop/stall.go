package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fintalk/fintalk/llm"
)

// callSignature computes a deterministic fingerprint for one tool call
// (name + hash of canonicalized arguments). json.Marshal sorts map keys,
// so equal argument maps always hash equal.
func callSignature(call llm.ToolCall) string {
	args, err := call.Args()
	if err != nil {
		return fmt.Sprintf("%s:unparsed:%x", call.Name, sha256.Sum256(call.Arguments))
	}
	canonical, err := json.Marshal(args)
	if err != nil {
		canonical = call.Arguments
	}
	h := sha256.Sum256(canonical)
	return fmt.Sprintf("%s:%x", call.Name, h[:8])
}

// batchSignature fingerprints one iteration's tool batch.
func batchSignature(calls []llm.ToolCall) string {
	sigs := make([]string, 0, len(calls))
	for _, call := range calls {
		sigs = append(sigs, callSignature(call))
	}
	return strings.Join(sigs, "|")
}

// detectStall reports whether the last window batch signatures follow a
// repeating pattern of length 1, 2, or 3. A run that keeps issuing the
// same calls is burning iterations without gathering new evidence.
func detectStall(sigs []string, window int) bool {
	if window <= 0 || len(sigs) < window {
		return false
	}
	recent := sigs[len(sigs)-window:]

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if window%patternLen != 0 {
			continue
		}
		pattern := recent[:patternLen]
		allMatch := true
		for i := patternLen; i < window && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if recent[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}
