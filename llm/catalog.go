package llm

import "strings"

// ModelInfo describes a known model's capabilities.
type ModelInfo struct {
	ID                string
	Provider          string
	DisplayName       string
	ContextWindow     int
	MaxOutput         int
	SupportsTools     bool
	SupportsReasoning bool
	Aliases           []string
}

// Models is the built-in catalog. It is not exhaustive; unknown models are
// routed by prefix and served with provider defaults.
var Models = []ModelInfo{
	{
		ID:                "claude-opus-4-6",
		Provider:          "anthropic",
		DisplayName:       "Claude Opus 4.6",
		ContextWindow:     200000,
		MaxOutput:         32000,
		SupportsTools:     true,
		SupportsReasoning: true,
		Aliases:           []string{"opus"},
	},
	{
		ID:                "claude-sonnet-4-5",
		Provider:          "anthropic",
		DisplayName:       "Claude Sonnet 4.5",
		ContextWindow:     200000,
		MaxOutput:         64000,
		SupportsTools:     true,
		SupportsReasoning: true,
		Aliases:           []string{"sonnet"},
	},
	{
		ID:            "gpt-5.2",
		Provider:      "openai",
		DisplayName:   "GPT-5.2",
		ContextWindow: 272000,
		MaxOutput:     128000,
		SupportsTools: true,
		Aliases:       []string{"gpt5"},
	},
	{
		ID:            "gpt-5.2-mini",
		Provider:      "openai",
		DisplayName:   "GPT-5.2 Mini",
		ContextWindow: 272000,
		MaxOutput:     128000,
		SupportsTools: true,
	},
	{
		ID:            "gemini-3-pro-preview",
		Provider:      "gemini",
		DisplayName:   "Gemini 3 Pro",
		ContextWindow: 1048576,
		MaxOutput:     65536,
		SupportsTools: true,
		Aliases:       []string{"gemini-pro"},
	},
	{
		ID:            "gemini-3-flash-preview",
		Provider:      "gemini",
		DisplayName:   "Gemini 3 Flash",
		ContextWindow: 1048576,
		MaxOutput:     65536,
		SupportsTools: true,
		Aliases:       []string{"gemini-flash"},
	},
	{
		ID:            "anthropic.claude-sonnet-4-5-20250929-v1:0",
		Provider:      "bedrock",
		DisplayName:   "Claude Sonnet 4.5 (Bedrock)",
		ContextWindow: 200000,
		MaxOutput:     64000,
		SupportsTools: true,
	},
}

// GetModelInfo looks up a model by ID or alias. Returns nil if unknown.
func GetModelInfo(id string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == id {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == id {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns the catalog entries for a provider, or all entries when
// provider is empty.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		out := make([]ModelInfo, len(Models))
		copy(out, Models)
		return out
	}
	var out []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}

// GetLatestModel returns the first catalog entry for a provider, optionally
// requiring a capability ("tools" or "reasoning"). Entries are ordered most
// capable first.
func GetLatestModel(provider, capability string) *ModelInfo {
	for i := range Models {
		m := &Models[i]
		if m.Provider != provider {
			continue
		}
		switch capability {
		case "tools":
			if !m.SupportsTools {
				continue
			}
		case "reasoning":
			if !m.SupportsReasoning {
				continue
			}
		}
		return m
	}
	return nil
}

// ProviderForModel infers a provider from a model identifier prefix.
// Returns "" when no prefix matches.
func ProviderForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "anthropic.") || strings.HasPrefix(model, "us.") || strings.HasPrefix(model, "eu."):
		return "bedrock"
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4"):
		return "openai"
	case strings.HasPrefix(model, "gemini"):
		return "gemini"
	default:
		return ""
	}
}
