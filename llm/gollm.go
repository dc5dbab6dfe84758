package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance. It backs providers without a
// dedicated adapter (groq, ollama, mistral, ...).
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmOption configures a GollmAdapter.
type GollmOption func(*gollmOptions)

type gollmOptions struct {
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithGollmModel sets the default model for the adapter.
func WithGollmModel(model string) GollmOption {
	return func(o *gollmOptions) {
		o.model = model
	}
}

// WithGollmMaxTokens sets the default max tokens.
func WithGollmMaxTokens(n int) GollmOption {
	return func(o *gollmOptions) {
		o.maxTokens = n
	}
}

// WithGollmTemperature sets the default temperature.
func WithGollmTemperature(t float64) GollmOption {
	return func(o *gollmOptions) {
		o.temperature = t
	}
}

// WithGollmConfig adds extra gollm configuration options.
func WithGollmConfig(opts ...gollm.ConfigOption) GollmOption {
	return func(o *gollmOptions) {
		o.extraOpts = append(o.extraOpts, opts...)
	}
}

// NewGollmAdapter creates an adapter for the given gollm provider name.
// If apiKey is empty, gollm reads it from the provider's environment
// variable.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmOption) (*GollmAdapter, error) {
	cfg := gollmOptions{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider, ""); info != nil {
			model = info.ID
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // the Client owns retries
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if model != "" {
		gollmOpts = append(gollmOpts, gollm.SetModel(model))
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	instance, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{ClientError{
			Message: fmt.Sprintf("creating gollm LLM for provider %s: %v", provider, err),
			Cause:   err,
		}}
	}

	return &GollmAdapter{
		provider: provider,
		llm:      instance,
		model:    model,
	}, nil
}

// Name returns the wrapped provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// Stream sends a streaming request. Providers gollm cannot stream fall back
// to a blocking call emitted as a single delta.
func (a *GollmAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	ch := make(chan StreamEvent, 64)

	if !a.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			ch <- StreamEvent{Type: StreamStart}

			text, err := a.llm.Generate(ctx, prompt)
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: a.translateError(err)}
				return
			}

			ch <- StreamEvent{Type: TextDelta, Delta: text}
			ch <- StreamEvent{Type: StreamFinish, Response: a.buildResponse(req, text)}
		}()
		return ch, nil
	}

	stream, err := a.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}

		var fullText strings.Builder
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: a.translateError(err)}
				return
			}
			if token == nil || token.Text == "" {
				continue
			}
			ch <- StreamEvent{Type: TextDelta, Delta: token.Text}
			fullText.WriteString(token.Text)
		}

		ch <- StreamEvent{Type: StreamFinish, Response: a.buildResponse(req, fullText.String())}
	}()

	return ch, nil
}

// translateRequest converts a Request into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	system, rest := req.SystemPrompt()

	var userParts []string
	for _, msg := range rest {
		if msg.Role == RoleAssistant {
			if msg.Content != "" {
				userParts = append(userParts, "[Assistant]: "+msg.Content)
			}
			continue
		}
		userParts = append(userParts, msg.Content)
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(system), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.TopP != nil {
		a.llm.SetOption("top_p", *req.TopP)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse constructs a Response from generated text, extracting any
// tool calls gollm left embedded in the output.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	toolCalls := a.parseToolCalls(text)
	cleaned := a.removeToolCallJSON(text, toolCalls)

	finishReason := FinishReason{Reason: "stop", Raw: "stop"}
	if len(toolCalls) > 0 {
		finishReason = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	// gollm does not expose usage; estimate from text length so the
	// engine's accounting stays monotonic.
	inputTokens := estimatePromptTokens(req)
	outputTokens := len(text) / 4

	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.provider,
		Text:         cleaned,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		Usage: Usage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  inputTokens + outputTokens,
		},
	}
}

// parseToolCalls extracts tool calls that gollm returns as JSON in the text.
func (a *GollmAdapter) parseToolCalls(text string) []ToolCall {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil
	}

	calls := make([]ToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		if rc.Name == "" {
			continue
		}
		args := rc.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: args,
		})
	}
	return calls
}

// removeToolCallJSON strips parsed tool call JSON from the answer text.
func (a *GollmAdapter) removeToolCallJSON(text string, calls []ToolCall) string {
	if len(calls) == 0 {
		return text
	}
	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// translateError classifies a gollm error by message content; gollm does not
// surface typed errors or status codes.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		return ErrorFromStatusCode(a.provider, 401, msg, err)
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return ErrorFromStatusCode(a.provider, 403, msg, err)
	case strings.Contains(msgLower, "404") || strings.Contains(msgLower, "not found"):
		return ErrorFromStatusCode(a.provider, 404, msg, err)
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return ErrorFromStatusCode(a.provider, 429, msg, err)
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return ErrorFromStatusCode(a.provider, 413, msg, err)
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		return ErrorFromStatusCode(a.provider, 500, msg, err)
	case strings.Contains(msgLower, "timeout"):
		return &RequestTimeoutError{ClientError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "content filter") || strings.Contains(msgLower, "safety"):
		return &ContentFilterError{ProviderError{
			ClientError: ClientError{Message: msg, Cause: err},
			Provider:    a.provider,
		}}
	default:
		return &ProviderError{
			ClientError: ClientError{Message: msg, Cause: err},
			Provider:    a.provider,
			Retryable:   true,
		}
	}
}

// estimatePromptTokens roughly counts prompt tokens from message text.
func estimatePromptTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
