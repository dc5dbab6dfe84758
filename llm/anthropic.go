package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// AnthropicAdapter serves Claude models through the Anthropic Messages API.
type AnthropicAdapter struct {
	client    anthropicsdk.Client
	maxTokens int64
}

// AnthropicOption configures an AnthropicAdapter.
type AnthropicOption func(*anthropicOptions)

type anthropicOptions struct {
	baseURL    string
	maxTokens  int64
	httpClient *http.Client
}

// WithAnthropicBaseURL overrides the API endpoint, e.g. for a proxy.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(o *anthropicOptions) {
		o.baseURL = url
	}
}

// WithAnthropicMaxTokens sets the default max output tokens per request.
func WithAnthropicMaxTokens(n int64) AnthropicOption {
	return func(o *anthropicOptions) {
		o.maxTokens = n
	}
}

// WithAnthropicHTTPClient sets the underlying HTTP client.
func WithAnthropicHTTPClient(hc *http.Client) AnthropicOption {
	return func(o *anthropicOptions) {
		o.httpClient = hc
	}
}

// NewAnthropicAdapter creates an adapter. An empty apiKey defers to the
// ANTHROPIC_API_KEY environment variable read by the SDK.
func NewAnthropicAdapter(apiKey string, opts ...AnthropicOption) *AnthropicAdapter {
	cfg := anthropicOptions{maxTokens: 8192}
	for _, opt := range opts {
		opt(&cfg)
	}

	var sdkOpts []option.RequestOption
	if apiKey != "" {
		sdkOpts = append(sdkOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &AnthropicAdapter{
		client:    anthropicsdk.NewClient(sdkOpts...),
		maxTokens: cfg.maxTokens,
	}
}

// Name returns "anthropic".
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// Complete sends a blocking Messages request.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, translateAnthropicError(err)
	}
	return anthropicResponse(req.Model, msg), nil
}

// Stream sends a streaming Messages request. Text and thinking deltas are
// forwarded as they arrive; tool calls are emitted once their arguments have
// fully accumulated.
func (a *AnthropicAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		ch <- StreamEvent{Type: StreamStart}

		stream := a.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		var final anthropicsdk.Message
		for stream.Next() {
			event := stream.Current()
			if err := final.Accumulate(event); err != nil {
				ch <- StreamEvent{Type: StreamError, Error: &StreamingError{
					ClientError: ClientError{Message: "accumulating anthropic stream: " + err.Error(), Cause: err},
					Provider:    "anthropic",
				}}
				return
			}

			switch variant := event.AsAny().(type) {
			case anthropicsdk.ContentBlockDeltaEvent:
				// Wrong-variant accessors yield zero values, so both reads
				// are safe on every delta kind.
				if text := variant.Delta.AsTextDelta().Text; text != "" {
					ch <- StreamEvent{Type: TextDelta, Delta: text}
				}
				if thinking := variant.Delta.AsThinkingDelta().Thinking; thinking != "" {
					ch <- StreamEvent{Type: ReasoningDelta, Delta: thinking}
				}
			case anthropicsdk.ContentBlockStopEvent:
				// The just-closed block is the last accumulated one.
				if len(final.Content) > 0 {
					if tc := anthropicToolCall(final.Content[len(final.Content)-1]); tc != nil {
						ch <- StreamEvent{Type: ToolCallEnd, ToolCall: tc}
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			ch <- StreamEvent{Type: StreamError, Error: &StreamingError{
				ClientError: ClientError{Message: "anthropic stream failed: " + err.Error(), Cause: err},
				Provider:    "anthropic",
			}}
			return
		}

		ch <- StreamEvent{Type: StreamFinish, Response: anthropicResponse(req.Model, &final)}
	}()

	return ch, nil
}

func (a *AnthropicAdapter) buildParams(req Request) (anthropicsdk.MessageNewParams, error) {
	system, rest := req.SystemPrompt()

	messages := make([]anthropicsdk.MessageParam, 0, len(rest))
	for _, msg := range rest {
		role := anthropicsdk.MessageParamRoleUser
		if msg.Role == RoleAssistant {
			role = anthropicsdk.MessageParamRoleAssistant
		}
		text := msg.Content
		if strings.TrimSpace(text) == "" {
			// The API rejects empty content blocks.
			text = "."
		}
		messages = append(messages, anthropicsdk.MessageParam{
			Role:    role,
			Content: []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(text)},
		})
	}
	if len(messages) == 0 {
		messages = append(messages, anthropicsdk.MessageParam{
			Role:    anthropicsdk.MessageParamRoleUser,
			Content: []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(".")},
		})
	}

	maxTokens := a.maxTokens
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropicsdk.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema, err := anthropicInputSchema(t.Parameters)
			if err != nil {
				return anthropicsdk.MessageNewParams{}, &InvalidRequestError{ProviderError{
					ClientError: ClientError{Message: "tool " + t.Name + " schema: " + err.Error(), Cause: err},
					Provider:    "anthropic",
				}}
			}
			tool := anthropicsdk.ToolParam{
				Name:        t.Name,
				InputSchema: schema,
			}
			if t.Description != "" {
				tool.Description = anthropicsdk.String(t.Description)
			}
			tools = append(tools, anthropicsdk.ToolUnionParam{OfTool: &tool})
		}
		params.Tools = tools
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = param.NewOpt(*req.TopP)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}

	return params, nil
}

func anthropicInputSchema(raw map[string]any) (anthropicsdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return anthropicsdk.ToolInputSchemaParam{Type: "object"}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return anthropicsdk.ToolInputSchemaParam{}, err
	}
	var schema anthropicsdk.ToolInputSchemaParam
	if err := json.Unmarshal(data, &schema); err != nil {
		return anthropicsdk.ToolInputSchemaParam{}, err
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}

func anthropicResponse(reqModel string, msg *anthropicsdk.Message) *Response {
	var text, reasoning strings.Builder
	var toolCalls []ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "tool_use":
			if tc := anthropicToolCall(block); tc != nil {
				toolCalls = append(toolCalls, *tc)
			}
		case "thinking":
			reasoning.WriteString(block.Thinking)
		default:
			text.WriteString(block.Text)
		}
	}

	model := string(msg.Model)
	if model == "" {
		model = reqModel
	}

	usage := Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens) + int(msg.Usage.OutputTokens),
	}
	if n := int(msg.Usage.CacheReadInputTokens); n > 0 {
		usage.CacheReadTokens = &n
	}
	if n := int(msg.Usage.CacheCreationInputTokens); n > 0 {
		usage.CacheWriteTokens = &n
	}

	return &Response{
		ID:           msg.ID,
		Model:        model,
		Provider:     "anthropic",
		Text:         text.String(),
		Reasoning:    reasoning.String(),
		ToolCalls:    toolCalls,
		FinishReason: mapAnthropicStopReason(string(msg.StopReason)),
		Usage:        usage,
		Raw:          msg,
	}
}

func anthropicToolCall(block anthropicsdk.ContentBlockUnion) *ToolCall {
	if block.Type != "tool_use" {
		return nil
	}
	if block.ID == "" || block.Name == "" {
		return nil
	}
	args := json.RawMessage(block.Input)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return &ToolCall{ID: block.ID, Name: block.Name, Arguments: args}
}

func mapAnthropicStopReason(raw string) FinishReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return FinishReason{Reason: "stop", Raw: raw}
	case "max_tokens":
		return FinishReason{Reason: "length", Raw: raw}
	case "tool_use":
		return FinishReason{Reason: "tool_calls", Raw: raw}
	case "refusal":
		return FinishReason{Reason: "content_filter", Raw: raw}
	case "":
		return FinishReason{Reason: "stop"}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}

func translateAnthropicError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{ClientError{Message: "anthropic request aborted", Cause: err}}
	}
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode("anthropic", apiErr.StatusCode, apiErr.Error(), err)
	}
	return &NetworkError{ClientError{Message: "anthropic request failed: " + err.Error(), Cause: err}}
}
