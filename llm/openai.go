package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIAdapter serves GPT models through the Chat Completions API.
type OpenAIAdapter struct {
	client    openai.Client
	maxTokens int64
}

// OpenAIOption configures an OpenAIAdapter.
type OpenAIOption func(*openaiOptions)

type openaiOptions struct {
	baseURL    string
	maxTokens  int64
	httpClient *http.Client
}

// WithOpenAIBaseURL overrides the API endpoint, e.g. for a compatible proxy.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *openaiOptions) {
		o.baseURL = url
	}
}

// WithOpenAIMaxTokens sets the default max completion tokens per request.
func WithOpenAIMaxTokens(n int64) OpenAIOption {
	return func(o *openaiOptions) {
		o.maxTokens = n
	}
}

// WithOpenAIHTTPClient sets the underlying HTTP client.
func WithOpenAIHTTPClient(hc *http.Client) OpenAIOption {
	return func(o *openaiOptions) {
		o.httpClient = hc
	}
}

// NewOpenAIAdapter creates an adapter. An empty apiKey defers to the
// OPENAI_API_KEY environment variable read by the SDK.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIOption) *OpenAIAdapter {
	cfg := openaiOptions{maxTokens: 8192}
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

	return &OpenAIAdapter{
		client:    openai.NewClient(sdkOpts...),
		maxTokens: cfg.maxTokens,
	}
}

// Name returns "openai".
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Complete sends a blocking chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	params := a.buildParams(req)

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, translateOpenAIError(err)
	}
	return openaiResponse(req.Model, completion), nil
}

// Stream sends a streaming chat completion request. Tool call arguments
// arrive as fragments keyed by index and are assembled before ToolCallEnd
// events are emitted.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	params := a.buildParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		ch <- StreamEvent{Type: StreamStart}

		stream := a.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var (
			text         strings.Builder
			calls        = make(map[int]*openaiCallAccumulator)
			finalUsage   Usage
			finishReason string
			responseID   string
			model        string
		)

		for stream.Next() {
			chunk := stream.Current()
			if chunk.ID != "" {
				responseID = chunk.ID
			}
			if chunk.Model != "" {
				model = chunk.Model
			}
			// Usage arrives on the final chunk when IncludeUsage is set.
			if chunk.Usage.TotalTokens > 0 {
				finalUsage = openaiUsage(chunk.Usage)
			}

			for _, choice := range chunk.Choices {
				if choice.FinishReason != "" {
					finishReason = string(choice.FinishReason)
				}
				if choice.Delta.Content != "" {
					text.WriteString(choice.Delta.Content)
					ch <- StreamEvent{Type: TextDelta, Delta: choice.Delta.Content}
				}
				for _, tc := range choice.Delta.ToolCalls {
					idx := int(tc.Index)
					acc, ok := calls[idx]
					if !ok {
						acc = &openaiCallAccumulator{}
						calls[idx] = acc
					}
					if tc.ID != "" {
						acc.id = tc.ID
					}
					if tc.Function.Name != "" {
						acc.name = tc.Function.Name
					}
					if tc.Function.Arguments != "" {
						acc.arguments.WriteString(tc.Function.Arguments)
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			ch <- StreamEvent{Type: StreamError, Error: &StreamingError{
				ClientError: ClientError{Message: "openai stream failed: " + err.Error(), Cause: err},
				Provider:    "openai",
			}}
			return
		}

		indices := make([]int, 0, len(calls))
		for idx := range calls {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		var toolCalls []ToolCall
		for _, idx := range indices {
			if tc := calls[idx].toToolCall(); tc != nil {
				toolCalls = append(toolCalls, *tc)
				ch <- StreamEvent{Type: ToolCallEnd, ToolCall: tc}
			}
		}

		if model == "" {
			model = req.Model
		}
		resp := &Response{
			ID:           responseID,
			Model:        model,
			Provider:     "openai",
			Text:         text.String(),
			ToolCalls:    toolCalls,
			FinishReason: mapOpenAIFinishReason(finishReason, len(toolCalls) > 0),
			Usage:        finalUsage,
		}
		ch <- StreamEvent{Type: StreamFinish, Response: resp}
	}()

	return ch, nil
}

func (a *OpenAIAdapter) buildParams(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	maxTokens := a.maxTokens
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(req.Model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			parameters := openai.FunctionParameters(t.Parameters)
			if parameters == nil {
				parameters = openai.FunctionParameters{
					"type":       "object",
					"properties": map[string]any{},
				}
			}
			tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  parameters,
			}))
		}
		params.Tools = tools
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}

	return params
}

type openaiCallAccumulator struct {
	id        string
	name      string
	arguments strings.Builder
}

func (a *openaiCallAccumulator) toToolCall() *ToolCall {
	if a.id == "" || a.name == "" {
		return nil
	}
	args := strings.TrimSpace(a.arguments.String())
	if args == "" {
		args = "{}"
	}
	return &ToolCall{ID: a.id, Name: a.name, Arguments: json.RawMessage(args)}
}

func openaiResponse(reqModel string, completion *openai.ChatCompletion) *Response {
	model := completion.Model
	if model == "" {
		model = reqModel
	}

	resp := &Response{
		ID:           completion.ID,
		Model:        model,
		Provider:     "openai",
		FinishReason: FinishReason{Reason: "stop"},
		Usage:        openaiUsage(completion.Usage),
		Raw:          completion,
	}
	if len(completion.Choices) == 0 {
		return resp
	}

	choice := completion.Choices[0]
	resp.Text = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		if tc.ID == "" || tc.Function.Name == "" {
			continue
		}
		args := strings.TrimSpace(tc.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}
	resp.FinishReason = mapOpenAIFinishReason(string(choice.FinishReason), len(resp.ToolCalls) > 0)
	return resp
}

func openaiUsage(usage openai.CompletionUsage) Usage {
	return Usage{
		InputTokens:  int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
		TotalTokens:  int(usage.TotalTokens),
	}
}

func mapOpenAIFinishReason(raw string, hasToolCalls bool) FinishReason {
	switch raw {
	case "stop":
		if hasToolCalls {
			return FinishReason{Reason: "tool_calls", Raw: raw}
		}
		return FinishReason{Reason: "stop", Raw: raw}
	case "length":
		return FinishReason{Reason: "length", Raw: raw}
	case "tool_calls", "function_call":
		return FinishReason{Reason: "tool_calls", Raw: raw}
	case "content_filter":
		return FinishReason{Reason: "content_filter", Raw: raw}
	case "":
		if hasToolCalls {
			return FinishReason{Reason: "tool_calls"}
		}
		return FinishReason{Reason: "stop"}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}

func translateOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{ClientError{Message: "openai request aborted", Cause: err}}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode("openai", apiErr.StatusCode, apiErr.Error(), err)
	}
	return &NetworkError{ClientError{Message: "openai request failed: " + err.Error(), Cause: err}}
}
