package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

// BedrockAdapter serves Anthropic models hosted on AWS Bedrock through the
// InvokeModel API with the native Anthropic request body.
type BedrockAdapter struct {
	client    *bedrockruntime.Client
	maxTokens int
}

// NewBedrockAdapter creates an adapter using ambient AWS credentials
// (environment, shared config, or instance role).
func NewBedrockAdapter(ctx context.Context) (*BedrockAdapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, &ConfigurationError{ClientError{
			Message: "loading AWS config: " + err.Error(),
			Cause:   err,
		}}
	}
	return &BedrockAdapter{
		client:    bedrockruntime.NewFromConfig(cfg),
		maxTokens: 8192,
	}, nil
}

// Name returns "bedrock".
func (b *BedrockAdapter) Name() string {
	return "bedrock"
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Tools            []bedrockTool    `json:"tools,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
	TopP             *float64         `json:"top_p,omitempty"`
	StopSequences    []string         `json:"stop_sequences,omitempty"`
}

type bedrockMessage struct {
	Role    string           `json:"role"`
	Content []bedrockContent `json:"content"`
}

type bedrockContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type bedrockResponse struct {
	ID         string               `json:"id"`
	Model      string               `json:"model"`
	Content    []bedrockContentItem `json:"content"`
	StopReason string               `json:"stop_reason"`
	Usage      bedrockUsage         `json:"usage"`
}

type bedrockContentItem struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

type bedrockUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Complete sends a blocking InvokeModel request.
func (b *BedrockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := b.buildBody(req)
	if err != nil {
		return nil, err
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, translateBedrockError(err)
	}

	var parsed bedrockResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return nil, &ProviderError{
			ClientError: ClientError{Message: "decoding bedrock response: " + err.Error(), Cause: err},
			Provider:    "bedrock",
		}
	}
	return bedrockToResponse(req.Model, parsed), nil
}

// Stream synthesizes a stream from a blocking call. The response text is
// emitted as a single delta.
func (b *BedrockAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent, 16)
	go func() {
		defer close(ch)
		ch <- StreamEvent{Type: StreamStart}

		resp, err := b.Complete(ctx, req)
		if err != nil {
			ch <- StreamEvent{Type: StreamError, Error: err}
			return
		}

		if resp.Text != "" {
			ch <- StreamEvent{Type: TextDelta, Delta: resp.Text}
		}
		for i := range resp.ToolCalls {
			ch <- StreamEvent{Type: ToolCallEnd, ToolCall: &resp.ToolCalls[i]}
		}
		ch <- StreamEvent{Type: StreamFinish, Response: resp}
	}()
	return ch, nil
}

func (b *BedrockAdapter) buildBody(req Request) ([]byte, error) {
	system, rest := req.SystemPrompt()

	messages := make([]bedrockMessage, 0, len(rest))
	for _, msg := range rest {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "assistant"
		}
		text := msg.Content
		if strings.TrimSpace(text) == "" {
			text = "."
		}
		messages = append(messages, bedrockMessage{
			Role:    role,
			Content: []bedrockContent{{Type: "text", Text: text}},
		})
	}
	if len(messages) == 0 {
		messages = append(messages, bedrockMessage{
			Role:    "user",
			Content: []bedrockContent{{Type: "text", Text: "."}},
		})
	}

	maxTokens := b.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           system,
		Messages:         messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		StopSequences:    req.StopSequences,
	}
	for _, t := range req.Tools {
		schema := t.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		request.Tools = append(request.Tools, bedrockTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, &InvalidRequestError{ProviderError{
			ClientError: ClientError{Message: "encoding bedrock request: " + err.Error(), Cause: err},
			Provider:    "bedrock",
		}}
	}
	return body, nil
}

func bedrockToResponse(reqModel string, parsed bedrockResponse) *Response {
	var text, reasoning strings.Builder
	var toolCalls []ToolCall
	for _, item := range parsed.Content {
		switch item.Type {
		case "text":
			text.WriteString(item.Text)
		case "thinking":
			reasoning.WriteString(item.Thinking)
		case "tool_use":
			if item.Name == "" {
				continue
			}
			args := item.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:        item.ID,
				Name:      item.Name,
				Arguments: args,
			})
		}
	}

	model := parsed.Model
	if model == "" {
		model = reqModel
	}

	return &Response{
		ID:           parsed.ID,
		Model:        model,
		Provider:     "bedrock",
		Text:         text.String(),
		Reasoning:    reasoning.String(),
		ToolCalls:    toolCalls,
		FinishReason: mapAnthropicStopReason(parsed.StopReason),
		Usage: Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}
}

func translateBedrockError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{ClientError{Message: "bedrock request aborted", Cause: err}}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return ErrorFromStatusCode("bedrock", 429, msg, err)
		case "AccessDeniedException":
			return ErrorFromStatusCode("bedrock", 403, msg, err)
		case "ValidationException":
			return ErrorFromStatusCode("bedrock", 400, msg, err)
		case "ResourceNotFoundException":
			return ErrorFromStatusCode("bedrock", 404, msg, err)
		case "ModelTimeoutException":
			return ErrorFromStatusCode("bedrock", 408, msg, err)
		case "ServiceUnavailableException", "InternalServerException", "ModelErrorException":
			return ErrorFromStatusCode("bedrock", 503, msg, err)
		default:
			return &ProviderError{
				ClientError: ClientError{Message: msg, Cause: err},
				Provider:    "bedrock",
				ErrorCode:   apiErr.ErrorCode(),
			}
		}
	}
	return &NetworkError{ClientError{Message: "bedrock request failed: " + err.Error(), Cause: err}}
}
