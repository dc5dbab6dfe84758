package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiAdapter serves Gemini models through the Google generative AI API.
type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiAdapter creates an adapter using the given API key.
func NewGeminiAdapter(ctx context.Context, apiKey string) (*GeminiAdapter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, &ConfigurationError{ClientError{
			Message: "creating genai client: " + err.Error(),
			Cause:   err,
		}}
	}
	return &GeminiAdapter{
		client:       client,
		defaultModel: "gemini-3-flash-preview",
	}, nil
}

// Name returns "gemini".
func (g *GeminiAdapter) Name() string {
	return "gemini"
}

// Close releases the underlying gRPC connection.
func (g *GeminiAdapter) Close() error {
	return g.client.Close()
}

// Complete sends a blocking generate request.
func (g *GeminiAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	session, parts, model := g.prepare(req)

	resp, err := session.SendMessage(ctx, parts...)
	if err != nil {
		return nil, translateGeminiError(err)
	}
	return geminiResponse(model, resp)
}

// Stream sends a streaming generate request.
func (g *GeminiAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	session, parts, model := g.prepare(req)

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		ch <- StreamEvent{Type: StreamStart}

		iter := session.SendMessageStream(ctx, parts...)

		var (
			text      strings.Builder
			toolCalls []ToolCall
			last      *genai.GenerateContentResponse
		)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: &StreamingError{
					ClientError: ClientError{Message: "gemini stream failed: " + err.Error(), Cause: err},
					Provider:    "gemini",
				}}
				return
			}
			last = resp

			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				switch v := part.(type) {
				case genai.Text:
					if v != "" {
						text.WriteString(string(v))
						ch <- StreamEvent{Type: TextDelta, Delta: string(v)}
					}
				case genai.FunctionCall:
					tc, err := geminiToolCall(v)
					if err != nil {
						ch <- StreamEvent{Type: StreamError, Error: &StreamingError{
							ClientError: ClientError{Message: "decoding gemini tool call: " + err.Error(), Cause: err},
							Provider:    "gemini",
						}}
						return
					}
					toolCalls = append(toolCalls, *tc)
					ch <- StreamEvent{Type: ToolCallEnd, ToolCall: tc}
				}
			}
		}

		resp := &Response{
			Model:        model,
			Provider:     "gemini",
			Text:         text.String(),
			ToolCalls:    toolCalls,
			FinishReason: FinishReason{Reason: "stop"},
		}
		if len(toolCalls) > 0 {
			resp.FinishReason = FinishReason{Reason: "tool_calls"}
		}
		if last != nil {
			if len(last.Candidates) > 0 {
				resp.FinishReason = mapGeminiFinishReason(last.Candidates[0].FinishReason, len(toolCalls) > 0)
			}
			resp.Usage = geminiUsage(last)
		}
		ch <- StreamEvent{Type: StreamFinish, Response: resp}
	}()

	return ch, nil
}

// prepare builds a fresh chat session per request; GenerativeModel carries
// mutable per-request state (tools, system instruction) and must not be
// shared across concurrent calls.
func (g *GeminiAdapter) prepare(req Request) (*genai.ChatSession, []genai.Part, string) {
	modelName := req.Model
	if modelName == "" {
		modelName = g.defaultModel
	}
	model := g.client.GenerativeModel(modelName)

	system, rest := req.SystemPrompt()
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  genaiSchema(t.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	if req.TopP != nil {
		model.SetTopP(float32(*req.TopP))
	}
	if req.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*req.MaxTokens))
	}
	if len(req.StopSequences) > 0 {
		model.StopSequences = req.StopSequences
	}

	history := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	var parts []genai.Part
	if len(history) > 0 {
		parts = history[len(history)-1].Parts
		history = history[:len(history)-1]
	} else {
		parts = []genai.Part{genai.Text(".")}
	}

	session := model.StartChat()
	session.History = history
	return session, parts, modelName
}

func geminiResponse(model string, resp *genai.GenerateContentResponse) (*Response, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &ProviderError{
			ClientError: ClientError{Message: "empty response from gemini"},
			Provider:    "gemini",
		}
	}

	var text strings.Builder
	var toolCalls []ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			tc, err := geminiToolCall(v)
			if err != nil {
				return nil, &ProviderError{
					ClientError: ClientError{Message: "decoding gemini tool call: " + err.Error(), Cause: err},
					Provider:    "gemini",
				}
			}
			toolCalls = append(toolCalls, *tc)
		}
	}

	return &Response{
		Model:        model,
		Provider:     "gemini",
		Text:         text.String(),
		ToolCalls:    toolCalls,
		FinishReason: mapGeminiFinishReason(resp.Candidates[0].FinishReason, len(toolCalls) > 0),
		Usage:        geminiUsage(resp),
		Raw:          resp,
	}, nil
}

// geminiToolCall synthesizes a call ID; the Gemini API does not assign one.
func geminiToolCall(fc genai.FunctionCall) (*ToolCall, error) {
	args, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, fmt.Errorf("marshaling args for %s: %w", fc.Name, err)
	}
	return &ToolCall{
		ID:        "call_" + uuid.New().String()[:8],
		Name:      fc.Name,
		Arguments: args,
	}, nil
}

func geminiUsage(resp *genai.GenerateContentResponse) Usage {
	if resp.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
	}
}

func mapGeminiFinishReason(reason genai.FinishReason, hasToolCalls bool) FinishReason {
	raw := reason.String()
	switch reason {
	case genai.FinishReasonStop:
		if hasToolCalls {
			return FinishReason{Reason: "tool_calls", Raw: raw}
		}
		return FinishReason{Reason: "stop", Raw: raw}
	case genai.FinishReasonMaxTokens:
		return FinishReason{Reason: "length", Raw: raw}
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return FinishReason{Reason: "content_filter", Raw: raw}
	case genai.FinishReasonUnspecified:
		if hasToolCalls {
			return FinishReason{Reason: "tool_calls", Raw: raw}
		}
		return FinishReason{Reason: "stop", Raw: raw}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}

// genaiSchema converts a JSON Schema object into the genai schema type.
func genaiSchema(raw map[string]any) *genai.Schema {
	if len(raw) == 0 {
		return &genai.Schema{Type: genai.TypeObject}
	}

	schema := &genai.Schema{Type: genaiType(stringField(raw, "type"))}
	if desc := stringField(raw, "description"); desc != "" {
		schema.Description = desc
	}
	if props, ok := raw["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, sub := range props {
			subMap, ok := sub.(map[string]any)
			if !ok {
				continue
			}
			schema.Properties[name] = genaiSchema(subMap)
		}
	}
	if items, ok := raw["items"].(map[string]any); ok {
		schema.Items = genaiSchema(items)
	}
	if required, ok := raw["required"]; ok {
		schema.Required = toStringSlice(required)
	}
	if enum, ok := raw["enum"]; ok {
		schema.Enum = toStringSlice(enum)
	}
	return schema
}

func genaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object", "":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func translateGeminiError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{ClientError{Message: "gemini request aborted", Cause: err}}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode("gemini", apiErr.Code, apiErr.Message, err)
	}
	return &NetworkError{ClientError{Message: "gemini request failed: " + err.Error(), Cause: err}}
}
