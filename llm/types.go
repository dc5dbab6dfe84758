package llm

import (
	"encoding/json"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleSystem is a system instruction message.
	RoleSystem Role = "system"
	// RoleUser is an end-user message.
	RoleUser Role = "user"
	// RoleAssistant is a model-generated message.
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation. Prompts are plain text; the
// engine folds tool results and prior turns into the content string before
// calling the client, so no multi-part content union is needed here.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system-role message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user-role message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant-role message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// Tool describes a function the model may call. Parameters is a JSON Schema
// object ({"type": "object", "properties": {...}, "required": [...]}).
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned call identifier, echoed back in results.
	ID string `json:"id"`
	// Name is the tool to invoke.
	Name string `json:"name"`
	// Arguments is the raw JSON argument object.
	Arguments json.RawMessage `json:"arguments"`
}

// Args unmarshals the call arguments into a generic map. A missing or empty
// argument payload yields an empty map rather than an error.
func (tc ToolCall) Args() (map[string]any, error) {
	if len(tc.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// FinishReason describes why the model stopped generating.
type FinishReason struct {
	// Reason is the normalized reason: "stop", "length", "tool_calls",
	// "content_filter", "error", or "other".
	Reason string `json:"reason"`
	// Raw is the provider-specific reason string, unmodified.
	Raw string `json:"raw,omitempty"`
}

// Usage reports token consumption for a single request.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`

	// CacheReadTokens and CacheWriteTokens are set only by providers that
	// report prompt-cache activity.
	CacheReadTokens  *int `json:"cacheReadTokens,omitempty"`
	CacheWriteTokens *int `json:"cacheWriteTokens,omitempty"`
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CacheReadTokens = addOptionalInt(u.CacheReadTokens, other.CacheReadTokens)
	u.CacheWriteTokens = addOptionalInt(u.CacheWriteTokens, other.CacheWriteTokens)
}

func addOptionalInt(a, b *int) *int {
	if a == nil && b == nil {
		return nil
	}
	sum := 0
	if a != nil {
		sum += *a
	}
	if b != nil {
		sum += *b
	}
	return &sum
}

// Request is a provider-agnostic completion request.
type Request struct {
	// Model is the model identifier, e.g. "claude-sonnet-4-5".
	Model string `json:"model"`
	// Provider optionally pins the request to a registered provider,
	// bypassing model-prefix routing.
	Provider string `json:"provider,omitempty"`
	// Messages is the conversation so far. System messages are extracted
	// by adapters that take system prompts out of band.
	Messages []Message `json:"messages"`
	// Tools the model may call this turn. Empty means no tool use.
	Tools []Tool `json:"tools,omitempty"`

	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`

	// Metadata carries caller tags through middleware; adapters ignore it.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SystemPrompt returns the concatenated system messages, and the remaining
// non-system messages in order.
func (r Request) SystemPrompt() (string, []Message) {
	var system string
	rest := make([]Message, 0, len(r.Messages))
	for _, msg := range r.Messages {
		if msg.Role == RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

// Response is a provider-agnostic completion result.
type Response struct {
	// ID is the provider-assigned response identifier.
	ID string `json:"id,omitempty"`
	// Model is the model that produced the response.
	Model string `json:"model"`
	// Provider is the adapter that served the request.
	Provider string `json:"provider"`

	// Text is the assistant's answer text. May be empty when the model
	// responded only with tool calls.
	Text string `json:"text"`
	// Reasoning is extended-thinking text, when the provider exposes it.
	Reasoning string `json:"reasoning,omitempty"`
	// ToolCalls are the tool invocations requested by the model, in order.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	FinishReason FinishReason `json:"finishReason"`
	Usage        Usage        `json:"usage"`

	// Raw is the untranslated provider response, for debugging.
	Raw any `json:"-"`
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// StreamEventType identifies a streaming event.
type StreamEventType string

const (
	// StreamStart is emitted once before any deltas.
	StreamStart StreamEventType = "stream_start"
	// TextDelta carries an incremental chunk of answer text.
	TextDelta StreamEventType = "text_delta"
	// ReasoningDelta carries an incremental chunk of thinking text.
	ReasoningDelta StreamEventType = "reasoning_delta"
	// ToolCallEnd carries one complete tool call once its arguments have
	// fully streamed.
	ToolCallEnd StreamEventType = "tool_call_end"
	// StreamFinish is the terminal success event; Response is populated.
	StreamFinish StreamEventType = "stream_finish"
	// StreamError is the terminal failure event; Error is populated.
	StreamError StreamEventType = "stream_error"
)

// StreamEvent is one event on a streaming response channel. Adapters close
// the channel after emitting StreamFinish or StreamError.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// Delta is the text chunk for TextDelta and ReasoningDelta events.
	Delta string `json:"delta,omitempty"`
	// ToolCall is set for ToolCallEnd events.
	ToolCall *ToolCall `json:"toolCall,omitempty"`
	// Response is the complete accumulated response, set on StreamFinish.
	Response *Response `json:"response,omitempty"`
	// Error is set on StreamError events.
	Error error `json:"-"`
}
