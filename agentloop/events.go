package agentloop

import (
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventThinking       EventKind = "thinking"
	EventToolStart      EventKind = "tool_start"
	EventToolProgress   EventKind = "tool_progress"
	EventToolEnd        EventKind = "tool_end"
	EventToolError      EventKind = "tool_error"
	EventToolApproval   EventKind = "tool_approval"
	EventToolDenied     EventKind = "tool_denied"
	EventToolLimit      EventKind = "tool_limit"
	EventContextCleared EventKind = "context_cleared"
	EventAnswerStart    EventKind = "answer_start"
	EventDone           EventKind = "done"
)

// Event is one entry in a run's ordered event stream. Exactly one payload
// pointer is set, matching the kind. Every run emits exactly one done event,
// and it is always the last event before the channel closes.
type Event struct {
	Kind           EventKind           `json:"kind"`
	Timestamp      time.Time           `json:"timestamp"`
	Thinking       *ThinkingData       `json:"thinking,omitempty"`
	Tool           *ToolData           `json:"tool,omitempty"`
	ContextCleared *ContextClearedData `json:"context_cleared,omitempty"`
	Done           *Result             `json:"done,omitempty"`
}

// ThinkingData carries model narration or reasoning text.
type ThinkingData struct {
	Text string `json:"text"`
}

// ToolData carries the payload for all tool_* events. Result is set on
// tool_end, Error on tool_error and tool_denied, Message on tool_progress
// and tool_limit.
type ToolData struct {
	Name    string         `json:"name"`
	Args    map[string]any `json:"args,omitempty"`
	Result  string         `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

// ContextClearedData reports a scratchpad eviction.
type ContextClearedData struct {
	Cleared int `json:"cleared"`
	Kept    int `json:"kept"`
}

func thinkingEvent(text string) Event {
	return Event{Kind: EventThinking, Timestamp: time.Now(), Thinking: &ThinkingData{Text: text}}
}

func toolStartEvent(name string, args map[string]any) Event {
	return Event{Kind: EventToolStart, Timestamp: time.Now(), Tool: &ToolData{Name: name, Args: args}}
}

func toolProgressEvent(name, message string) Event {
	return Event{Kind: EventToolProgress, Timestamp: time.Now(), Tool: &ToolData{Name: name, Message: message}}
}

func toolEndEvent(name string, args map[string]any, result string) Event {
	return Event{Kind: EventToolEnd, Timestamp: time.Now(), Tool: &ToolData{Name: name, Args: args, Result: result}}
}

func toolErrorEvent(name, errMsg string) Event {
	return Event{Kind: EventToolError, Timestamp: time.Now(), Tool: &ToolData{Name: name, Error: errMsg}}
}

func toolApprovalEvent(name string, args map[string]any) Event {
	return Event{Kind: EventToolApproval, Timestamp: time.Now(), Tool: &ToolData{Name: name, Args: args}}
}

func toolDeniedEvent(name, reason string) Event {
	return Event{Kind: EventToolDenied, Timestamp: time.Now(), Tool: &ToolData{Name: name, Error: reason}}
}

func toolLimitEvent(name, message string) Event {
	return Event{Kind: EventToolLimit, Timestamp: time.Now(), Tool: &ToolData{Name: name, Message: message}}
}

func contextClearedEvent(cleared, kept int) Event {
	return Event{Kind: EventContextCleared, Timestamp: time.Now(), ContextCleared: &ContextClearedData{Cleared: cleared, Kept: kept}}
}

func answerStartEvent() Event {
	return Event{Kind: EventAnswerStart, Timestamp: time.Now()}
}

func doneEvent(res *Result) Event {
	return Event{Kind: EventDone, Timestamp: time.Now(), Done: res}
}
