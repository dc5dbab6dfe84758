package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStreamAccumulator(t *testing.T) {
	acc := &StreamAccumulator{}
	acc.Process(StreamEvent{Type: StreamStart})
	acc.Process(StreamEvent{Type: TextDelta, Delta: "Apple trades "})
	acc.Process(StreamEvent{Type: TextDelta, Delta: "at 28x earnings."})
	acc.Process(StreamEvent{Type: ReasoningDelta, Delta: "comparing to sector median"})
	acc.Process(StreamEvent{Type: StreamFinish, Response: &Response{
		Model:        "claude-opus-4-6",
		Provider:     "anthropic",
		FinishReason: FinishReason{Reason: "stop", Raw: "end_turn"},
		Usage:        Usage{InputTokens: 12, OutputTokens: 8, TotalTokens: 20},
	}})

	if acc.Text() != "Apple trades at 28x earnings." {
		t.Errorf("unexpected accumulated text: %q", acc.Text())
	}

	resp, err := acc.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Apple trades at 28x earnings." {
		t.Errorf("expected backfilled text, got %q", resp.Text)
	}
	if resp.Reasoning != "comparing to sector median" {
		t.Errorf("expected backfilled reasoning, got %q", resp.Reasoning)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("expected usage from finish event, got %d", resp.Usage.TotalTokens)
	}
	if resp.FinishReason.Reason != "stop" {
		t.Errorf("expected finish reason stop, got %q", resp.FinishReason.Reason)
	}
}

func TestStreamAccumulatorToolCalls(t *testing.T) {
	acc := &StreamAccumulator{}
	acc.Process(StreamEvent{Type: StreamStart})
	acc.Process(StreamEvent{Type: ToolCallEnd, ToolCall: &ToolCall{
		ID: "call_1", Name: "get_quote", Arguments: json.RawMessage(`{"symbol":"AAPL"}`),
	}})
	acc.Process(StreamEvent{Type: ToolCallEnd, ToolCall: &ToolCall{
		ID: "call_2", Name: "get_fundamentals", Arguments: json.RawMessage(`{"symbol":"AAPL"}`),
	}})
	acc.Process(StreamEvent{Type: StreamFinish, Response: &Response{
		FinishReason: FinishReason{Reason: "stop"},
	}})

	resp, err := acc.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "get_quote" {
		t.Errorf("expected first call get_quote, got %q", resp.ToolCalls[0].Name)
	}
	// A response carrying tool calls reports tool_calls even when the
	// provider's raw reason said stop.
	if resp.FinishReason.Reason != "tool_calls" {
		t.Errorf("expected finish reason tool_calls, got %q", resp.FinishReason.Reason)
	}
}

func TestStreamAccumulatorError(t *testing.T) {
	streamErr := &StreamingError{
		ClientError: ClientError{Message: "connection reset mid-stream"},
		Provider:    "anthropic",
	}
	acc := &StreamAccumulator{}
	acc.Process(StreamEvent{Type: StreamStart})
	acc.Process(StreamEvent{Type: TextDelta, Delta: "partial"})
	acc.Process(StreamEvent{Type: StreamError, Error: streamErr})

	if _, err := acc.Result(); !errors.Is(err, streamErr) {
		t.Errorf("expected stream error, got %v", err)
	}
	// Partial text stays available for callers that want to salvage it.
	if acc.Text() != "partial" {
		t.Errorf("expected partial text preserved, got %q", acc.Text())
	}
}

func TestStreamAccumulatorNoFinish(t *testing.T) {
	acc := &StreamAccumulator{}
	acc.Process(StreamEvent{Type: TextDelta, Delta: "hello"})

	resp, err := acc.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("expected accumulated text, got %q", resp.Text)
	}
}
