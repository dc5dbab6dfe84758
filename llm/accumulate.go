package llm

import "strings"

// StreamAccumulator collects streaming events into a complete Response.
// Feed every event from a Stream channel to Process, then call Result.
type StreamAccumulator struct {
	text      strings.Builder
	reasoning strings.Builder
	toolCalls []ToolCall
	finish    *Response
	err       error
}

// Process consumes one stream event.
func (a *StreamAccumulator) Process(ev StreamEvent) {
	switch ev.Type {
	case TextDelta:
		a.text.WriteString(ev.Delta)
	case ReasoningDelta:
		a.reasoning.WriteString(ev.Delta)
	case ToolCallEnd:
		if ev.ToolCall != nil {
			a.toolCalls = append(a.toolCalls, *ev.ToolCall)
		}
	case StreamFinish:
		a.finish = ev.Response
	case StreamError:
		a.err = ev.Error
	}
}

// Text returns the answer text accumulated so far.
func (a *StreamAccumulator) Text() string {
	return a.text.String()
}

// Result returns the final response. The StreamFinish response is preferred;
// any fields it left empty are filled from the accumulated deltas. Returns
// the stream error if one was seen.
func (a *StreamAccumulator) Result() (*Response, error) {
	if a.err != nil {
		return nil, a.err
	}

	resp := a.finish
	if resp == nil {
		resp = &Response{FinishReason: FinishReason{Reason: "stop"}}
	}
	if resp.Text == "" {
		resp.Text = a.text.String()
	}
	if resp.Reasoning == "" {
		resp.Reasoning = a.reasoning.String()
	}
	if len(resp.ToolCalls) == 0 {
		resp.ToolCalls = a.toolCalls
	}
	if len(resp.ToolCalls) > 0 && resp.FinishReason.Reason == "stop" {
		resp.FinishReason.Reason = "tool_calls"
	}
	return resp, nil
}
