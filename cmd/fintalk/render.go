package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fintalk/fintalk/agentloop"
)

// renderer writes run events as terminal output. Thinking text arrives
// as deltas when streaming, so it is written raw and terminated with a
// newline before any other line goes out.
type renderer struct {
	w        io.Writer
	thinking bool
}

func (r *renderer) event(ev agentloop.Event) {
	switch ev.Kind {
	case agentloop.EventThinking:
		fmt.Fprint(r.w, ev.Thinking.Text)
		r.thinking = true
	case agentloop.EventToolStart:
		r.breakLine()
		fmt.Fprintf(r.w, "[tool] %s\n", formatToolCall(ev.Tool.Name, ev.Tool.Args))
	case agentloop.EventToolProgress:
		r.breakLine()
		fmt.Fprintf(r.w, "[tool] %s\n", ev.Tool.Message)
	case agentloop.EventToolError:
		r.breakLine()
		fmt.Fprintf(r.w, "[tool] %s failed: %s\n", ev.Tool.Name, ev.Tool.Error)
	case agentloop.EventToolDenied:
		r.breakLine()
		fmt.Fprintf(r.w, "[tool] %s denied\n", ev.Tool.Name)
	case agentloop.EventToolLimit:
		r.breakLine()
		fmt.Fprintf(r.w, "[tool] %s\n", ev.Tool.Message)
	case agentloop.EventContextCleared:
		r.breakLine()
		fmt.Fprintf(r.w, "[context] cleared %d scratchpad entries, kept %d\n",
			ev.ContextCleared.Cleared, ev.ContextCleared.Kept)
	case agentloop.EventAnswerStart:
		r.breakLine()
	}
}

func (r *renderer) breakLine() {
	if r.thinking {
		fmt.Fprintln(r.w)
		r.thinking = false
	}
}

// terminalApprover prompts on the terminal for each tool call the
// engine wants run. The prompt opens with a newline in case streamed
// thinking text is mid-line on the same terminal.
func terminalApprover(reader *bufio.Reader, out io.Writer) agentloop.ApprovalFunc {
	return func(ctx context.Context, req agentloop.ApprovalRequest) agentloop.ApprovalDecision {
		fmt.Fprintf(out, "\nAllow %s? [y]es once / [a]lways / [n]o: ", formatToolCall(req.Tool, req.Args))
		line, err := reader.ReadString('\n')
		if err != nil {
			return agentloop.Deny
		}
		return parseTerminalDecision(line)
	}
}

func parseTerminalDecision(line string) agentloop.ApprovalDecision {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return agentloop.ApproveOnce
	case "a", "always":
		return agentloop.ApproveSession
	default:
		return agentloop.Deny
	}
}

// formatToolCall renders a call as name(k=v, ...) with sorted keys.
func formatToolCall(name string, args map[string]any) string {
	if len(args) == 0 {
		return name
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
