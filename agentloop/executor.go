package agentloop

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fintalk/fintalk/llm"
)

// executeBatch runs one batch of model-requested tool calls strictly
// sequentially: each call emits tool_start, then exactly one of tool_end,
// tool_error or tool_denied. A denial stops the batch and the enclosing
// iteration; a failed call does not. The returned error is non-nil only
// for run cancellation.
func (s *Session) executeBatch(ctx context.Context, run *Run, rc *runContext, calls []llm.ToolCall) (denied bool, err error) {
	for _, call := range calls {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		denied, err = s.executeCall(ctx, run, rc, call)
		if err != nil || denied {
			return denied, err
		}
	}
	return false, nil
}

// executeCall handles the full pipeline for one tool call:
// lookup -> approval -> validate -> budget check -> invoke -> truncate ->
// record.
func (s *Session) executeCall(ctx context.Context, run *Run, rc *runContext, call llm.ToolCall) (denied bool, err error) {
	args, argsErr := call.Args()
	run.emit(ctx, toolStartEvent(call.Name, args))

	tool := s.registry.Get(call.Name)
	if tool == nil {
		run.emit(ctx, toolErrorEvent(call.Name, fmt.Sprintf("unknown tool %q", call.Name)))
		return false, nil
	}

	if s.needsApproval(call.Name) {
		run.emit(ctx, toolApprovalEvent(call.Name, args))
		decision, gateErr := s.gate.request(ctx, s.approver, ApprovalRequest{Tool: call.Name, Args: args})
		if gateErr != nil {
			s.logger.Warn().Err(gateErr).Str("tool", call.Name).Msg("approval gate error")
		}
		switch decision {
		case ApproveSession:
			s.approveForSession(call.Name)
		case Deny:
			run.emit(ctx, toolDeniedEvent(call.Name, "approval denied"))
			return true, nil
		}
	}

	if argsErr != nil {
		run.emit(ctx, toolErrorEvent(call.Name, fmt.Sprintf("invalid arguments: %v", argsErr)))
		return false, nil
	}
	if err := ValidateArgs(tool.Schema, args); err != nil {
		run.emit(ctx, toolErrorEvent(call.Name, err.Error()))
		return false, nil
	}

	if budget := s.cfg.ToolBudgets[call.Name]; budget > 0 {
		if rc.toolCounts[call.Name]+1 >= budget && !rc.limitWarns[call.Name] {
			rc.limitWarns[call.Name] = true
			run.emit(ctx, toolLimitEvent(call.Name,
				fmt.Sprintf("%s has reached its budget of %d calls this run", call.Name, budget)))
		}
	}

	callCtx := withProgressReporter(ctx, func(message string) {
		run.emit(ctx, toolProgressEvent(call.Name, message))
	})

	s.logger.Debug().Str("run", rc.runID).Str("tool", call.Name).Msg("invoking tool")
	output, invokeErr := tool.Func(callCtx, args)
	if invokeErr != nil {
		run.emit(ctx, toolErrorEvent(call.Name, invokeErr.Error()))
		return false, nil
	}

	output = TruncateToolOutput(output, call.Name, s.cfg.ToolOutputLimits, s.cfg.ToolLineLimits)
	rc.pad.AddToolResult(call.Name, args, output)
	rc.records = append(rc.records, ToolCallRecord{Name: call.Name, Args: args, Result: output})
	rc.toolCounts[call.Name]++
	run.emit(ctx, toolEndEvent(call.Name, args, output))
	return false, nil
}

// needsApproval reports whether the named tool must pass the gate before
// running: no approver means nothing does, trusted patterns and previous
// allow-session decisions skip it.
func (s *Session) needsApproval(name string) bool {
	if s.approver == nil {
		return false
	}
	for _, pattern := range s.cfg.TrustedTools {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return false
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.approved[name]
}

func (s *Session) approveForSession(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[name] = true
}
