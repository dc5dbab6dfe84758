package agentloop

import (
	"context"
	"time"

	"github.com/fintalk/fintalk/llm"
)

// TerminationReason records how a run reached its done event.
type TerminationReason string

const (
	// ReasonCompleted is the normal path: the model produced an answer.
	ReasonCompleted TerminationReason = "completed"
	// ReasonDenied means the approval gate denied a tool call.
	ReasonDenied TerminationReason = "denied"
	// ReasonExhausted means the iteration limit was reached and a final
	// answer was forced.
	ReasonExhausted TerminationReason = "exhausted"
	// ReasonStalled means the stall guard broke a repeating tool pattern.
	ReasonStalled TerminationReason = "stalled"
)

// Result is the payload of the done event.
type Result struct {
	Answer     string            `json:"answer"`
	Iterations int               `json:"iterations"`
	ToolCalls  []ToolCallRecord  `json:"tool_calls,omitempty"`
	Usage      llm.Usage         `json:"usage"`
	Elapsed    time.Duration     `json:"elapsed"`
	Reason     TerminationReason `json:"reason"`
}

// Run is the handle for one in-flight query. The caller drains Events until
// the channel closes, then reads Err and Result. A run ends in exactly one
// of two ways: the channel closes after a done event (Err returns nil), or
// the channel closes without one and Err returns the model-invocation error
// that aborted it.
type Run struct {
	id     string
	events chan Event

	// Written by the engine goroutine before the channel closes; read by
	// the caller after it closes.
	result        *Result
	err           error
	answerStarted bool
}

// ID returns the run identifier used for the trace file name.
func (r *Run) ID() string { return r.id }

// Events returns the run's ordered event stream.
func (r *Run) Events() <-chan Event { return r.events }

// Err reports the error that aborted the run, if any. Valid after the
// event channel closes.
func (r *Run) Err() error { return r.err }

// Result returns the done payload, or nil if the run aborted. Valid after
// the event channel closes.
func (r *Run) Result() *Result { return r.result }

// emit delivers an event to the consumer, blocking when the channel is
// full. Run cancellation releases the block so an abandoned consumer
// cannot wedge the engine goroutine.
func (r *Run) emit(ctx context.Context, ev Event) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

// runContext holds the mutable state of one active run. It is owned
// exclusively by the engine goroutine and discarded when the run ends.
type runContext struct {
	runID      string
	query      string
	iteration  int
	startTime  time.Time
	usage      llm.Usage
	pad        *Scratchpad
	records    []ToolCallRecord
	toolCounts map[string]int
	limitWarns map[string]bool
	batchSigs  []string
}

func newRunContext(runID, query string, pad *Scratchpad) *runContext {
	return &runContext{
		runID:      runID,
		query:      query,
		startTime:  time.Now(),
		pad:        pad,
		toolCounts: make(map[string]int),
		limitWarns: make(map[string]bool),
	}
}

func (rc *runContext) result(answer string, reason TerminationReason) *Result {
	return &Result{
		Answer:     answer,
		Iterations: rc.iteration,
		ToolCalls:  rc.records,
		Usage:      rc.usage,
		Elapsed:    time.Since(rc.startTime),
		Reason:     reason,
	}
}
