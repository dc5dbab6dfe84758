package agentloop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ApprovalDecision is a caller's answer to a tool approval request.
type ApprovalDecision string

const (
	// ApproveOnce allows the current call only.
	ApproveOnce ApprovalDecision = "allow-once"
	// ApproveSession allows the current call and adds the tool to the
	// session's approved set.
	ApproveSession ApprovalDecision = "allow-session"
	// Deny rejects the call; the batch and the enclosing iteration stop.
	Deny ApprovalDecision = "deny"
)

// ApprovalRequest describes the tool call awaiting a decision.
type ApprovalRequest struct {
	Tool string
	Args map[string]any
}

// ApprovalFunc is the caller-supplied decision callback. It may block (a
// terminal prompt, a chat round-trip); the gate resolves a cancelled
// context as Deny without waiting for it.
type ApprovalFunc func(ctx context.Context, req ApprovalRequest) ApprovalDecision

// ErrApprovalPending is returned when a request arrives while another is
// still unresolved. At most one request may be pending at a time.
var ErrApprovalPending = errors.New("approval request already pending")

// approvalGate runs the decision callback as a one-shot future. States
// cycle idle -> pending -> resolved -> idle; cancellation and timeout both
// resolve as Deny.
type approvalGate struct {
	mu      sync.Mutex
	pending bool
	timeout time.Duration
}

func newApprovalGate(timeout time.Duration) *approvalGate {
	return &approvalGate{timeout: timeout}
}

func (g *approvalGate) request(ctx context.Context, fn ApprovalFunc, req ApprovalRequest) (ApprovalDecision, error) {
	g.mu.Lock()
	if g.pending {
		g.mu.Unlock()
		return Deny, ErrApprovalPending
	}
	g.pending = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.pending = false
		g.mu.Unlock()
	}()

	// Single-slot future: the callback goroutine can always deliver its
	// answer and exit, even when the gate stopped waiting.
	decided := make(chan ApprovalDecision, 1)
	go func() {
		decided <- fn(ctx, req)
	}()

	var timeoutCh <-chan time.Time
	if g.timeout > 0 {
		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case decision := <-decided:
		return normalizeDecision(decision), nil
	case <-ctx.Done():
		return Deny, nil
	case <-timeoutCh:
		return Deny, nil
	}
}

// normalizeDecision maps anything outside the three known answers to Deny.
func normalizeDecision(d ApprovalDecision) ApprovalDecision {
	switch d {
	case ApproveOnce, ApproveSession, Deny:
		return d
	default:
		return Deny
	}
}
