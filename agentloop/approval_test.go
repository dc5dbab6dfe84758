package agentloop

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGateResolves(t *testing.T) {
	tests := []struct {
		name     string
		decision ApprovalDecision
		want     ApprovalDecision
	}{
		{"allow once", ApproveOnce, ApproveOnce},
		{"allow session", ApproveSession, ApproveSession},
		{"deny", Deny, Deny},
		{"unknown maps to deny", ApprovalDecision("maybe"), Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := newApprovalGate(0)
			fn := func(_ context.Context, _ ApprovalRequest) ApprovalDecision {
				return tt.decision
			}
			got, err := gate.request(context.Background(), fn, ApprovalRequest{Tool: "quote"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGateCancellation(t *testing.T) {
	gate := newApprovalGate(0)
	block := make(chan struct{})
	defer close(block)
	fn := func(_ context.Context, _ ApprovalRequest) ApprovalDecision {
		<-block
		return ApproveOnce
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := gate.request(ctx, fn, ApprovalRequest{Tool: "quote"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Deny {
		t.Errorf("expected cancellation to resolve as deny, got %q", got)
	}
}

func TestGateTimeout(t *testing.T) {
	gate := newApprovalGate(20 * time.Millisecond)
	block := make(chan struct{})
	defer close(block)
	fn := func(_ context.Context, _ ApprovalRequest) ApprovalDecision {
		<-block
		return ApproveOnce
	}

	got, err := gate.request(context.Background(), fn, ApprovalRequest{Tool: "quote"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Deny {
		t.Errorf("expected timeout to resolve as deny, got %q", got)
	}
}

func TestGateSecondRequestWhilePending(t *testing.T) {
	gate := newApprovalGate(0)
	started := make(chan struct{})
	release := make(chan struct{})
	first := func(_ context.Context, _ ApprovalRequest) ApprovalDecision {
		close(started)
		<-release
		return ApproveOnce
	}

	type outcome struct {
		decision ApprovalDecision
		err      error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		d, err := gate.request(context.Background(), first, ApprovalRequest{Tool: "quote"})
		firstDone <- outcome{d, err}
	}()
	<-started

	second := func(_ context.Context, _ ApprovalRequest) ApprovalDecision {
		t.Error("second callback must not be invoked while one is pending")
		return ApproveOnce
	}
	got, err := gate.request(context.Background(), second, ApprovalRequest{Tool: "fundamentals"})
	if !errors.Is(err, ErrApprovalPending) {
		t.Fatalf("expected ErrApprovalPending, got %v", err)
	}
	if got != Deny {
		t.Errorf("expected deny while pending, got %q", got)
	}

	close(release)
	out := <-firstDone
	if out.err != nil || out.decision != ApproveOnce {
		t.Errorf("first request should resolve normally, got (%q, %v)", out.decision, out.err)
	}
}

func TestGateIdleAfterResolve(t *testing.T) {
	gate := newApprovalGate(0)
	fn := func(_ context.Context, _ ApprovalRequest) ApprovalDecision { return Deny }

	for i := 0; i < 3; i++ {
		got, err := gate.request(context.Background(), fn, ApprovalRequest{Tool: "quote"})
		if err != nil {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
		if got != Deny {
			t.Errorf("request %d: expected deny, got %q", i, got)
		}
	}
}
