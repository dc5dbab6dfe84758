package agentloop

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fintalk/fintalk/llm"
)

// ModelClient is the slice of the model client the engine consumes.
// *llm.Client satisfies it; tests substitute scripted fakes.
type ModelClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error)
}

// Exchange is one completed query/answer pair retained by the session.
// Prior exchanges feed the condensed query list in the first iteration's
// prompt.
type Exchange struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds the engine's tunables.
type Config struct {
	Provider         string            `json:"provider,omitempty"`
	Model            string            `json:"model,omitempty"`
	SystemPrompt     string            `json:"system_prompt,omitempty"`
	MaxIterations    int               `json:"max_iterations"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	Streaming        bool              `json:"streaming"`
	FallbackAnswer   string            `json:"fallback_answer"`
	TraceDir         string            `json:"trace_dir,omitempty"`
	ContextThreshold int               `json:"context_threshold"`
	KeepRecent       int               `json:"keep_recent"`
	Estimator        func(string) int  `json:"-"`
	TrustedTools     []string          `json:"trusted_tools,omitempty"`
	ToolBudgets      map[string]int    `json:"tool_budgets,omitempty"`
	ToolOutputLimits map[string]int    `json:"tool_output_limits,omitempty"`
	ToolLineLimits   map[string]int    `json:"tool_line_limits,omitempty"`
	StallWindow      int               `json:"stall_window"`
	HistoryLimit     int               `json:"history_limit"`
	ApprovalTimeout  time.Duration     `json:"-"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    10,
		Streaming:        true,
		FallbackAnswer:   "I was unable to produce a final answer for this query.",
		ContextThreshold: 12000,
		KeepRecent:       5,
		StallWindow:      6,
		HistoryLimit:     5,
	}
}

const eventBuffer = 64

// Session owns the state that outlives a single run: the exchange history,
// the session-approved tool set, and the approval gate. Queries against
// the same session are serialized; Run blocks a second caller until the
// first run finishes.
type Session struct {
	id       string
	cfg      Config
	client   ModelClient
	registry *Registry
	approver ApprovalFunc
	gate     *approvalGate
	logger   zerolog.Logger

	runMu sync.Mutex // serializes runs

	mu       sync.Mutex // guards approved and history
	approved map[string]bool
	history  []Exchange
}

// NewSession creates a session around a model client and a tool registry.
// A nil config takes DefaultConfig; a nil registry starts empty.
func NewSession(client ModelClient, registry *Registry, config *Config) *Session {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Session{
		id:       uuid.New().String(),
		cfg:      cfg,
		client:   client,
		registry: registry,
		gate:     newApprovalGate(cfg.ApprovalTimeout),
		approved: make(map[string]bool),
		logger:   zerolog.Nop(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Registry returns the session's tool registry.
func (s *Session) Registry() *Registry { return s.registry }

// SetApprover installs the approval callback. A nil approver means no tool
// ever requires approval.
func (s *Session) SetApprover(fn ApprovalFunc) { s.approver = fn }

// SetLogger replaces the session's logger (default is a no-op logger; the
// event stream is the engine's primary observability surface).
func (s *Session) SetLogger(logger zerolog.Logger) { s.logger = logger }

// History returns a copy of the session's completed exchanges.
func (s *Session) History() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Exchange, len(s.history))
	copy(h, s.history)
	return h
}

// AddExchange appends a prior exchange, used when rehydrating a persisted
// session.
func (s *Session) AddExchange(ex Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, ex)
}

// ApprovedTools returns the session-approved tool names, sorted.
func (s *Session) ApprovedTools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.approved))
	for name := range s.approved {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApproveTool marks a tool as session-approved, used when rehydrating a
// persisted session.
func (s *Session) ApproveTool(name string) {
	s.approveForSession(name)
}

// Run starts processing a query and returns its handle. The caller drains
// the handle's event channel; after it closes, Err and Result report how
// the run ended. Runs against the same session execute one at a time.
func (s *Session) Run(ctx context.Context, query string) *Run {
	run := &Run{
		id:     uuid.New().String(),
		events: make(chan Event, eventBuffer),
	}
	go s.process(ctx, run, query)
	return run
}

// process drives the iteration loop for one run.
func (s *Session) process(ctx context.Context, run *Run, query string) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	defer close(run.events)

	prior := s.History()

	pad := NewScratchpad(s.cfg.TraceDir, run.id, s.logger)
	defer pad.Close()
	pad.Init(query)

	rc := newRunContext(run.id, query, pad)
	s.logger.Debug().Str("run", run.id).Str("query", condense(query)).Msg("run started")

	finish := func(answer string, reason TerminationReason) {
		res := rc.result(answer, reason)
		run.result = res
		run.emit(ctx, doneEvent(res))
		s.mu.Lock()
		s.history = append(s.history, Exchange{Query: query, Answer: answer, Timestamp: time.Now()})
		s.mu.Unlock()
		s.logger.Debug().Str("run", run.id).Str("reason", string(reason)).
			Int("iterations", res.Iterations).Msg("run finished")
	}
	fail := func(err error) {
		run.err = err
		s.logger.Warn().Err(err).Str("run", run.id).Msg("run aborted")
	}

	for rc.iteration < s.cfg.MaxIterations {
		rc.iteration++

		var prompt string
		if rc.iteration == 1 {
			prompt = buildInitialPrompt(query, prior, s.cfg.HistoryLimit)
		} else {
			prompt = buildIterationPrompt(query, rc.pad)
		}

		resp, streamedThinking, err := s.modelCall(ctx, run, prompt, true)
		if err != nil {
			fail(err)
			return
		}
		rc.usage.Add(resp.Usage)

		if !resp.HasToolCalls() {
			if !rc.pad.HasToolResults() {
				// Direct conversational answer, no second model call.
				run.answerStarted = true
				run.emit(ctx, answerStartEvent())
				finish(strings.TrimSpace(resp.Text), ReasonCompleted)
				return
			}
			answer, err := s.finalAnswer(ctx, run, rc)
			if err != nil {
				fail(err)
				return
			}
			finish(answer, ReasonCompleted)
			return
		}

		// Narration accompanying the tool calls.
		if resp.Reasoning != "" {
			rc.pad.AddThinking(resp.Reasoning)
			if !streamedThinking {
				run.emit(ctx, thinkingEvent(resp.Reasoning))
			}
		}
		if text := strings.TrimSpace(resp.Text); text != "" {
			rc.pad.AddThinking(text)
			run.emit(ctx, thinkingEvent(text))
		}

		denied, err := s.executeBatch(ctx, run, rc, resp.ToolCalls)
		if err != nil {
			fail(err)
			return
		}
		if denied {
			finish("", ReasonDenied)
			return
		}

		if cleared, kept, evicted := s.guard().Check(rc.pad, s.systemPrompt(), query); evicted {
			run.emit(ctx, contextClearedEvent(cleared, kept))
		}

		if s.cfg.StallWindow > 0 {
			rc.batchSigs = append(rc.batchSigs, batchSignature(resp.ToolCalls))
			if detectStall(rc.batchSigs, s.cfg.StallWindow) {
				s.logger.Debug().Str("run", run.id).Msg("stall detected, forcing final answer")
				answer, err := s.finalAnswer(ctx, run, rc)
				if err != nil {
					fail(err)
					return
				}
				if answer == "" {
					answer = s.cfg.FallbackAnswer
				}
				finish(answer, ReasonStalled)
				return
			}
		}
	}

	// Iterations exhausted: force a final answer from what was gathered.
	answer, err := s.finalAnswer(ctx, run, rc)
	if err != nil {
		fail(err)
		return
	}
	if answer == "" {
		answer = s.cfg.FallbackAnswer
	}
	finish(answer, ReasonExhausted)
}

// finalAnswer issues the consolidated final-answer call: full scratchpad
// context, no tools bound. It does not increment the iteration counter.
func (s *Session) finalAnswer(ctx context.Context, run *Run, rc *runContext) (string, error) {
	if !run.answerStarted {
		run.answerStarted = true
		run.emit(ctx, answerStartEvent())
	}
	prompt := buildFinalPrompt(rc.query, rc.pad)
	resp, _, err := s.modelCall(ctx, run, prompt, false)
	if err != nil {
		return "", err
	}
	rc.usage.Add(resp.Usage)
	return strings.TrimSpace(resp.Text), nil
}

// modelCall invokes the model, streaming when configured. Reasoning deltas
// surface live as thinking events; answer text is never delivered as
// deltas (it travels in the done payload). A stream that fails mid-call
// falls back to a blocking retry of the same request. The second return
// reports whether reasoning was already emitted as thinking events.
func (s *Session) modelCall(ctx context.Context, run *Run, prompt string, withTools bool) (*llm.Response, bool, error) {
	req := s.buildRequest(prompt, withTools)

	if !s.cfg.Streaming {
		resp, err := s.client.Complete(ctx, req)
		return resp, false, err
	}

	events, err := s.client.Stream(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("run", run.id).Msg("stream failed to start, using blocking call")
		resp, err := s.client.Complete(ctx, req)
		return resp, false, err
	}

	streamedThinking := false
	acc := &llm.StreamAccumulator{}
	for ev := range events {
		if ev.Type == llm.ReasoningDelta && ev.Delta != "" {
			streamedThinking = true
			run.emit(ctx, thinkingEvent(ev.Delta))
		}
		acc.Process(ev)
	}
	resp, err := acc.Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("run", run.id).Msg("stream failed mid-call, using blocking call")
		resp, cerr := s.client.Complete(ctx, req)
		return resp, streamedThinking, cerr
	}
	return resp, streamedThinking, nil
}

func (s *Session) buildRequest(prompt string, withTools bool) llm.Request {
	req := llm.Request{
		Provider: s.cfg.Provider,
		Model:    s.cfg.Model,
		Messages: []llm.Message{
			llm.SystemMessage(s.systemPrompt()),
			llm.UserMessage(prompt),
		},
	}
	if s.cfg.MaxTokens > 0 {
		mt := s.cfg.MaxTokens
		req.MaxTokens = &mt
	}
	if s.cfg.Temperature != nil {
		req.Temperature = s.cfg.Temperature
	}
	if withTools {
		req.Tools = s.registry.Definitions()
	}
	return req
}

func (s *Session) systemPrompt() string {
	if s.cfg.SystemPrompt != "" {
		return s.cfg.SystemPrompt
	}
	return DefaultSystemPrompt
}

func (s *Session) guard() ContextGuard {
	return ContextGuard{
		Threshold:  s.cfg.ContextThreshold,
		KeepRecent: s.cfg.KeepRecent,
		Estimator:  s.cfg.Estimator,
	}
}
