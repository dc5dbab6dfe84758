// Package gateway owns one engine session per chat conversation and
// moves messages between the bus and the engine.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintalk/fintalk/agentloop"
	"github.com/fintalk/fintalk/bus"
	"github.com/fintalk/fintalk/session"
)

const defaultApprovalTimeout = 2 * time.Minute

// Transport delivers outbound messages to a chat network.
// channel.Telegram satisfies it; tests substitute fakes.
type Transport interface {
	Start(ctx context.Context) error
	Send(msg bus.OutboundMessage) error
	Stop() error
}

// SessionFactory builds the engine session for one conversation key.
type SessionFactory func(key string) (*agentloop.Session, error)

// Options wires a Gateway. Bus and NewSession are required; a nil
// Transport leaves outbound messages on the bus (tests drain them
// directly), and a nil Store disables persistence.
type Options struct {
	Bus             *bus.MessageBus
	Transport       Transport
	Store           *session.Store
	NewSession      SessionFactory
	Logger          zerolog.Logger
	ApprovalTimeout time.Duration
}

// Gateway routes inbound chat messages to per-conversation engine
// sessions and renders run events back to the chat.
type Gateway struct {
	bus             *bus.MessageBus
	transport       Transport
	store           *session.Store
	newSession      SessionFactory
	logger          zerolog.Logger
	approvalTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*chatSession
}

// chatSession is the gateway's state for one conversation.
type chatSession struct {
	engine  *agentloop.Session
	record  *session.Record
	channel string
	chatID  string

	mu    sync.Mutex
	await chan string // non-nil while an approval prompt waits for a reply
}

// New creates a gateway from options.
func New(opts Options) (*Gateway, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("gateway needs a message bus")
	}
	if opts.NewSession == nil {
		return nil, fmt.Errorf("gateway needs a session factory")
	}
	timeout := opts.ApprovalTimeout
	if timeout <= 0 {
		timeout = defaultApprovalTimeout
	}
	return &Gateway{
		bus:             opts.Bus,
		transport:       opts.Transport,
		store:           opts.Store,
		newSession:      opts.NewSession,
		logger:          opts.Logger,
		approvalTimeout: timeout,
		sessions:        make(map[string]*chatSession),
	}, nil
}

// Run starts the transport and processes bus traffic until the
// context ends.
func (g *Gateway) Run(ctx context.Context) error {
	if g.transport != nil {
		if err := g.transport.Start(ctx); err != nil {
			return fmt.Errorf("starting transport: %w", err)
		}
		defer g.transport.Stop()
		go g.dispatchOutbound(ctx)
	}

	g.logger.Info().Msg("gateway running")
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.route(ctx, msg)
		case <-ctx.Done():
			g.logger.Info().Msg("gateway stopped")
			return nil
		}
	}
}

// dispatchOutbound forwards bus replies to the transport.
func (g *Gateway) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Outbound:
			if err := g.transport.Send(msg); err != nil {
				g.logger.Error().Err(err).Str("chat", msg.ChatID).Msg("outbound send failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// route hands one inbound message to its conversation. A message that
// answers an outstanding approval prompt goes to the waiting run
// instead of starting a new one.
func (g *Gateway) route(ctx context.Context, msg bus.InboundMessage) {
	cs, err := g.session(msg.SessionKey(), msg.Channel, msg.ChatID)
	if err != nil {
		g.logger.Error().Err(err).Str("key", msg.SessionKey()).Msg("session create failed")
		g.send(msg.Channel, msg.ChatID, "Sorry, I can't take that question right now.")
		return
	}

	cs.mu.Lock()
	await := cs.await
	cs.mu.Unlock()
	if await != nil {
		select {
		case await <- msg.Content:
		default:
		}
		return
	}

	go g.handle(ctx, cs, msg)
}

// session returns the conversation state for a key, creating and
// rehydrating it on first contact.
func (g *Gateway) session(key, channel, chatID string) (*chatSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cs, ok := g.sessions[key]; ok {
		return cs, nil
	}

	engine, err := g.newSession(key)
	if err != nil {
		return nil, err
	}

	cs := &chatSession{engine: engine, channel: channel, chatID: chatID}
	rec := &session.Record{Name: sessionName(key), CreatedAt: time.Now()}
	if g.store != nil {
		loaded, err := g.store.LoadOrCreate(sessionName(key))
		if err != nil {
			g.logger.Warn().Err(err).Str("key", key).Msg("session restore failed")
		} else {
			rec = loaded
			rec.Hydrate(engine)
		}
	}
	cs.record = rec
	engine.SetApprover(g.approver(cs))
	g.sessions[key] = cs
	return cs, nil
}

// handle drives one run and renders its events back to the chat.
func (g *Gateway) handle(ctx context.Context, cs *chatSession, msg bus.InboundMessage) {
	run := cs.engine.Run(ctx, msg.Content)
	for ev := range run.Events() {
		if ev.Kind == agentloop.EventToolStart {
			g.send(msg.Channel, msg.ChatID, "Running "+describeCall(ev.Tool)+"...")
		}
	}

	if err := run.Err(); err != nil {
		g.logger.Error().Err(err).Str("key", msg.SessionKey()).Msg("run failed")
		g.send(msg.Channel, msg.ChatID, "Sorry, I hit an error answering that.")
		return
	}
	if res := run.Result(); res != nil {
		switch {
		case res.Answer != "":
			g.send(msg.Channel, msg.ChatID, res.Answer)
		case res.Reason == agentloop.ReasonDenied:
			g.send(msg.Channel, msg.ChatID, "Understood, I won't run that tool.")
		}
	}
	g.persist(cs)
}

// approver bridges the engine's approval gate to the chat: prompt the
// user, wait for the next message from that conversation, time out to
// a denial.
func (g *Gateway) approver(cs *chatSession) agentloop.ApprovalFunc {
	return func(ctx context.Context, req agentloop.ApprovalRequest) agentloop.ApprovalDecision {
		reply := make(chan string, 1)
		cs.mu.Lock()
		cs.await = reply
		cs.mu.Unlock()
		defer func() {
			cs.mu.Lock()
			cs.await = nil
			cs.mu.Unlock()
		}()

		g.send(cs.channel, cs.chatID, approvalPrompt(req))

		timer := time.NewTimer(g.approvalTimeout)
		defer timer.Stop()
		select {
		case text := <-reply:
			return parseDecision(text)
		case <-ctx.Done():
			return agentloop.Deny
		case <-timer.C:
			g.send(cs.channel, cs.chatID, "No reply in time, denying the tool call.")
			return agentloop.Deny
		}
	}
}

// persist captures the engine state into the session record and saves
// it.
func (g *Gateway) persist(cs *chatSession) {
	if g.store == nil {
		return
	}
	cs.record.Capture(cs.engine)
	if err := g.store.Save(cs.record); err != nil {
		g.logger.Warn().Err(err).Str("session", cs.record.Name).Msg("session save failed")
	}
}

func (g *Gateway) send(channel, chatID, content string) {
	g.bus.Outbound <- bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: content}
}

// sessionName maps a conversation key to a filesystem-safe store name.
func sessionName(key string) string {
	return strings.ReplaceAll(key, ":", "-")
}

func approvalPrompt(req agentloop.ApprovalRequest) string {
	return fmt.Sprintf("Approval needed: %s\nReply yes to allow once, always to allow for this session, or no to deny.",
		describeCall(&agentloop.ToolData{Name: req.Tool, Args: req.Args}))
}

// parseDecision maps a chat reply onto an approval decision. Anything
// unrecognized denies.
func parseDecision(text string) agentloop.ApprovalDecision {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "allow", "approve", "ok":
		return agentloop.ApproveOnce
	case "always", "allow-session":
		return agentloop.ApproveSession
	default:
		return agentloop.Deny
	}
}

// describeCall renders a tool call as "name(k=v, ...)" for chat
// notices.
func describeCall(tool *agentloop.ToolData) string {
	if tool == nil {
		return ""
	}
	if len(tool.Args) == 0 {
		return tool.Name
	}
	keys := make([]string, 0, len(tool.Args))
	for k := range tool.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, tool.Args[k]))
	}
	return fmt.Sprintf("%s(%s)", tool.Name, strings.Join(parts, ", "))
}
