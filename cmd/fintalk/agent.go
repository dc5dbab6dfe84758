package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fintalk/fintalk/agentloop"
	"github.com/fintalk/fintalk/config"
	"github.com/fintalk/fintalk/fintools"
	"github.com/fintalk/fintalk/llm"
	"github.com/fintalk/fintalk/marketdata"
	"github.com/fintalk/fintalk/session"
)

var (
	sessionFlag  string
	yesFlag      bool
	noStreamFlag bool
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a single question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat over a named session",
	RunE:  runChat,
}

// runtime bundles the pieces every command needs: the model client, the
// tool registry, and the session store.
type runtime struct {
	client   *llm.Client
	registry *agentloop.Registry
	store    *session.Store
	mcp      []*fintools.MCPClient
}

func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	client, err := llm.NewClientFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize model client: %w", err)
	}

	registry := agentloop.NewRegistry()
	if cfg.MarketData.BaseURL != "" {
		md, err := marketdata.NewClient(marketdata.Config{
			BaseURL: cfg.MarketData.BaseURL,
			APIKey:  cfg.MarketData.APIKey(),
		})
		if err != nil {
			return nil, fmt.Errorf("initialize market data client: %w", err)
		}
		fintools.RegisterBuiltins(registry, md)
	} else {
		logger.Warn().Msg("marketdata.base_url not set, finance tools disabled")
	}

	servers := make([]fintools.MCPServerConfig, 0, len(cfg.Tools.MCPServers))
	for _, s := range cfg.Tools.MCPServers {
		servers = append(servers, fintools.MCPServerConfig{Name: s.Name, Command: s.Command, Args: s.Args})
	}
	mcp := fintools.AttachMCP(ctx, registry, servers, logger)

	return &runtime{
		client:   client,
		registry: registry,
		store:    session.NewStore(cfg.SessionsDir),
		mcp:      mcp,
	}, nil
}

func (r *runtime) Close() {
	for _, c := range r.mcp {
		c.Close()
	}
}

// newSession builds an engine session, hydrated from the store when a
// name is given.
func (r *runtime) newSession(name string, engineCfg agentloop.Config) (*agentloop.Session, *session.Record, error) {
	sess := agentloop.NewSession(r.client, r.registry, &engineCfg)
	sess.SetLogger(logger)
	if name == "" {
		return sess, nil, nil
	}
	rec, err := r.store.LoadOrCreate(name)
	if err != nil {
		return nil, nil, fmt.Errorf("load session %q: %w", name, err)
	}
	rec.Hydrate(sess)
	return sess, rec, nil
}

func (r *runtime) saveSession(rec *session.Record, sess *agentloop.Session) {
	if rec == nil {
		return
	}
	rec.Capture(sess)
	if err := r.store.Save(rec); err != nil {
		logger.Warn().Err(err).Str("session", rec.Name).Msg("session save failed")
	}
}

func engineConfig(cfg *config.Config) agentloop.Config {
	engineCfg := cfg.AgentConfig()
	if noStreamFlag {
		engineCfg.Streaming = false
	}
	return engineCfg
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess, rec, err := rt.newSession(sessionFlag, engineConfig(cfg))
	if err != nil {
		return err
	}
	if !yesFlag {
		sess.SetApprover(terminalApprover(bufio.NewReader(os.Stdin), os.Stdout))
	}

	if err := runQuery(ctx, sess, strings.Join(args, " "), os.Stdout); err != nil {
		return err
	}
	rt.saveSession(rec, sess)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	name := sessionFlag
	if name == "" {
		name = "chat"
	}
	sess, rec, err := rt.newSession(name, engineConfig(cfg))
	if err != nil {
		return err
	}

	// The REPL and the approval prompts share one reader so neither
	// swallows input buffered for the other.
	reader := bufio.NewReader(os.Stdin)
	if !yesFlag {
		sess.SetApprover(terminalApprover(reader, os.Stdout))
	}

	fmt.Printf("fintalk chat, session %q (type 'exit' to quit)\n", name)
	for {
		fmt.Print("\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if err := runQuery(ctx, sess, input, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		rt.saveSession(rec, sess)
	}
	return nil
}

// runQuery executes one engine run and renders its events to w.
func runQuery(ctx context.Context, sess *agentloop.Session, query string, w io.Writer) error {
	run := sess.Run(ctx, query)
	r := &renderer{w: w}
	for ev := range run.Events() {
		r.event(ev)
	}
	if err := run.Err(); err != nil {
		return err
	}
	r.breakLine()
	if res := run.Result(); res != nil && res.Answer != "" {
		fmt.Fprintln(w, res.Answer)
	}
	return nil
}
