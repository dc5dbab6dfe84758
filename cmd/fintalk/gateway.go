package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fintalk/fintalk/agentloop"
	"github.com/fintalk/fintalk/bus"
	"github.com/fintalk/fintalk/channel"
	"github.com/fintalk/fintalk/gateway"
	"github.com/fintalk/fintalk/schedule"
	"github.com/fintalk/fintalk/session"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the Telegram gateway with scheduled digests",
	RunE:  runGateway,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions",
	RunE:  runSessionsList,
}

func runGateway(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token := cfg.Telegram.Token()
	if token == "" {
		return fmt.Errorf("telegram token not set (export %s)", cfg.Telegram.TokenEnv)
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	b := bus.NewMessageBus(64)
	tg, err := channel.NewTelegram(token, cfg.Telegram.AllowedChats, b, logger)
	if err != nil {
		return err
	}

	engineCfg := cfg.AgentConfig()
	newEngine := func() *agentloop.Session {
		sess := agentloop.NewSession(rt.client, rt.registry, &engineCfg)
		sess.SetLogger(logger)
		return sess
	}

	gw, err := gateway.New(gateway.Options{
		Bus:       b,
		Transport: tg,
		Store:     rt.store,
		NewSession: func(key string) (*agentloop.Session, error) {
			return newEngine(), nil
		},
		Logger:          logger,
		ApprovalTimeout: engineCfg.ApprovalTimeout,
	})
	if err != nil {
		return err
	}

	if len(cfg.Digests) > 0 {
		digests := make([]schedule.Digest, 0, len(cfg.Digests))
		for _, d := range cfg.Digests {
			digests = append(digests, schedule.Digest{
				Name:     d.Name,
				Schedule: d.Schedule,
				Query:    d.Query,
				Chat:     d.Chat,
			})
		}
		// Digests run unattended: a fresh session per firing, no
		// approver, so every registered tool runs unprompted.
		svc := schedule.New(digests, func(ctx context.Context, d schedule.Digest) (string, error) {
			return runHeadless(ctx, newEngine(), d.Query)
		}, b, logger)
		if err := svc.Start(ctx); err != nil {
			return err
		}
		defer svc.Stop()
	}

	return gw.Run(ctx)
}

// runHeadless executes one run with nobody watching the event stream.
func runHeadless(ctx context.Context, sess *agentloop.Session, query string) (string, error) {
	run := sess.Run(ctx, query)
	for range run.Events() {
	}
	if err := run.Err(); err != nil {
		return "", err
	}
	return run.Result().Answer, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store := session.NewStore(cfg.SessionsDir)
	sums, err := store.List()
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, s := range sums {
		fmt.Printf("%-24s %3d exchanges  updated %s\n", s.Name, s.Exchanges, s.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
