// Package schedule runs configured digest queries on cron schedules
// and delivers the answers through the message bus.
package schedule

import (
	"context"
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/fintalk/fintalk/bus"
	"github.com/fintalk/fintalk/channel"
)

// Digest is one scheduled query delivered to a chat.
type Digest struct {
	Name     string
	Schedule string
	Query    string
	Chat     string
}

// Runner executes a digest query and returns the answer text.
type Runner func(ctx context.Context, digest Digest) (string, error)

// Service owns the cron scheduler for all configured digests.
type Service struct {
	digests []Digest
	run     Runner
	bus     *bus.MessageBus
	logger  zerolog.Logger
	cron    *rcron.Cron
	cancel  context.CancelFunc
}

// New creates the service. Digests use standard five-field cron
// expressions or descriptors like @daily and @every.
func New(digests []Digest, run Runner, b *bus.MessageBus, logger zerolog.Logger) *Service {
	return &Service{digests: digests, run: run, bus: b, logger: logger}
}

// Start registers every digest and begins the scheduler. A digest
// with an invalid schedule is logged and skipped; the rest still run.
func (s *Service) Start(ctx context.Context) error {
	if s.run == nil {
		return fmt.Errorf("schedule needs a runner")
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.cron = rcron.New()
	registered := 0
	for _, d := range s.digests {
		digest := d
		_, err := s.cron.AddFunc(digest.Schedule, func() {
			s.fire(ctx, digest)
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("digest", digest.Name).Str("schedule", digest.Schedule).
				Msg("skipping digest with invalid schedule")
			continue
		}
		registered++
	}

	s.cron.Start()
	s.logger.Info().Int("digests", registered).Msg("schedule started")
	return nil
}

// fire runs one digest and pushes the answer to its chat.
func (s *Service) fire(ctx context.Context, digest Digest) {
	s.logger.Info().Str("digest", digest.Name).Msg("running digest")
	answer, err := s.run(ctx, digest)
	if err != nil {
		s.logger.Error().Err(err).Str("digest", digest.Name).Msg("digest failed")
		return
	}
	if answer == "" {
		s.logger.Warn().Str("digest", digest.Name).Msg("digest produced no answer")
		return
	}
	s.bus.Outbound <- bus.OutboundMessage{
		Channel: channel.TelegramName,
		ChatID:  digest.Chat,
		Content: answer,
	}
}

// Entries returns the number of successfully registered digests.
func (s *Service) Entries() int {
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Entries())
}

// Stop halts the scheduler, waiting briefly for running digests.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			s.logger.Warn().Msg("schedule stop timed out waiting for running digests")
		}
	}
	s.logger.Info().Msg("schedule stopped")
}
