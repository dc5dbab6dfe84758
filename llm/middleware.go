package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// NewLoggingMiddleware returns middleware that logs each blocking request
// at debug level with model, provider, latency, and token usage. Failures
// log at warn level.
func NewLoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(ctx context.Context, req Request, next CompleteFunc) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn().
				Str("model", req.Model).
				Dur("elapsed", elapsed).
				Err(err).
				Msg("model request failed")
			return nil, err
		}

		logger.Debug().
			Str("model", resp.Model).
			Str("provider", resp.Provider).
			Dur("elapsed", elapsed).
			Int("inputTokens", resp.Usage.InputTokens).
			Int("outputTokens", resp.Usage.OutputTokens).
			Int("toolCalls", len(resp.ToolCalls)).
			Msg("model request completed")
		return resp, nil
	}
}

// NewStreamLoggingMiddleware returns middleware that logs stream
// establishment and failure.
func NewStreamLoggingMiddleware(logger zerolog.Logger) StreamMiddleware {
	return func(ctx context.Context, req Request, next StreamFunc) (<-chan StreamEvent, error) {
		ch, err := next(ctx, req)
		if err != nil {
			logger.Warn().
				Str("model", req.Model).
				Err(err).
				Msg("stream request failed to start")
			return nil, err
		}
		logger.Debug().
			Str("model", req.Model).
			Msg("stream started")
		return ch, nil
	}
}
