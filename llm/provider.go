package llm

import "context"

// ProviderAdapter is the interface every model provider implements.
type ProviderAdapter interface {
	// Name returns the provider identifier ("anthropic", "openai", ...).
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a streaming request and returns a channel of events.
	// The channel is closed after a terminal StreamFinish or StreamError
	// event. Adapters without native streaming synthesize a single-delta
	// stream from a blocking call.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is an optional interface for adapters holding connections.
type Closer interface {
	Close() error
}
