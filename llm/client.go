package llm

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// CompleteFunc is the core blocking request handler signature.
type CompleteFunc func(ctx context.Context, req Request) (*Response, error)

// Middleware intercepts blocking requests. It must call next to continue
// the chain. The first registered middleware runs outermost.
type Middleware func(ctx context.Context, req Request, next CompleteFunc) (*Response, error)

// StreamFunc is the core streaming request handler signature.
type StreamFunc func(ctx context.Context, req Request) (<-chan StreamEvent, error)

// StreamMiddleware intercepts streaming requests.
type StreamMiddleware func(ctx context.Context, req Request, next StreamFunc) (<-chan StreamEvent, error)

// Client routes requests to registered provider adapters. Routing order:
// explicit Request.Provider, then model-prefix inference, then the model
// catalog, then the default provider.
type Client struct {
	mu               sync.RWMutex
	providers        map[string]ProviderAdapter
	defaultProvider  string
	middleware       []Middleware
	streamMiddleware []StreamMiddleware
	retry            RetryPolicy
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider adapter.
func WithProvider(adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[adapter.Name()] = adapter
	}
}

// WithDefaultProvider sets the provider used when routing cannot infer one.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware appends blocking-request middleware, applied in order.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithStreamMiddleware appends streaming-request middleware.
func WithStreamMiddleware(mw ...StreamMiddleware) ClientOption {
	return func(c *Client) {
		c.streamMiddleware = append(c.streamMiddleware, mw...)
	}
}

// WithRetryPolicy overrides the retry policy for blocking requests.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// NewClient creates a Client. With exactly one registered provider and no
// explicit default, that provider becomes the default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
		retry:     DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds or replaces a provider adapter.
func (c *Client) RegisterProvider(adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[adapter.Name()] = adapter
	if c.defaultProvider == "" && len(c.providers) == 1 {
		c.defaultProvider = adapter.Name()
	}
}

// Providers returns the names of all registered adapters.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	return names
}

func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if req.Provider != "" {
		adapter, ok := c.providers[req.Provider]
		if !ok {
			return nil, &ConfigurationError{ClientError{
				Message: fmt.Sprintf("provider %q is not registered", req.Provider),
			}}
		}
		return adapter, nil
	}

	if name := ProviderForModel(req.Model); name != "" {
		if adapter, ok := c.providers[name]; ok {
			return adapter, nil
		}
	}

	if info := GetModelInfo(req.Model); info != nil {
		if adapter, ok := c.providers[info.Provider]; ok {
			return adapter, nil
		}
	}

	if c.defaultProvider != "" {
		if adapter, ok := c.providers[c.defaultProvider]; ok {
			return adapter, nil
		}
	}

	return nil, &ConfigurationError{ClientError{
		Message: fmt.Sprintf("no provider registered for model %q", req.Model),
	}}
}

// Complete sends a blocking request through middleware and the retry policy.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}

	handler := CompleteFunc(func(ctx context.Context, req Request) (*Response, error) {
		return Retry(ctx, c.retry, func(ctx context.Context) (*Response, error) {
			return adapter.Complete(ctx, req)
		})
	})

	c.mu.RLock()
	mw := c.middleware
	c.mu.RUnlock()
	for i := len(mw) - 1; i >= 0; i-- {
		m, next := mw[i], handler
		handler = func(ctx context.Context, req Request) (*Response, error) {
			return m(ctx, req, next)
		}
	}

	return handler(ctx, req)
}

// Stream sends a streaming request through stream middleware. Stream
// establishment is not retried; callers fall back to Complete on failure.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}

	handler := StreamFunc(adapter.Stream)

	c.mu.RLock()
	mw := c.streamMiddleware
	c.mu.RUnlock()
	for i := len(mw) - 1; i >= 0; i-- {
		m, next := mw[i], handler
		handler = func(ctx context.Context, req Request) (<-chan StreamEvent, error) {
			return m(ctx, req, next)
		}
	}

	return handler(ctx, req)
}

// Close releases resources held by adapters that implement Closer.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// NewClientFromEnv builds a Client from environment credentials, registering
// an adapter for each provider whose keys are present:
//
//	ANTHROPIC_API_KEY            -> anthropic
//	OPENAI_API_KEY               -> openai
//	GEMINI_API_KEY               -> gemini
//	AWS_REGION or AWS_PROFILE    -> bedrock
//	GROQ_API_KEY, OLLAMA_HOST    -> gollm-backed adapters
//
// Returns a ConfigurationError when no credentials are found.
func NewClientFromEnv(ctx context.Context) (*Client, error) {
	c := NewClient()

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.RegisterProvider(NewAnthropicAdapter(key))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.RegisterProvider(NewOpenAIAdapter(key))
	}
	if key := firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"); key != "" {
		adapter, err := NewGeminiAdapter(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini adapter: %w", err)
		}
		c.RegisterProvider(adapter)
	}
	if os.Getenv("AWS_REGION") != "" || os.Getenv("AWS_PROFILE") != "" {
		adapter, err := NewBedrockAdapter(ctx)
		if err != nil {
			return nil, fmt.Errorf("initializing bedrock adapter: %w", err)
		}
		c.RegisterProvider(adapter)
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		adapter, err := NewGollmAdapter("groq", key)
		if err != nil {
			return nil, fmt.Errorf("initializing groq adapter: %w", err)
		}
		c.RegisterProvider(adapter)
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		adapter, err := NewGollmAdapter("ollama", "")
		if err != nil {
			return nil, fmt.Errorf("initializing ollama adapter: %w", err)
		}
		c.RegisterProvider(adapter)
	}

	if len(c.Providers()) == 0 {
		return nil, &ConfigurationError{ClientError{
			Message: "no provider credentials found in environment",
		}}
	}

	// Prefer anthropic as the default when several providers are present.
	for _, name := range []string{"anthropic", "openai", "gemini", "bedrock"} {
		if _, ok := c.providers[name]; ok {
			c.defaultProvider = name
			break
		}
	}

	return c, nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
