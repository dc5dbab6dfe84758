// Package llm provides a provider-agnostic client for chat completion
// models with tool calling, streaming, and typed errors.
//
// A Client routes each request to a registered ProviderAdapter. Routing
// follows the model identifier: "claude-*" to anthropic, "gpt-*" and
// "o*" to openai, "gemini-*" to gemini, and Bedrock model IDs
// ("anthropic.*", "us.*", "eu.*") to bedrock. Unroutable models fall
// back to the configured default provider.
//
// # Architecture
//
//   - Client: provider registry, routing, middleware, retry
//   - ProviderAdapter: per-provider request/response translation
//   - Request/Response: the provider-agnostic wire types
//   - StreamEvent: incremental deltas for streaming responses
//   - RetryPolicy: exponential backoff for retryable provider errors
//
// # Quick Start
//
//	client := llm.NewClient(llm.WithProvider(llm.NewAnthropicAdapter(apiKey)))
//	resp, err := client.Complete(ctx, llm.Request{
//		Model: "claude-sonnet-4-5",
//		Messages: []llm.Message{
//			llm.SystemMessage("You are a financial analyst."),
//			llm.UserMessage("Summarize AAPL's latest quarter."),
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(resp.Text)
package llm
