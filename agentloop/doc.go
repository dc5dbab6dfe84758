// Package agentloop implements the agent execution engine.
//
// Given a user query, the engine iteratively calls a language model,
// executes model-requested tools through an approval gate, accumulates
// evidence in an append-only scratchpad, and produces a final answer while
// streaming ordered progress events to the caller.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Session: the long-lived orchestrator owning the exchange history,
//     the session-approved tool set, and the run loop.
//   - Run: the handle for one in-flight query; the caller drains its event
//     channel, then reads Err and Result.
//   - Scratchpad: a run's append-only evidence log, mirrored to a per-run
//     JSONL trace file, with oldest-tool-result eviction when the context
//     guard trips.
//   - Registry: tool registration, schema validation, and dispatch.
//   - Event: a tagged union covering thinking, the tool lifecycle,
//     approvals, context eviction, and completion; every run ends with
//     exactly one done event.
//
// # Quick Start
//
//	client, _ := llm.NewClientFromEnv(ctx)
//	registry := agentloop.NewRegistry()
//	fintools.RegisterBuiltins(registry, marketClient)
//
//	session := agentloop.NewSession(client, registry, nil)
//	run := session.Run(ctx, "How leveraged is AAPL compared to MSFT?")
//
//	for event := range run.Events() {
//	    fmt.Printf("[%s]\n", event.Kind)
//	}
//	if err := run.Err(); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(run.Result().Answer)
package agentloop
