// Package openrouter provides a chat-completions client for the OpenRouter
// API (or any OpenAI-compatible endpoint) tailored to tool-calling agent
// loops.
//
// # Architecture
//
// The package is split into three layers:
//
//   - Wire types: Request and Completion wrap the chat-completions payloads,
//     TokenUsage accumulates per-request accounting
//   - Error classification: every transport failure is mapped to a typed
//     error (AuthenticationError, RateLimitError, ContextLengthError, ...)
//     so callers can branch on error class instead of string matching
//   - Client: a thin wrapper over go-openai with bounded retry
//
// # Quick Start
//
//	client, err := openrouter.NewClient(openrouter.Config{
//	    APIKey: os.Getenv("OPENROUTER_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//
//	comp, err := client.CreateCompletion(ctx, openrouter.Request{
//	    Model:    "openai/gpt-5.2",
//	    Messages: []openai.ChatCompletionMessage{{Role: "user", Content: "Hello"}},
//	})
//
// # Context-Window Errors
//
// OpenRouter surfaces a context-window overflow either as a 413, a
// "context_length_exceeded" error code, or a 400 whose message mentions the
// context length. All three forms classify as *ContextLengthError, and
// IsContextLength reports them uniformly:
//
//	if openrouter.IsContextLength(err) {
//	    // prune history and retry
//	}
//
// # Retry
//
// CreateCompletion retries transient failures (5xx, timeouts, network
// errors) with exponential backoff and jitter. Rate-limit responses are
// retried only when the policy opts in via Retry429 or the error carries a
// Retry-After hint; OpenRouter's free-tier 429s are otherwise surfaced
// immediately so the caller can fail fast.
package openrouter
