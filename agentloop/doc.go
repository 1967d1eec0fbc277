// Package agentloop implements the step loop behind the ra CLI agent.
//
// A session pairs an OpenRouter-compatible chat model with workspace tools
// and drives a strict one-tool-call-per-step cycle: request a completion,
// record the assistant message, execute at most one tool call, feed the
// result back, and repeat until the model submits a final answer or a step
// or time budget runs out.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Session: The orchestrator holding conversation state, dispatching
//     tool calls, recovering from context-window overflow, and enforcing
//     limits.
//   - ToolRegistry: Registration and lookup of tool definitions with
//     deterministic ordering.
//   - Dispatcher: Argument validation, execution, and output bounding for
//     a single tool call.
//   - Workspace: Filesystem and subprocess backing for the core tools
//     (shell_command, read_file, list_dir, grep_files, apply_patch).
//   - WebTools: Optional web_search, web_open, and web_find backed by the
//     Tavily API.
//   - EventSink: Ordered structured event stream (JSONL file, stdout, or
//     in-memory buffer).
//
// # Quick Start
//
//	client, _ := openrouter.NewClient(openrouter.Config{APIKey: key})
//	registry := agentloop.NewToolRegistry()
//	ws := agentloop.NewWorkspace(".", 0)
//	agentloop.RegisterCoreTools(registry, ws)
//	agentloop.RegisterSubmitTool(registry)
//
//	session := agentloop.NewSession(agentloop.SessionConfig{
//	    Model:         "openai/gpt-4.1-mini",
//	    Cwd:           ws.Dir(),
//	    SubmitEnabled: true,
//	    MaxSteps:      50,
//	}, client, registry, sink)
//
//	outcome, err := session.Run(ctx, "Create a hello.py file")
//
// # Context-Window Overflow
//
// When the provider rejects a request because the conversation no longer
// fits the model's context window, the session prunes the history (keeping
// system messages and the initial task, dropping the oldest exchanges) and
// retries. If pruning cannot shrink the history further, or the bounded
// number of retries is exhausted, the run ends with an error outcome.
package agentloop
