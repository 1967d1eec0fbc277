package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/justinwangx/ra-cli/openrouter"
)

// DefaultContinueMessage is appended as a user message when the model stops
// calling tools but has not yet submitted a final answer.
const DefaultContinueMessage = "Please proceed to the next step using your best judgement. If you believe you are finished, double check your work to continue to refine and improve your submission."

// DefaultPruneRetryLimit bounds how many consecutive overflowing completion
// attempts the session will recover from by pruning history.
const DefaultPruneRetryLimit = 3

const multipleToolCallsMessage = "Multiple tool calls in one step are not supported."

// maxEventPayloadChars bounds free-text fields on emitted events.
const maxEventPayloadChars = 2000

// SessionState identifies where a session is in its step cycle.
type SessionState string

const (
	StateInit              SessionState = "init"
	StateAwaitingModel     SessionState = "awaiting_model"
	StateHandlingResponse  SessionState = "handling_response"
	StateExecutingTool     SessionState = "executing_tool"
	StateRecoveringContext SessionState = "recovering_context"
	StateTerminated        SessionState = "terminated"
)

// OutcomeKind classifies how a session ended.
type OutcomeKind string

const (
	// OutcomeSuccess means the model produced a final answer.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeLimit means a step or time budget stopped the session.
	OutcomeLimit OutcomeKind = "limit"
	// OutcomeError means the session failed and could not continue.
	OutcomeError OutcomeKind = "error"
)

// Outcome is the terminal result of a session run.
type Outcome struct {
	Kind   OutcomeKind
	Answer string // final answer, set on success
	Reason string // termination or failure detail, set on limit and error
}

// Completer produces chat completions. *openrouter.Client satisfies it; tests
// substitute scripted fakes.
type Completer interface {
	CreateCompletion(ctx context.Context, req openrouter.Request) (*openrouter.Completion, error)
}

// SessionConfig carries the settings for a single agent session.
type SessionConfig struct {
	Model              string
	Cwd                string
	SessionID          string
	MaxSteps           int           // 0 means unlimited
	TimeLimit          time.Duration // 0 means unlimited
	Temperature        *float64
	SubmitEnabled      bool
	WebEnabled         bool
	MaxToolOutputChars int
	PruneRetryLimit    int // 0 means DefaultPruneRetryLimit
	Logger             *slog.Logger
}

// Session drives the step loop: request a completion, handle the response,
// execute at most one tool call, repeat until a terminal outcome.
type Session struct {
	cfg        SessionConfig
	client     Completer
	registry   *ToolRegistry
	dispatcher *Dispatcher
	sink       EventSink
	logger     *slog.Logger

	state    SessionState
	messages []openai.ChatCompletionMessage
	usage    openrouter.TokenUsage
}

// NewSession builds a session over a completer, a tool registry, and an event
// sink. The sink may be nil.
func NewSession(cfg SessionConfig, client Completer, registry *ToolRegistry, sink EventSink) *Session {
	if cfg.PruneRetryLimit <= 0 {
		cfg.PruneRetryLimit = DefaultPruneRetryLimit
	}
	if cfg.MaxToolOutputChars <= 0 {
		cfg.MaxToolOutputChars = DefaultMaxToolOutputChars
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Session{
		cfg:        cfg,
		client:     client,
		registry:   registry,
		dispatcher: NewDispatcher(registry, cfg.MaxToolOutputChars),
		sink:       sink,
		logger:     logger,
		state:      StateInit,
	}
}

// State returns the session's current state.
func (s *Session) State() SessionState { return s.state }

// Usage returns the accumulated token usage across all completion requests.
func (s *Session) Usage() openrouter.TokenUsage { return s.usage }

// Run executes the session to completion for the given task. The returned
// error is non-nil only when Outcome.Kind is OutcomeError.
func (s *Session) Run(ctx context.Context, task string) (Outcome, error) {
	start := time.Now()
	steps := 0

	systemPrompt, agentsText, err := BuildSystemPrompt(s.cfg.Cwd, PromptConfig{
		MaxSteps:      s.cfg.MaxSteps,
		TimeLimit:     s.cfg.TimeLimit,
		SubmitEnabled: s.cfg.SubmitEnabled,
		WebEnabled:    s.cfg.WebEnabled,
	})
	if err != nil {
		return s.fail(0, err)
	}

	s.messages = []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: task},
	}

	startedData := map[string]interface{}{
		"model":          s.cfg.Model,
		"cwd":            s.cfg.Cwd,
		"submit_enabled": s.cfg.SubmitEnabled,
		"tools":          s.registry.Names(),
		"task":           clipEventText(task),
	}
	if s.cfg.MaxSteps > 0 {
		startedData["max_steps"] = s.cfg.MaxSteps
	}
	if s.cfg.TimeLimit > 0 {
		startedData["time_limit_sec"] = int(s.cfg.TimeLimit.Seconds())
	}
	if agentsText != "" {
		startedData["agents_instructions"] = clipEventText(agentsText)
	}
	s.emit(EventRunStarted, 0, startedData)

	for {
		if s.cfg.MaxSteps > 0 && steps >= s.cfg.MaxSteps {
			return s.limit(steps, fmt.Sprintf("Terminated: max_steps (%d) reached.", s.cfg.MaxSteps)), nil
		}
		if s.cfg.TimeLimit > 0 && time.Since(start) >= s.cfg.TimeLimit {
			return s.limit(steps, "Terminated: time_limit reached."), nil
		}

		steps++
		s.state = StateAwaitingModel
		s.emit(EventStepStarted, steps, nil)

		completion, err := s.complete(ctx, steps)
		if err != nil {
			return s.fail(steps, err)
		}
		s.usage.Add(completion.Usage)

		s.state = StateHandlingResponse
		msg := completion.Message
		s.messages = append(s.messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})
		s.emit(EventAssistantMessage, steps, map[string]interface{}{
			"content":    clipEventText(msg.Content),
			"tool_calls": toolCallNames(msg.ToolCalls),
		})

		if len(msg.ToolCalls) > 0 {
			first := msg.ToolCalls[0]
			if first.Function.Name == "submit" && s.cfg.SubmitEnabled {
				answer, err := parseSubmitAnswer(first.Function.Arguments)
				if err != nil {
					return s.fail(steps, err)
				}
				s.state = StateTerminated
				s.emit(EventStepCompleted, steps, nil)
				s.emit(EventRunCompleted, steps, map[string]interface{}{
					"outcome": string(OutcomeSuccess),
					"answer":  clipEventText(answer),
					"usage":   s.usage,
				})
				return Outcome{Kind: OutcomeSuccess, Answer: answer}, nil
			}

			s.state = StateExecutingTool
			s.executeToolCall(ctx, steps, first)

			for _, rejected := range msg.ToolCalls[1:] {
				s.messages = append(s.messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: rejected.ID,
					Content:    ToolError(multipleToolCallsMessage),
				})
				s.emit(EventToolRejected, steps, map[string]interface{}{
					"tool":         rejected.Function.Name,
					"tool_call_id": rejected.ID,
					"reason":       multipleToolCallsMessage,
				})
			}
			s.emit(EventStepCompleted, steps, nil)
			continue
		}

		if s.cfg.SubmitEnabled {
			s.messages = append(s.messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: DefaultContinueMessage,
			})
			s.emit(EventStepCompleted, steps, nil)
			continue
		}

		s.state = StateTerminated
		s.emit(EventStepCompleted, steps, nil)
		s.emit(EventRunCompleted, steps, map[string]interface{}{
			"outcome": string(OutcomeSuccess),
			"answer":  clipEventText(msg.Content),
			"usage":   s.usage,
		})
		return Outcome{Kind: OutcomeSuccess, Answer: msg.Content}, nil
	}
}

// complete requests one completion. On context-window overflow it prunes the
// history and retries, up to PruneRetryLimit consecutive overflowing attempts
// or until pruning can no longer shrink the history.
func (s *Session) complete(ctx context.Context, step int) (*openrouter.Completion, error) {
	completion, err := s.client.CreateCompletion(ctx, s.buildRequest())
	if err == nil {
		return completion, nil
	}
	if !openrouter.IsContextLength(err) {
		return nil, err
	}

	s.state = StateRecoveringContext
	lastErr := err
	for attempt := 1; attempt <= s.cfg.PruneRetryLimit; attempt++ {
		before := len(s.messages)
		pruned, changed := PruneHistory(s.messages)
		if !changed {
			break
		}
		s.messages = pruned
		s.logger.Warn("context overflow, pruned history",
			"step", step, "messages_before", before, "messages_after", len(pruned))
		s.emit(EventContextPruned, step, map[string]interface{}{
			"messages_before": before,
			"messages_after":  len(pruned),
			"attempt":         attempt,
		})

		completion, err = s.client.CreateCompletion(ctx, s.buildRequest())
		if err == nil {
			s.state = StateAwaitingModel
			return completion, nil
		}
		if !openrouter.IsContextLength(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Session) buildRequest() openrouter.Request {
	req := openrouter.Request{
		Model:       s.cfg.Model,
		Messages:    s.messages,
		Temperature: s.cfg.Temperature,
	}
	if s.registry.Count() > 0 {
		req.Tools = s.registry.OpenAITools()
	}
	return req
}

// executeToolCall dispatches a single tool call and appends its result to the
// history.
func (s *Session) executeToolCall(ctx context.Context, step int, call openai.ToolCall) {
	outcome := s.dispatcher.Execute(ctx, call)
	s.messages = append(s.messages, openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		ToolCallID: call.ID,
		Content:    outcome.Content,
	})

	data := map[string]interface{}{
		"tool":         call.Function.Name,
		"tool_call_id": call.ID,
		"arguments":    clipEventText(call.Function.Arguments),
		"result":       clipEventText(outcome.Content),
		"is_error":     outcome.IsError,
		"truncated":    outcome.Truncated,
	}
	if call.Function.Name == "apply_patch" && !outcome.IsError {
		if changes := patchChangesFromArguments(call.Function.Arguments); changes != nil {
			data["changes"] = changes
		}
	}
	s.emit(EventToolExecuted, step, data)
}

func (s *Session) limit(step int, reason string) Outcome {
	s.state = StateTerminated
	s.logger.Warn(reason)
	s.emit(EventRunCompleted, step, map[string]interface{}{
		"outcome": string(OutcomeLimit),
		"reason":  reason,
		"usage":   s.usage,
	})
	return Outcome{Kind: OutcomeLimit, Reason: reason}
}

func (s *Session) fail(step int, err error) (Outcome, error) {
	s.state = StateTerminated
	s.logger.Error("session failed", "error", err)
	s.emit(EventRunFailed, step, map[string]interface{}{
		"error": clipEventText(err.Error()),
		"usage": s.usage,
	})
	return Outcome{Kind: OutcomeError, Reason: err.Error()}, err
}

func (s *Session) emit(eventType EventType, step int, data map[string]interface{}) {
	now := time.Now()
	s.sink.Emit(Event{
		Type:        eventType,
		Timestamp:   now.Format(time.RFC3339Nano),
		TimestampMs: now.UnixMilli(),
		SessionID:   s.cfg.SessionID,
		Step:        step,
		Data:        data,
	})
}

func parseSubmitAnswer(arguments string) (string, error) {
	var args struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("failed to parse submit arguments: %w", err)
	}
	return args.Answer, nil
}

// patchChangesFromArguments extracts the file-change summary from apply_patch
// arguments for event reporting. Returns nil when the arguments do not parse.
func patchChangesFromArguments(arguments string) []PatchChange {
	var args struct {
		Patch string `json:"patch"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil
	}
	return ParsePatchChanges(args.Patch)
}

func toolCallNames(calls []openai.ToolCall) []string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Function.Name)
	}
	return names
}

func clipEventText(s string) string {
	clipped, _ := Truncate(strings.TrimRight(s, "\n"), maxEventPayloadChars)
	return clipped
}
