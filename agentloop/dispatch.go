package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ToolOutcome is the result the Dispatcher hands back to the session. The
// Content is always safe to append to history as a tool message.
type ToolOutcome struct {
	Content   string
	IsError   bool
	Truncated bool
}

// Dispatcher executes a single tool call end to end: registry lookup,
// argument validation, execution, and output bounding. Every failure mode is
// converted into a tool-error result; Execute never returns a Go error, so
// the model always receives a response for the call.
type Dispatcher struct {
	registry       *ToolRegistry
	maxOutputChars int
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(registry *ToolRegistry, maxOutputChars int) *Dispatcher {
	if maxOutputChars <= 0 {
		maxOutputChars = DefaultMaxToolOutputChars
	}
	return &Dispatcher{
		registry:       registry,
		maxOutputChars: maxOutputChars,
	}
}

// Execute runs one tool call and returns its outcome.
func (d *Dispatcher) Execute(ctx context.Context, call openai.ToolCall) ToolOutcome {
	name := call.Function.Name
	tool := d.registry.Get(name)
	if tool == nil {
		return errorOutcome(fmt.Sprintf("Unknown tool: %s", name))
	}

	raw := json.RawMessage(call.Function.Arguments)
	if err := ValidateArguments(tool.Definition, raw); err != nil {
		return errorOutcome(err.Error())
	}

	output, err := tool.Executor(ctx, raw)
	if err != nil {
		return errorOutcome(err.Error())
	}

	bounded, truncated := Truncate(output, d.maxOutputChars)
	return ToolOutcome{Content: bounded, Truncated: truncated}
}

func errorOutcome(message string) ToolOutcome {
	return ToolOutcome{Content: ToolError(message), IsError: true}
}
