package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// ToolExecutor is the function signature for tool execution. It receives the
// raw JSON arguments from the model's tool call.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage) (string, error)

// ToolDefinition describes a tool for the LLM (serializable metadata).
// Parameters is a JSON-schema object; the Dispatcher validates arguments
// against it before execution.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition ToolDefinition
	Executor   ToolExecutor
}

// ToolRegistry manages tool registration and lookup.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = &tool
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all tool definitions sorted by name, so outgoing
// requests are deterministic.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the names of all registered tools, sorted.
func (r *ToolRegistry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// OpenAITools converts registry definitions to the wire format sent with
// chat-completions requests.
func (r *ToolRegistry) OpenAITools() []openai.Tool {
	defs := r.Definitions()
	tools := make([]openai.Tool, len(defs))
	for i, d := range defs {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		}
	}
	return tools
}

// ToolError formats an error message as the JSON object tool results use to
// signal failure to the model.
func ToolError(message string) string {
	out, _ := json.Marshal(map[string]string{"error": message})
	return string(out)
}

// ParseToolArguments is a helper that unmarshals tool call arguments into a
// map for validation and access.
func ParseToolArguments(raw json.RawMessage) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}
