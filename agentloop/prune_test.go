package agentloop

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func systemMsg(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: content}
}

func userMsg(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: content}
}

func assistantCall(callID string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:   callID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      "shell_command",
				Arguments: `{"command": "true"}`,
			},
		}},
	}
}

func toolMsg(callID string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		ToolCallID: callID,
		Content:    `{"exit_code": 0}`,
	}
}

func TestPruneHistoryKeepsSystemAndTask(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		systemMsg("sys"),
		userMsg("the task"),
	}
	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		messages = append(messages, assistantCall(id), toolMsg(id))
	}

	pruned, changed := PruneHistory(messages)
	if !changed {
		t.Fatal("expected history to shrink")
	}
	if pruned[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("expected system first, got %s", pruned[0].Role)
	}
	if pruned[1].Role != openai.ChatMessageRoleUser || pruned[1].Content != "the task" {
		t.Errorf("expected initial task second, got %+v", pruned[1])
	}
	if len(pruned) >= len(messages) {
		t.Errorf("expected shrinkage: %d -> %d", len(messages), len(pruned))
	}
}

func TestPruneHistoryNoOrphanToolMessages(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		systemMsg("sys"),
		userMsg("task"),
	}
	// Eight call/response pairs put the cut in the middle of a pair, so the
	// leading tool response is orphaned and must be filtered.
	for i := 0; i < 8; i++ {
		id := string(rune('a' + i))
		messages = append(messages, assistantCall(id), toolMsg(id))
	}

	pruned, _ := PruneHistory(messages)
	active := map[string]bool{}
	for _, msg := range pruned {
		switch msg.Role {
		case openai.ChatMessageRoleAssistant:
			active = map[string]bool{}
			for _, tc := range msg.ToolCalls {
				active[tc.ID] = true
			}
		case openai.ChatMessageRoleUser:
			active = map[string]bool{}
		case openai.ChatMessageRoleTool:
			if !active[msg.ToolCallID] {
				t.Errorf("orphan tool message for call %s", msg.ToolCallID)
			}
		}
	}
}

func TestPruneHistoryCutsAtUserBoundary(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		systemMsg("sys"),
		userMsg("task"),
		assistantCall("a"),
		toolMsg("a"),
		assistantCall("b"),
		toolMsg("b"),
		userMsg("continue please"),
		assistantCall("c"),
		toolMsg("c"),
	}

	pruned, changed := PruneHistory(messages)
	if !changed {
		t.Fatal("expected history to shrink")
	}
	// The cut lands on the first user message at or after the drop target, so
	// the continue message and everything after it survive intact.
	foundContinue := false
	for _, msg := range pruned {
		if msg.Role == openai.ChatMessageRoleUser && msg.Content == "continue please" {
			foundContinue = true
		}
	}
	if !foundContinue {
		t.Error("expected the user boundary message to survive")
	}
}

func TestPruneHistoryUnrecoverable(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		systemMsg("sys"),
		userMsg("task"),
	}
	pruned, changed := PruneHistory(messages)
	if changed {
		t.Error("minimal history cannot shrink")
	}
	if len(pruned) != 2 {
		t.Errorf("expected 2 messages, got %d", len(pruned))
	}
}

func TestPruneHistoryDoesNotMutateInput(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		systemMsg("sys"),
		userMsg("task"),
		assistantCall("a"),
		toolMsg("a"),
		assistantCall("b"),
		toolMsg("b"),
		assistantCall("c"),
		toolMsg("c"),
	}
	before := len(messages)
	PruneHistory(messages)
	if len(messages) != before {
		t.Error("input was mutated")
	}
	if messages[2].ToolCalls[0].ID != "a" {
		t.Error("input contents changed")
	}
}
