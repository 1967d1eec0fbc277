package agentloop

import (
	openai "github.com/sashabaranov/go-openai"
)

// PruneHistory shrinks a conversation that no longer fits the model's
// context window. It always retains:
//
//   - every system message
//   - the initial user task message
//   - assistant/tool call-response pairs as atomic units
//
// and drops roughly the oldest third of the remaining conversation, cutting
// at a user-message boundary when one exists at or after the target. Tool
// messages whose originating assistant message was dropped are filtered out
// so no orphan responses survive.
//
// The input is never mutated. The bool reports whether the result is
// strictly smaller than the input; false means no further reduction is
// possible and the overflow is unrecoverable.
func PruneHistory(messages []openai.ChatCompletionMessage) ([]openai.ChatCompletionMessage, bool) {
	var system, nonSystem []openai.ChatCompletionMessage
	for _, msg := range messages {
		if msg.Role == openai.ChatMessageRoleSystem {
			system = append(system, msg)
		} else {
			nonSystem = append(nonSystem, msg)
		}
	}

	taskIdx := -1
	for i, msg := range nonSystem {
		if msg.Role == openai.ChatMessageRoleUser {
			taskIdx = i
			break
		}
	}
	if taskIdx < 0 {
		result := append(append([]openai.ChatCompletionMessage{}, system...), nonSystem...)
		return result, len(result) < len(messages)
	}

	task := nonSystem[taskIdx]
	rest := nonSystem[taskIdx+1:]

	dropTarget := len(rest) / 3
	cutIdx := dropTarget
	for i := dropTarget; i < len(rest); i++ {
		if rest[i].Role == openai.ChatMessageRoleUser {
			cutIdx = i
			break
		}
	}

	preserved := make([]openai.ChatCompletionMessage, 0, 1+len(rest)-cutIdx)
	preserved = append(preserved, task)
	preserved = append(preserved, rest[cutIdx:]...)

	activeToolIDs := make(map[string]struct{})
	valid := make([]openai.ChatCompletionMessage, 0, len(preserved))
	for _, msg := range preserved {
		switch msg.Role {
		case openai.ChatMessageRoleAssistant:
			activeToolIDs = make(map[string]struct{}, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				activeToolIDs[tc.ID] = struct{}{}
			}
			valid = append(valid, msg)
		case openai.ChatMessageRoleTool:
			if _, ok := activeToolIDs[msg.ToolCallID]; ok {
				valid = append(valid, msg)
			}
		case openai.ChatMessageRoleUser:
			activeToolIDs = make(map[string]struct{})
			valid = append(valid, msg)
		default:
			valid = append(valid, msg)
		}
	}

	result := append(append([]openai.ChatCompletionMessage{}, system...), valid...)
	return result, len(result) < len(messages)
}
