package openrouter

import (
	openai "github.com/sashabaranov/go-openai"
)

// Request is a single chat-completions request. Messages are sent verbatim;
// the client never reorders or rewrites history.
type Request struct {
	Model    string
	Messages []openai.ChatCompletionMessage
	Tools    []openai.Tool
	// Temperature is forwarded only when set. A nil value leaves sampling
	// entirely to the provider's model default.
	Temperature *float64
}

// Completion is the assistant's reply to a Request.
type Completion struct {
	// Message is the raw assistant message from the first choice, suitable
	// for appending to conversation history unchanged.
	Message      openai.ChatCompletionMessage
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage is per-request token accounting. Cached and reasoning counts
// are subsets of the input and output counts respectively.
type TokenUsage struct {
	InputTokens           int `json:"input_tokens"`
	CachedInputTokens     int `json:"cached_input_tokens"`
	OutputTokens          int `json:"output_tokens"`
	ReasoningOutputTokens int `json:"reasoning_output_tokens"`
	TotalTokens           int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.CachedInputTokens += other.CachedInputTokens
	u.OutputTokens += other.OutputTokens
	u.ReasoningOutputTokens += other.ReasoningOutputTokens
	u.TotalTokens += other.TotalTokens
}

func usageFromResponse(u openai.Usage) TokenUsage {
	tu := TokenUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		tu.CachedInputTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		tu.ReasoningOutputTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return tu
}
