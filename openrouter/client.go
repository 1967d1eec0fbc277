package openrouter

import (
	"context"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is the OpenRouter chat-completions endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Config configures a Client.
type Config struct {
	// APIKey authenticates against the endpoint. Required.
	APIKey string
	// BaseURL overrides the endpoint. Any OpenAI-compatible server works.
	// Defaults to DefaultBaseURL.
	BaseURL string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// Policy overrides the retry policy. Defaults to DefaultRetryPolicy.
	Policy *RetryPolicy
}

// Client sends chat-completions requests with typed errors and bounded retry.
type Client struct {
	api    *openai.Client
	policy RetryPolicy
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigurationError{ClientError: ClientError{Message: "api key is required"}}
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(base, "/")
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	policy := DefaultRetryPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}

	return &Client{
		api:    openai.NewClientWithConfig(oc),
		policy: policy,
	}, nil
}

// CreateCompletion sends one chat-completions request and returns the first
// choice. Tool-calling requests always pin tool_choice to "auto" and disable
// parallel tool calls, so the model emits at most a sequential batch the
// caller can police one call at a time.
func (c *Client) CreateCompletion(ctx context.Context, req Request) (*Completion, error) {
	oreq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Tools:    req.Tools,
	}
	if len(req.Tools) > 0 {
		oreq.ToolChoice = "auto"
		oreq.ParallelToolCalls = false
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		if t == 0 {
			// go-openai tags Temperature with omitempty, which drops an
			// exact zero from the wire. The smallest positive float32
			// survives serialization and samples identically to zero.
			t = math.SmallestNonzeroFloat32
		}
		oreq.Temperature = t
	}

	resp, err := Retry(ctx, c.policy, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		r, rerr := c.api.CreateChatCompletion(ctx, oreq)
		if rerr != nil {
			return r, classifyError(rerr)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &APIError{
			ClientError: ClientError{Message: "response contained no choices"},
			StatusCode:  200,
		}
	}

	choice := resp.Choices[0]
	return &Completion{
		Message:      choice.Message,
		FinishReason: string(choice.FinishReason),
		Usage:        usageFromResponse(resp.Usage),
	}, nil
}
