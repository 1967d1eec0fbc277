package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ClientError is the base error type for all openrouter errors.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// APIError represents an error response from the OpenRouter API.
type APIError struct {
	ClientError
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status=%d, retryable=%v)", e.Message, e.StatusCode, e.Retryable)
}

// Concrete API error types.

type AuthenticationError struct{ APIError }
type AccessDeniedError struct{ APIError }
type NotFoundError struct{ APIError }
type InvalidRequestError struct{ APIError }
type RateLimitError struct{ APIError }
type ServerError struct{ APIError }
type ContextLengthError struct{ APIError }

// Non-API errors.

type RequestTimeoutError struct{ ClientError }
type AbortError struct{ ClientError }
type NetworkError struct{ ClientError }
type ConfigurationError struct{ ClientError }

// isContextLengthMessage recognizes context-window overflow responses that
// arrive without the 413 status. OpenRouter and most upstream providers
// report them as a 400 with a "context_length_exceeded" code or a message
// naming the context length.
func isContextLengthMessage(errorCode, message string) bool {
	if errorCode == "context_length_exceeded" {
		return true
	}
	m := strings.ToLower(message)
	return strings.Contains(m, "context") && strings.Contains(m, "length")
}

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, errorCode string, retryAfter *float64) error {
	ae := APIError{
		ClientError: ClientError{Message: message},
		StatusCode:  statusCode,
		ErrorCode:   errorCode,
		RetryAfter:  retryAfter,
	}

	if statusCode == 413 || isContextLengthMessage(errorCode, message) {
		ae.Retryable = false
		return &ContextLengthError{APIError: ae}
	}

	switch statusCode {
	case 400, 422:
		ae.Retryable = false
		return &InvalidRequestError{APIError: ae}
	case 401:
		ae.Retryable = false
		return &AuthenticationError{APIError: ae}
	case 403:
		ae.Retryable = false
		return &AccessDeniedError{APIError: ae}
	case 404:
		ae.Retryable = false
		return &NotFoundError{APIError: ae}
	case 408:
		return &RequestTimeoutError{ClientError: ClientError{Message: message}}
	case 429:
		ae.Retryable = true
		return &RateLimitError{APIError: ae}
	case 500, 502, 503, 504:
		ae.Retryable = true
		return &ServerError{APIError: ae}
	default:
		// Unknown errors default to retryable.
		ae.Retryable = true
		return &ae
	}
}

// classifyError converts a go-openai transport error into a typed error.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		return ErrorFromStatusCode(apiErr.HTTPStatusCode, apiErr.Message, code, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ErrorFromStatusCode(reqErr.HTTPStatusCode, reqErr.Error(), "", nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{ClientError: ClientError{Message: "request cancelled", Cause: err}}
	}
	return &NetworkError{ClientError: ClientError{Message: "request failed", Cause: err}}
}

// IsContextLength returns true if the error indicates the request exceeded
// the model's context window.
func IsContextLength(err error) bool {
	var cle *ContextLengthError
	return errors.As(err, &cle)
}

// IsRetryable returns true if the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *APIError:
		return e.Retryable
	case *AuthenticationError:
		return false
	case *AccessDeniedError:
		return false
	case *NotFoundError:
		return false
	case *InvalidRequestError:
		return false
	case *ContextLengthError:
		return false
	case *ConfigurationError:
		return false
	case *AbortError:
		return false
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *NetworkError:
		return true
	case *RequestTimeoutError:
		return true
	default:
		// Unknown errors default to retryable.
		return true
	}
}
