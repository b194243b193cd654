// Package llm implements the OpenAI-backed LLM capability and the request
// gateway that mediates every outbound model call.
package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"comms_server/core/port/out"
	"comms_server/pkg/apperr"
)

const (
	DefaultModel   = "gpt-4o-mini"
	backendService = "openai"
)

// Client is the out.LLMBackend implementation over the OpenAI chat API.
type Client struct {
	client  *openai.Client
	timeout time.Duration
}

// ClientConfig holds backend client configuration.
type ClientConfig struct {
	APIKey  string
	BaseURL string // optional override (proxies, compatible backends)
	Timeout time.Duration
}

// NewClient creates an OpenAI-backed client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:  openai.NewClientWithConfig(oc),
		timeout: timeout,
	}
}

// Invoke sends one chat completion request. The call is bounded by the
// configured timeout so a slow backend cannot stall a caller indefinitely.
func (c *Client) Invoke(ctx context.Context, req *out.LLMRequest) (*out.LLMResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := req.Params.Model
	if model == "" {
		model = DefaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.Params.MaxTokens,
		Temperature: req.Params.Temperature,
	})
	if err != nil {
		return nil, classifyBackendError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperr.RetryableBackend(backendService, errors.New("empty completion"))
	}

	return &out.LLMResult{
		Text: resp.Choices[0].Message.Content,
		Usage: out.TokenUsage{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
		},
	}, nil
}

// classifyBackendError maps transport failures onto the error taxonomy.
// Timeouts, rate limits, and overload are retryable; bad requests and auth
// failures are fatal and must never be retried.
func classifyBackendError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout("llm call").WithError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return apperr.AuthFailed(backendService, err)
		case apiErr.HTTPStatusCode == 400 || apiErr.HTTPStatusCode == 404 || apiErr.HTTPStatusCode == 422:
			return apperr.ValidationFailed("backend rejected request").WithError(err)
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return apperr.RetryableBackend(backendService, err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 401 || reqErr.HTTPStatusCode == 403 {
			return apperr.AuthFailed(backendService, err)
		}
		return apperr.RetryableBackend(backendService, err)
	}

	// Raw network failures are transient.
	return apperr.RetryableBackend(backendService, err)
}
