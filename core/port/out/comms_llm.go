// Package out defines outbound ports consumed by core services.
package out

import (
	"context"
	"time"
)

// ChatRole is a chat message author role.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn in an LLM conversation.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// ModelParams are the sampling parameters for one call.
type ModelParams struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// LLMRequest is the backend-agnostic request shape.
type LLMRequest struct {
	System   string        `json:"system,omitempty"`
	Messages []ChatMessage `json:"messages"`
	Params   ModelParams   `json:"params"`
}

// TokenUsage reports metered token consumption for one call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// LLMResult is the raw backend response.
type LLMResult struct {
	Text  string     `json:"text"`
	Usage TokenUsage `json:"usage"`
}

// Priority orders callers at the rate limiter.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high" // emergency path; admitted into the limiter carve-out
)

// SendOptions tune one gateway call.
type SendOptions struct {
	Priority      Priority
	Cacheable     bool
	CorrelationID string
}

// LLMResponse is the gateway response surfaced to core services.
type LLMResponse struct {
	Text          string        `json:"text"`
	Usage         TokenUsage    `json:"usage"`
	Cached        bool          `json:"cached"`
	CorrelationID string        `json:"correlation_id"`
	Attempts      int           `json:"attempts"`
	Duration      time.Duration `json:"duration"`
}

// LLMBackend is the raw "send message to LLM" capability.
// Implementations classify failures through the apperr taxonomy:
// timeout/rate_limited/overloaded as RETRYABLE_BACKEND,
// invalid_request as VALIDATION_FAILED, auth_error as AUTH_FAILED.
type LLMBackend interface {
	Invoke(ctx context.Context, req *LLMRequest) (*LLMResult, error)
}

// LLMGateway is the single choke point for outbound LLM calls, providing
// validation, backpressure, memoization, retry, and circuit breaking.
type LLMGateway interface {
	Send(ctx context.Context, req *LLMRequest, opts *SendOptions) (*LLMResponse, error)
}
