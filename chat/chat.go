// Package chat provides an abstraction for conversational model clients.
package chat

import (
	"context"
	"encoding/json"

	"github.com/lendcore/agentd/domain"
)

// Message is one message sent to the chat model.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolDefinition describes a callable tool advertised to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ToolCallRequest is a tool invocation requested by the model.
type ToolCallRequest struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// CompletionRequest carries one model invocation.
type CompletionRequest struct {
	Messages []Message
	Options  domain.ChatOptions
	Tools    []ToolDefinition
}

// Usage reports token usage of one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the model's reply: assistant text plus zero or more tool-call
// requests.
type Completion struct {
	Content   string
	ToolCalls []ToolCallRequest
	Usage     *Usage
}

// Client defines the interface for chat model operations. Implementations
// wrap transient failures (network, timeout, rate limit) in
// *domain.TransientError so callers can retry.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}
