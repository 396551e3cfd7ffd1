// Package domain defines the core domain models for the agent engine.
package domain

import (
	"encoding/json"
	"time"
)

// InputVar declares an invocation-time variable of an agent's prompt template.
type InputVar struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// ChatOptions are generation options passed through to the chat model.
// The engine treats them as opaque beyond serialization.
type ChatOptions struct {
	Model            string   `json:"model"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// Agent is the reusable configuration a run is created from.
type Agent struct {
	AgentID        string      `json:"agent_id"`
	Name           string      `json:"name"`
	OwnerID        string      `json:"owner_id,omitempty"`
	PromptTemplate string      `json:"prompt_template"`
	Options        ChatOptions `json:"options"`
	Tools          []string    `json:"tools,omitempty"`
	InputVars      []InputVar  `json:"input_vars,omitempty"`
	MultiTurn      bool        `json:"multi_turn"`
	MaxTurns       int         `json:"max_turns"`
	Goal           string      `json:"goal,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// DeclaresTool reports whether toolName is in the agent's declared tool list.
func (a *Agent) DeclaresTool(toolName string) bool {
	for _, t := range a.Tools {
		if t == toolName {
			return true
		}
	}
	return false
}

// ToolCall is one tool invocation requested by the assistant. Result and
// Error are populated after dispatch; a failed call carries Error instead of
// aborting the run.
type ToolCall struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Turn is one message in a run's conversation. Turns are append-only and
// 1-indexed with strictly increasing turn numbers.
type Turn struct {
	TurnNo    int        `json:"turn_no"`
	Role      TurnRole   `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// LogEntry is one diagnostic record attached to a run.
type LogEntry struct {
	Ts      time.Time `json:"ts"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// AgentRun is one execution instance of an Agent.
type AgentRun struct {
	RunID        string            `json:"run_id"`
	AgentID      string            `json:"agent_id"`
	OwnerID      string            `json:"owner_id,omitempty"`
	Status       RunStatus         `json:"status"`
	TurnCount    int               `json:"turn_count"`
	MaxTurns     int               `json:"max_turns"`
	Goal         string            `json:"goal,omitempty"`
	GoalAchieved bool              `json:"goal_achieved"`
	InputValues  map[string]string `json:"input_values,omitempty"`
	Turns        []Turn            `json:"turns,omitempty"`
	Logs         []LogEntry        `json:"logs,omitempty"`
	Error        json.RawMessage   `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// NextTurnNo returns the turn number the next appended turn must carry.
func (r *AgentRun) NextTurnNo() int {
	return len(r.Turns) + 1
}

// RunSummary is the registry's view of a run currently owned by a worker.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	AgentID   string    `json:"agent_id"`
	Status    RunStatus `json:"status"`
	TurnCount int       `json:"turn_count"`
	StartedAt time.Time `json:"started_at"`
}
