package api

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lendcore/agentd/domain"
)

// AgentRequest is the request body for creating or updating an agent.
type AgentRequest struct {
	Name           string             `json:"name"`
	OwnerID        string             `json:"owner_id,omitempty"`
	PromptTemplate string             `json:"prompt_template"`
	Options        domain.ChatOptions `json:"options"`
	Tools          []string           `json:"tools,omitempty"`
	InputVars      []domain.InputVar  `json:"input_vars,omitempty"`
	MultiTurn      bool               `json:"multi_turn"`
	MaxTurns       int                `json:"max_turns,omitempty"`
	Goal           string             `json:"goal,omitempty"`
}

func (r *AgentRequest) validate() error {
	if r.Name == "" {
		return &domain.ValidationError{Field: "name", Message: "is required"}
	}
	if r.PromptTemplate == "" {
		return &domain.ValidationError{Field: "prompt_template", Message: "is required"}
	}
	if r.MaxTurns < 0 {
		return &domain.ValidationError{Field: "max_turns", Message: "must not be negative"}
	}
	return nil
}

// CreateAgent creates a new agent definition.
// POST /v1/agents
func (h *Handler) CreateAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := req.validate(); err != nil {
		return errorResponse(c, err)
	}

	now := time.Now()
	agent := &domain.Agent{
		AgentID:        "agt_" + uuid.New().String()[:8],
		Name:           req.Name,
		OwnerID:        req.OwnerID,
		PromptTemplate: req.PromptTemplate,
		Options:        req.Options,
		Tools:          req.Tools,
		InputVars:      req.InputVars,
		MultiTurn:      req.MultiTurn,
		MaxTurns:       req.MaxTurns,
		Goal:           req.Goal,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.CreateAgent(ctx, agent); err != nil {
		log.Printf("ERROR: failed to create agent: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create agent"})
	}

	return c.JSON(http.StatusCreated, agent)
}

// ListAgents lists all agents.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	ctx := c.Request().Context()

	agents, err := h.store.ListAgents(ctx)
	if err != nil {
		log.Printf("ERROR: failed to list agents: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list agents"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": agents,
	})
}

// GetAgent gets a specific agent by ID.
// GET /v1/agents/:agent_id
func (h *Handler) GetAgent(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	agent, err := h.store.GetAgent(ctx, agentID)
	if err != nil {
		log.Printf("ERROR: failed to get agent: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get agent"})
	}
	if agent == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}

	return c.JSON(http.StatusOK, agent)
}

// UpdateAgent replaces an agent definition. Runs already enqueued keep the
// definition they were created with; future runs pick up the new one.
// PUT /v1/agents/:agent_id
func (h *Handler) UpdateAgent(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	existing, err := h.store.GetAgent(ctx, agentID)
	if err != nil {
		log.Printf("ERROR: failed to get agent: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get agent"})
	}
	if existing == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}

	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := req.validate(); err != nil {
		return errorResponse(c, err)
	}

	agent := &domain.Agent{
		AgentID:        agentID,
		Name:           req.Name,
		OwnerID:        req.OwnerID,
		PromptTemplate: req.PromptTemplate,
		Options:        req.Options,
		Tools:          req.Tools,
		InputVars:      req.InputVars,
		MultiTurn:      req.MultiTurn,
		MaxTurns:       req.MaxTurns,
		Goal:           req.Goal,
		CreatedAt:      existing.CreatedAt,
		UpdatedAt:      time.Now(),
	}

	if err := h.store.UpdateAgent(ctx, agent); err != nil {
		return errorResponse(c, err)
	}

	h.engine.InvalidateAgent(agentID)

	return c.JSON(http.StatusOK, agent)
}

// DeleteAgent removes an agent definition and its runs.
// DELETE /v1/agents/:agent_id
func (h *Handler) DeleteAgent(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	if err := h.store.DeleteAgent(ctx, agentID); err != nil {
		return errorResponse(c, err)
	}

	h.engine.InvalidateAgent(agentID)

	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}
