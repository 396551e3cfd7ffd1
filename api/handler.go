// Package api provides HTTP handlers for the agent run service.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lendcore/agentd/engine"
	"github.com/lendcore/agentd/hub"
	"github.com/lendcore/agentd/store"
)

// Handler handles HTTP requests.
type Handler struct {
	store  store.Store
	engine *engine.Engine
	hub    *hub.Hub
}

// NewHandler creates a new handler.
func NewHandler(store store.Store, engine *engine.Engine, hub *hub.Hub) *Handler {
	return &Handler{
		store:  store,
		engine: engine,
		hub:    hub,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Agent registry API
	e.POST("/v1/agents", h.CreateAgent)
	e.GET("/v1/agents", h.ListAgents)
	e.GET("/v1/agents/:agent_id", h.GetAgent)
	e.PUT("/v1/agents/:agent_id", h.UpdateAgent)
	e.DELETE("/v1/agents/:agent_id", h.DeleteAgent)

	// Run API
	e.POST("/v1/agents/:agent_id/runs", h.EnqueueRun)
	e.GET("/v1/agents/:agent_id/runs", h.ListAgentRuns)
	e.GET("/v1/runs/active", h.ListActiveRuns)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.POST("/v1/runs/:run_id/pause", h.PauseRun)
	e.POST("/v1/runs/:run_id/resume", h.ResumeRun)
	e.POST("/v1/runs/:run_id/cancel", h.CancelRun)
	e.GET("/v1/runs/:run_id/watch", h.WatchRun)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"version":     "0.1.0",
		"queue_depth": h.engine.QueueDepth(),
	})
}
