package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/lendcore/agentd/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EnqueueRunRequest is the request body for enqueuing a run.
type EnqueueRunRequest struct {
	InputValues map[string]string `json:"input_values,omitempty"`
}

// EnqueueRun validates inputs and enqueues a new run for an agent.
// POST /v1/agents/:agent_id/runs
func (h *Handler) EnqueueRun(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	var req EnqueueRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	runID, err := h.engine.Enqueue(ctx, agentID, req.InputValues)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"run_id": runID,
		"status": "PENDING",
	})
}

// GetRun returns a run with its full transcript and log.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	run, err := h.store.GetRun(ctx, runID)
	if err != nil {
		log.Printf("ERROR: failed to get run: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}

	return c.JSON(http.StatusOK, run)
}

// ListAgentRuns lists runs for an agent, most recent first.
// GET /v1/agents/:agent_id/runs
func (h *Handler) ListAgentRuns(c echo.Context) error {
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

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.store.ListRunsByAgent(ctx, agentID, limit)
	if err != nil {
		log.Printf("ERROR: failed to list runs: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

// ListActiveRuns lists runs currently held by workers.
// GET /v1/runs/active
func (h *Handler) ListActiveRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"active":      h.engine.ListActive(),
		"queue_depth": h.engine.QueueDepth(),
	})
}

// PauseRun requests that a run pause at the next turn boundary.
// POST /v1/runs/:run_id/pause
func (h *Handler) PauseRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	if err := h.engine.Pause(ctx, runID); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// ResumeRun resumes a paused run.
// POST /v1/runs/:run_id/resume
func (h *Handler) ResumeRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	if err := h.engine.Resume(ctx, runID); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// CancelRun requests cancellation of a run.
// POST /v1/runs/:run_id/cancel
func (h *Handler) CancelRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	if err := h.engine.Cancel(ctx, runID); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// WatchRun upgrades to a WebSocket and streams run progress events.
// GET /v1/runs/:run_id/watch
func (h *Handler) WatchRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	run, err := h.store.GetRun(ctx, runID)
	if err != nil {
		log.Printf("ERROR: failed to get run: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ERROR: websocket upgrade failed: %v", err)
		return err
	}

	conn := h.hub.NewConnection(ws, runID)
	h.hub.Register(conn)

	go h.writePump(conn)
	h.readPump(conn)

	return nil
}

// writePump pushes hub events out to the watcher.
func (h *Handler) writePump(conn *hub.Connection) {
	defer conn.Close()

	for data := range conn.Send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("WARN: failed to write to watcher %s: %v", conn.ID, err)
			return
		}
	}
}

// readPump drains the connection until the watcher disconnects.
func (h *Handler) readPump(conn *hub.Connection) {
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
