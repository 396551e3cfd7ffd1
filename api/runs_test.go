package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendcore/agentd/chat"
	"github.com/lendcore/agentd/config"
	"github.com/lendcore/agentd/domain"
	"github.com/lendcore/agentd/engine"
	"github.com/lendcore/agentd/tests/helpers"
	"github.com/lendcore/agentd/tools"
)

func TestEnqueueRun(t *testing.T) {
	h, s := newTestHandler(t)
	seedAgent(t, s, "agt_1")

	rec := doJSON(t, h, http.MethodPost, "/v1/agents/agt_1/runs", `{"input_values":{}}`, h.EnqueueRun, "agent_id", "agt_1")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decodeBody(t, rec)
	runID, _ := resp["run_id"].(string)
	require.NotEmpty(t, runID)
	assert.Equal(t, "PENDING", resp["status"])

	stored, err := s.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.RunStatusPending, stored.Status)
}

func TestEnqueueRunUnknownAgent(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/agents/ghost/runs", `{}`, h.EnqueueRun, "agent_id", "ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnqueueRunMissingInput(t *testing.T) {
	h, s := newTestHandler(t)

	now := time.Now()
	agent := &domain.Agent{
		AgentID:        "agt_1",
		Name:           "Checker",
		PromptTemplate: "Check {{applicant}}.",
		Options:        domain.ChatOptions{Model: "test-model"},
		InputVars:      []domain.InputVar{{Name: "applicant", Required: true}},
		MaxTurns:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, s.CreateAgent(context.Background(), agent))

	rec := doJSON(t, h, http.MethodPost, "/v1/agents/agt_1/runs", `{"input_values":{}}`, h.EnqueueRun, "agent_id", "agt_1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueRunQueueFull(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	cfg := &config.Config{ChatMaxAttempts: 1, WorkerCount: 1, QueueCapacity: 1, AgentCacheSize: 8}
	eng, err := engine.New(s, chat.NewMockClient(), tools.NewRegistry(), nil, nil, cfg)
	require.NoError(t, err)
	h := NewHandler(s, eng, nil)
	seedAgent(t, s, "agt_1")

	rec := doJSON(t, h, http.MethodPost, "/v1/agents/agt_1/runs", `{}`, h.EnqueueRun, "agent_id", "agt_1")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/agents/agt_1/runs", `{}`, h.EnqueueRun, "agent_id", "agt_1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetRunHandler(t *testing.T) {
	h, s := newTestHandler(t)
	seedAgent(t, s, "agt_1")

	rec := doJSON(t, h, http.MethodPost, "/v1/agents/agt_1/runs", `{}`, h.EnqueueRun, "agent_id", "agt_1")
	require.Equal(t, http.StatusAccepted, rec.Code)
	runID := decodeBody(t, rec)["run_id"].(string)

	rec = doJSON(t, h, http.MethodGet, "/v1/runs/"+runID, "", h.GetRun, "run_id", runID)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, runID, resp["run_id"])
	assert.Equal(t, "agt_1", resp["agent_id"])

	rec = doJSON(t, h, http.MethodGet, "/v1/runs/ghost", "", h.GetRun, "run_id", "ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAgentRunsHandler(t *testing.T) {
	h, s := newTestHandler(t)
	seedAgent(t, s, "agt_1")

	for i := 0; i < 3; i++ {
		rec := doJSON(t, h, http.MethodPost, "/v1/agents/agt_1/runs", `{}`, h.EnqueueRun, "agent_id", "agt_1")
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/v1/agents/agt_1/runs", "", h.ListAgentRuns, "agent_id", "agt_1")
	require.Equal(t, http.StatusOK, rec.Code)
	runs, ok := decodeBody(t, rec)["runs"].([]interface{})
	require.True(t, ok)
	assert.Len(t, runs, 3)

	rec = doJSON(t, h, http.MethodGet, "/v1/agents/ghost/runs", "", h.ListAgentRuns, "agent_id", "ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunControlHandlers(t *testing.T) {
	h, s := newTestHandler(t)
	seedAgent(t, s, "agt_1")

	rec := doJSON(t, h, http.MethodPost, "/v1/agents/agt_1/runs", `{}`, h.EnqueueRun, "agent_id", "agt_1")
	require.Equal(t, http.StatusAccepted, rec.Code)
	runID := decodeBody(t, rec)["run_id"].(string)

	rec = doJSON(t, h, http.MethodPost, "/v1/runs/"+runID+"/pause", "", h.PauseRun, "run_id", runID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/runs/"+runID+"/resume", "", h.ResumeRun, "run_id", runID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/runs/"+runID+"/cancel", "", h.CancelRun, "run_id", runID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/runs/ghost/pause", "", h.PauseRun, "run_id", "ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControlOnTerminalRunConflicts(t *testing.T) {
	h, s := newTestHandler(t)
	seedAgent(t, s, "agt_1")

	now := time.Now()
	completed := now
	run := &domain.AgentRun{
		RunID:       "run_done",
		AgentID:     "agt_1",
		Status:      domain.RunStatusCompleted,
		MaxTurns:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
		CompletedAt: &completed,
	}
	require.NoError(t, s.CreateRun(context.Background(), run))

	rec := doJSON(t, h, http.MethodPost, "/v1/runs/run_done/cancel", "", h.CancelRun, "run_id", "run_done")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/runs/run_done/pause", "", h.PauseRun, "run_id", "run_done")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/runs/run_done/resume", "", h.ResumeRun, "run_id", "run_done")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListActiveRunsHandler(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/v1/runs/active", "", h.ListActiveRuns)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Contains(t, resp, "active")
	assert.Contains(t, resp, "queue_depth")
}

func TestHealthHandler(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/health", "", h.Health)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}
