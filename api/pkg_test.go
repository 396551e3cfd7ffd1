package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lendcore/agentd/chat"
	"github.com/lendcore/agentd/config"
	"github.com/lendcore/agentd/domain"
	"github.com/lendcore/agentd/engine"
	"github.com/lendcore/agentd/hub"
	"github.com/lendcore/agentd/store"
	"github.com/lendcore/agentd/tests/helpers"
	"github.com/lendcore/agentd/tools"
)

func newTestHandler(t *testing.T) (*Handler, *store.SQLiteStore) {
	t.Helper()
	s := helpers.NewTestSQLiteStore(t)

	cfg := &config.Config{
		ChatMaxAttempts: 1,
		WorkerCount:     1,
		QueueCapacity:   4,
		AgentCacheSize:  8,
	}
	eng, err := engine.New(s, chat.NewMockClient(), tools.NewRegistry(), nil, nil, cfg)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}

	h := hub.NewHub()
	go h.Run()
	t.Cleanup(h.Close)

	return NewHandler(s, eng, h), s
}

func doJSON(t *testing.T, h *Handler, method, path, body string, handler func(echo.Context) error, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	if len(names) > 0 {
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body %s: %v", rec.Body.String(), err)
	}
	return body
}

func seedAgent(t *testing.T, s store.Store, id string) {
	t.Helper()
	now := time.Now()
	agent := &domain.Agent{
		AgentID:        id,
		Name:           "Checker",
		PromptTemplate: "Check documents.",
		Options:        domain.ChatOptions{Model: "test-model"},
		MaxTurns:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
}
