package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lendcore/agentd/domain"
)

func TestOpenAIClientComplete(t *testing.T) {
	var gotReq map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("missing auth header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request failed: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "cmpl_1",
			"model": "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]interface{}{"role": "assistant", "content": "hello"}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "test-key", time.Second)
	temp := 0.5
	completion, err := client.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "You are a verifier."},
			{Role: "user", Content: "Verify."},
		},
		Options: domain.ChatOptions{Model: "gpt-4o-mini", Temperature: &temp},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completion.Content != "hello" {
		t.Fatalf("unexpected content: %q", completion.Content)
	}
	if completion.Usage == nil || completion.Usage.TotalTokens != 12 {
		t.Fatalf("unexpected usage: %+v", completion.Usage)
	}

	if gotReq["model"] != "gpt-4o-mini" {
		t.Fatalf("model not forwarded: %+v", gotReq)
	}
	if gotReq["temperature"] != 0.5 {
		t.Fatalf("temperature not forwarded: %+v", gotReq)
	}
	msgs := gotReq["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestOpenAIClientToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		tools := req["tools"].([]interface{})
		if len(tools) != 1 {
			t.Fatalf("expected 1 advertised tool, got %d", len(tools))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]interface{}{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]string{
								"name":      "ledger.lookup",
								"arguments": `{"id":"doc_1"}`,
							},
						},
					},
				}},
			},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "", time.Second)
	completion, err := client.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "look it up"}},
		Options:  domain.ChatOptions{Model: "gpt-4o-mini"},
		Tools:    []ToolDefinition{{Name: "ledger.lookup"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(completion.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(completion.ToolCalls))
	}
	tc := completion.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "ledger.lookup" {
		t.Fatalf("unexpected tool call: %+v", tc)
	}
	if string(tc.Args) != `{"id":"doc_1"}` {
		t.Fatalf("unexpected args: %s", tc.Args)
	}
}

func TestOpenAIClientRetryableStatus(t *testing.T) {
	status := http.StatusServiceUnavailable
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "overloaded", "type": "server_error"},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "", time.Second)
	req := &CompletionRequest{Options: domain.ChatOptions{Model: "m"}}

	_, err := client.Complete(context.Background(), req)
	if !domain.IsTransient(err) {
		t.Fatalf("expected 503 to be transient, got %v", err)
	}

	status = http.StatusTooManyRequests
	_, err = client.Complete(context.Background(), req)
	if !domain.IsTransient(err) {
		t.Fatalf("expected 429 to be transient, got %v", err)
	}

	status = http.StatusBadRequest
	_, err = client.Complete(context.Background(), req)
	if err == nil || domain.IsTransient(err) {
		t.Fatalf("expected 400 to be permanent, got %v", err)
	}
}

func TestOpenAIClientNetworkError(t *testing.T) {
	client := NewOpenAIClient("http://127.0.0.1:1", "", 100*time.Millisecond)
	_, err := client.Complete(context.Background(), &CompletionRequest{Options: domain.ChatOptions{Model: "m"}})
	if !domain.IsTransient(err) {
		t.Fatalf("expected network error to be transient, got %v", err)
	}
}

func TestMockClientGoalRefusal(t *testing.T) {
	client := NewMockClient()

	completion, err := client.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "Has the goal been satisfied? Answer exactly YES or NO."}},
		Options:  domain.ChatOptions{Model: "m"},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completion.Content != "NO" {
		t.Fatalf("expected NO, got %q", completion.Content)
	}
}
