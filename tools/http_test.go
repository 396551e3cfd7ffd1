package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newToolServer(t *testing.T) *httptest.Server {
	t.Helper()
	// Method-prefixed ServeMux patterns need Go 1.22+; dispatch manually so
	// the server also works on older toolchains.
	mux := http.NewServeMux()
	mux.HandleFunc("/tools", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tools": []Definition{
				{Name: "ledger.lookup", Description: "Looks up a ledger entry."},
			},
		})
	})
	mux.HandleFunc("/tools/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch r.URL.Path {
		case "/tools/ledger.lookup/invoke":
			var payload struct {
				Args json.RawMessage `json:"args"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"result": map[string]string{"status": "found"},
			})
		case "/tools/ledger.broken/invoke":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"code": "upstream_down", "message": "ledger unavailable"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPProviderListTools(t *testing.T) {
	server := newToolServer(t)
	p := NewHTTPProvider(server.URL, time.Second)

	defs, err := p.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "ledger.lookup" {
		t.Fatalf("unexpected tools: %+v", defs)
	}
}

func TestHTTPProviderInvoke(t *testing.T) {
	server := newToolServer(t)
	p := NewHTTPProvider(server.URL, time.Second)

	result, err := p.Invoke(context.Background(), "ledger.lookup", json.RawMessage(`{"id":"doc_1"}`))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Status != "found" {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestHTTPProviderInvokeError(t *testing.T) {
	server := newToolServer(t)
	p := NewHTTPProvider(server.URL, time.Second)

	_, err := p.Invoke(context.Background(), "ledger.broken", nil)
	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvocationError, got %v", err)
	}
}

func TestHTTPProviderInvokeNotFound(t *testing.T) {
	server := newToolServer(t)
	p := NewHTTPProvider(server.URL, time.Second)

	_, err := p.Invoke(context.Background(), "ghost", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}
