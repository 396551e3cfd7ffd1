package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestRegistryRegisterAndInvoke(t *testing.T) {
	r := NewRegistry()

	err := r.Register(Definition{Name: "math.add", Description: "Adds two integers."}, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct{ A, B int }
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"sum": in.A + in.B})
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result, err := r.Invoke(context.Background(), "math.add", json.RawMessage(`{"A":1,"B":2}`))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	var out struct {
		Sum int `json:"sum"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Sum != 3 {
		t.Fatalf("expected 3, got %d", out.Sum)
	}
}

func TestRegistryRegisterValidation(t *testing.T) {
	r := NewRegistry()
	handler := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	}

	if err := r.Register(Definition{}, handler); err == nil {
		t.Fatal("expected registration without a name to fail")
	}
	if err := r.Register(Definition{Name: "echo"}, nil); err == nil {
		t.Fatal("expected registration without a handler to fail")
	}
}

func TestRegistryInvocationError(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Definition{Name: "broken"}, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("boom")
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := r.Invoke(context.Background(), "broken", nil)
	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvocationError, got %v", err)
	}
	if invErr.ToolName != "broken" {
		t.Fatalf("unexpected tool name: %s", invErr.ToolName)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.Invoke(context.Background(), "ghost", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryListToolsSorted(t *testing.T) {
	r := NewRegistry()
	handler := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	}
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(Definition{Name: name}, handler); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	defs, err := r.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(defs))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if defs[i].Name != want {
			t.Fatalf("expected %s at %d, got %s", want, i, defs[i].Name)
		}
	}
}
