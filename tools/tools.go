// Package tools provides tool discovery and invocation for agent runs.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrToolNotFound is returned by Invoke for an unknown tool name.
var ErrToolNotFound = errors.New("tool not found")

// InvocationError reports a tool that was found but failed to execute.
type InvocationError struct {
	ToolName string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %s invocation failed: %v", e.ToolName, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Definition describes one available tool.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Provider discovers and invokes tools by name.
type Provider interface {
	ListTools(ctx context.Context) ([]Definition, error)
	Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// Handler executes one tool call.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Registry is an in-process Provider backed by an explicit name -> handler
// map. Dispatch is by map lookup only, never reflection.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	defs     map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		defs:     make(map[string]Definition),
	}
}

// Ensure Registry implements Provider.
var _ Provider = (*Registry)(nil)

// Register adds or replaces a tool.
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return errors.New("tool name is required")
	}
	if handler == nil {
		return errors.New("tool handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = handler
	r.defs[def.Name] = def
	return nil
}

// ListTools returns all registered tools sorted by name.
func (r *Registry) ListTools(ctx context.Context) ([]Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// Invoke executes a registered tool by name.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	result, err := handler(ctx, args)
	if err != nil {
		return nil, &InvocationError{ToolName: name, Err: err}
	}
	return result, nil
}
