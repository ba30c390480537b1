// Package tools implements the callable tools exposed to the specialized
// agents: clock access, appointment listing and booking, knowledge base
// search, and web search. Tools return human-readable strings; domain
// failures (slot taken, nothing found) are reported as values in that
// string, while infrastructure failures surface as errors.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kalambet/concierge/internal/llm"
)

// CallContext carries per-request identity through the tool call chain.
// The booking tool trusts only this context for customer identity, never
// tool arguments, so one customer cannot book on behalf of another.
type CallContext struct {
	CustomerID string
	ThreadID   string
}

// Tool is a named operation an agent can invoke via function calling.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema for the arguments object
	Run         func(ctx context.Context, cc CallContext, args json.RawMessage) (string, error)
}

// Spec returns the function-calling declaration for the tool.
func (t Tool) Spec() llm.ToolSpec {
	return llm.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

// Registry stores tools keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name is a wiring bug and
// returns an error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Run == nil {
		return fmt.Errorf("tool %s: run function is required", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool already registered: %s", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// MustRegister adds a tool or panics. Used during startup wiring where a
// duplicate registration is unrecoverable.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, cc CallContext, name string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no tool registered for %s", name)
	}
	return t.Run(ctx, cc, args)
}

// Specs returns function-calling declarations for the named tools, in the
// given order. Unknown names are a wiring bug and panic.
func (r *Registry) Specs(names ...string) []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]llm.ToolSpec, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			panic(fmt.Sprintf("no tool registered for %s", name))
		}
		specs = append(specs, t.Spec())
	}
	return specs
}
