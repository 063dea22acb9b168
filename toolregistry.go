package anamnesis

import (
	"context"
	"sync"
)

// Tool is an invokable action the ReAct executor and Planner can call.
// Args and results are opaque JSON, matching the spec's external tool
// adapter contract (§6).
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, argsJSON string) (string, error)
}

// ToolRegistry is a concurrency-safe dynamic registry of Tools.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool under its own Name().
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// List returns the names of every registered tool.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Descriptions returns name -> description for every registered tool, for
// rendering into a ReAct/Planner prompt.
func (r *ToolRegistry) Descriptions() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.tools))
	for name, t := range r.tools {
		out[name] = t.Description()
	}
	return out
}

// Invoke dispatches to the named tool, returning its JSON result. An
// unknown tool name is a NotFound error, never a panic — a plan or ReAct
// loop must be able to treat it as a recoverable observation.
func (r *ToolRegistry) Invoke(ctx context.Context, name, argsJSON string) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", newError(KindNotFound, "ToolRegistry.Invoke", nil, "tool %s", name)
	}
	return t.Invoke(ctx, argsJSON)
}
