// Package toolport is the Tool Executor Port: a registry of
// callable tools the Agent Loop dispatches tool calls against, grounded on
// manifold/internal/tools.Registry.
package toolport

import (
	"context"
	"fmt"
	"sync"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
)

// Handler executes one tool call and returns its raw JSON result.
type Handler func(ctx context.Context, args []byte) ([]byte, error)

// Tool pairs a callable schema with its handler.
type Tool struct {
	Definition llmport.ToolDefinition
	Handler    Handler
}

// Registry holds the tools available to an Agent Loop turn.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Definition.Name] = t
}

// Schemas returns the ToolDefinitions of every registered tool, for
// inclusion in the next LLM turn.
func (r *Registry) Schemas() []llmport.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llmport.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition)
	}
	return out
}

// Execute runs the named tool's handler, returning an error if no tool with
// that name is registered.
func (r *Registry) Execute(ctx context.Context, name string, args []byte) ([]byte, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no tool registered with name %q", name)
	}
	return t.Handler(ctx, args)
}
