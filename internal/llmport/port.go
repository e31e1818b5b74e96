// Package llmport is the LLM Client Port: a provider-neutral
// surface over chat completion, streaming, and tool calling, grounded on
// manifold/internal/llm.Provider.
package llmport

import (
	"context"
	"encoding/json"
)

// Role names a message's author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Message is the Port's wire-neutral chat message. ToolCallID is set on
// RoleTool messages to key the result back to the originating ToolCall.ID.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// ToolDefinition describes a callable tool, translated by each adapter into
// its provider's native function-schema format.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// TokenUsage reports accounting for one turn.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of a non-streaming generate call.
type Response struct {
	Message Message
	Usage   TokenUsage
}

// StreamPartKind classifies one piece of a StreamChunk.
type StreamPartKind string

const (
	PartText     StreamPartKind = "text"
	PartThought  StreamPartKind = "thought"
	PartToolCall StreamPartKind = "tool_call"
)

// StreamChunk is one increment of a streamed turn. The adapter
// emits parts in wire order; the final chunk for a turn has IsFinal=true
// even when Text is empty.
type StreamChunk struct {
	Kind         StreamPartKind
	Text         string
	Thought      string
	ToolCall     *ToolCall
	IsFinal      bool
	FinishReason string
	Usage        *TokenUsage
}

// StreamSink receives StreamChunks as they're produced. Implementations
// must not block the adapter goroutine for long (mirrors
// manifold/internal/llm.StreamHandler, generalized to one method instead of
// four so new part kinds don't require a handler interface change).
type StreamSink func(StreamChunk)

// Provider is the LLM Client Port.
type Provider interface {
	// Generate performs a single non-streaming turn.
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition, model string) (Response, error)
	// GenerateStream performs a streaming turn, invoking sink for each chunk.
	GenerateStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, sink StreamSink) error
}
