package agent

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
	"github.com/llamaha/sagitta-sub008/internal/toolport"
)

// scriptedProvider returns one queued Response per Generate call and drives
// GenerateStream by replaying the same response as a single text chunk
// followed by any tool-call chunks and a final chunk.
type scriptedProvider struct {
	responses []llmport.Response
	calls     int32
}

func (p *scriptedProvider) Generate(ctx context.Context, messages []llmport.Message, tools []llmport.ToolDefinition, model string) (llmport.Response, error) {
	i := atomic.AddInt32(&p.calls, 1) - 1
	if int(i) >= len(p.responses) {
		return llmport.Response{}, fmt.Errorf("no scripted response for call %d", i)
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) GenerateStream(ctx context.Context, messages []llmport.Message, tools []llmport.ToolDefinition, model string, sink llmport.StreamSink) error {
	i := atomic.AddInt32(&p.calls, 1) - 1
	if int(i) >= len(p.responses) {
		return fmt.Errorf("no scripted response for call %d", i)
	}
	resp := p.responses[i]
	if resp.Message.Content != "" {
		sink(llmport.StreamChunk{Kind: llmport.PartText, Text: resp.Message.Content})
	}
	for _, tc := range resp.Message.ToolCalls {
		tc := tc
		sink(llmport.StreamChunk{Kind: llmport.PartToolCall, ToolCall: &tc})
	}
	sink(llmport.StreamChunk{Kind: llmport.PartText, IsFinal: true})
	return nil
}

func echoRegistry() *toolport.Registry {
	r := toolport.NewRegistry()
	r.Register(toolport.Tool{
		Definition: llmport.ToolDefinition{Name: "echo"},
		Handler: func(ctx context.Context, args []byte) ([]byte, error) {
			return append([]byte(`{"echo":`), append(args, '}')...), nil
		},
	})
	return r
}

func TestRunStopsWhenNoToolCalls(t *testing.T) {
	provider := &scriptedProvider{responses: []llmport.Response{
		{Message: llmport.Message{Content: "done"}},
	}}
	eng := &Engine{LLM: provider, Tools: toolport.NewRegistry(), MaxSteps: 3}
	out, err := eng.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.EqualValues(t, 1, provider.calls)
}

func TestRunDispatchesToolCallThenFinishes(t *testing.T) {
	provider := &scriptedProvider{responses: []llmport.Response{
		{Message: llmport.Message{ToolCalls: []llmport.ToolCall{{Name: "echo", Args: []byte(`"hi"`)}}}},
		{Message: llmport.Message{Content: "final"}},
	}}
	var toolResults []string
	eng := &Engine{
		LLM:      provider,
		Tools:    echoRegistry(),
		MaxSteps: 3,
		OnTool: func(name string, args, result []byte, id string) {
			toolResults = append(toolResults, string(result))
		},
	}
	out, err := eng.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "final", out)
	require.Len(t, toolResults, 1)
	assert.Equal(t, `{"echo":"hi"}`, toolResults[0])
}

func TestEnsureToolCallIDsAssignsUniqueIDsAndPreservesGiven(t *testing.T) {
	eng := &Engine{}
	msgs := []llmport.Message{
		{Role: llmport.RoleAssistant, ToolCalls: []llmport.ToolCall{{ID: "existing"}}},
	}
	out := eng.ensureToolCallIDs(msgs, []llmport.ToolCall{{ID: "existing"}, {ID: ""}, {ID: ""}})
	assert.NotEqual(t, "existing", out[0].ID, "colliding ID must be reassigned")
	assert.NotEmpty(t, out[1].ID)
	assert.NotEmpty(t, out[2].ID)
	assert.NotEqual(t, out[1].ID, out[2].ID)
}

func TestDispatchToolsPreservesOrderDespiteParallelism(t *testing.T) {
	r := toolport.NewRegistry()
	r.Register(toolport.Tool{
		Definition: llmport.ToolDefinition{Name: "slow"},
		Handler: func(ctx context.Context, args []byte) ([]byte, error) {
			return args, nil
		},
	})
	eng := &Engine{Tools: r, MaxToolParallelism: 4}
	toolCalls := []llmport.ToolCall{
		{ID: "1", Name: "slow", Args: []byte(`"a"`)},
		{ID: "2", Name: "slow", Args: []byte(`"b"`)},
		{ID: "3", Name: "slow", Args: []byte(`"c"`)},
	}
	out := eng.dispatchTools(context.Background(), nil, toolCalls)
	require.Len(t, out, 3)
	assert.Equal(t, "1", out[0].ToolCallID)
	assert.Equal(t, "2", out[1].ToolCallID)
	assert.Equal(t, "3", out[2].ToolCallID)
}

func TestRunStreamAccumulatesDeltasAndDispatches(t *testing.T) {
	provider := &scriptedProvider{responses: []llmport.Response{
		{Message: llmport.Message{ToolCalls: []llmport.ToolCall{{Name: "echo", Args: []byte(`"x"`)}}}},
		{Message: llmport.Message{Content: "ok"}},
	}}
	var deltas []string
	eng := &Engine{
		LLM:      provider,
		Tools:    echoRegistry(),
		MaxSteps: 3,
		OnDelta:  func(s string) { deltas = append(deltas, s) },
	}
	out, err := eng.RunStream(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Contains(t, deltas, "ok")
}

func TestRunExhaustsMaxStepsWithoutFinalText(t *testing.T) {
	provider := &scriptedProvider{responses: []llmport.Response{
		{Message: llmport.Message{ToolCalls: []llmport.ToolCall{{Name: "echo", Args: []byte(`"1"`)}}}},
		{Message: llmport.Message{ToolCalls: []llmport.ToolCall{{Name: "echo", Args: []byte(`"2"`)}}}},
	}}
	eng := &Engine{LLM: provider, Tools: echoRegistry(), MaxSteps: 2}
	out, err := eng.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "no final text")
}
