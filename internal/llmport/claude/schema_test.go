package claude

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
)

func TestAdaptMessagesSeparatesSystemFromTurns(t *testing.T) {
	sys, turns, err := adaptMessages([]llmport.Message{
		{Role: llmport.RoleSystem, Content: "be terse"},
		{Role: llmport.RoleUser, Content: "hi"},
		{Role: llmport.RoleAssistant, Content: "", ToolCalls: []llmport.ToolCall{{ID: "1", Name: "x", Args: []byte(`{"a":1}`)}}},
		{Role: llmport.RoleTool, Content: "result", ToolCallID: "1"},
	})
	require.NoError(t, err)
	require.Len(t, sys, 1)
	assert.Equal(t, "be terse", sys[0].Text)
	require.Len(t, turns, 3)
}

func TestAdaptToolsRejectsEmptyName(t *testing.T) {
	_, err := adaptTools([]llmport.ToolDefinition{{Name: ""}})
	assert.Error(t, err)
}

func TestToolBufferReplacesPlaceholderOnFirstDelta(t *testing.T) {
	tb := &toolBuffer{name: "search", id: "call-1"}
	tb.appendInitial(nil)
	tb.appendPartial(`{"q":"go`)
	tb.appendPartial(`lang"}`)
	tc := tb.toToolCall()
	assert.Equal(t, "search", tc.Name)
	var args map[string]any
	require.NoError(t, json.Unmarshal(tc.Args, &args))
	assert.Equal(t, "golang", args["q"])
}

func TestToolBufferFallsBackToEmptyObjectOnInvalidJSON(t *testing.T) {
	tb := &toolBuffer{name: "search", id: "call-1"}
	tb.appendInitial(nil)
	tb.appendPartial(`not json`)
	tc := tb.toToolCall()
	assert.JSONEq(t, `{}`, string(tc.Args))
}
