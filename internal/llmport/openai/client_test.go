package openai

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
)

func TestGenerateReturnsChoiceContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello","tool_calls":[]}}]}`))
	}))
	defer srv.Close()

	cli := New(Config{APIKey: "test", BaseURL: srv.URL, Model: "m"})
	resp, err := cli.Generate(t.Context(), []llmport.Message{{Role: llmport.RoleUser, Content: "hi"}}, nil, "")
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Message.Content)
}

func TestGenerateStreamAccumulatesToolCallByIndex(t *testing.T) {
	body := "data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"function\":{\"name\":\"search\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"{\\\"q\\\":\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"\\\"go\\\"}\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n" +
		"data: [DONE]\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	cli := New(Config{APIKey: "test", BaseURL: srv.URL, Model: "m"})
	var toolCalls []llmport.ToolCall
	var finals int
	err := cli.GenerateStream(t.Context(), []llmport.Message{{Role: llmport.RoleUser, Content: "hi"}}, nil, "", func(c llmport.StreamChunk) {
		if c.Kind == llmport.PartToolCall {
			toolCalls = append(toolCalls, *c.ToolCall)
		}
		if c.IsFinal {
			finals++
		}
	})
	require.NoError(t, err)
	require.Len(t, toolCalls, 1)
	require.Equal(t, "search", toolCalls[0].Name)
	require.JSONEq(t, `{"q":"go"}`, string(toolCalls[0].Args))
	require.Equal(t, 1, finals)
}
