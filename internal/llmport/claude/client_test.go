package claude

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/stretchr/testify/require"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
)

func minimalUsage() sdk.Usage {
	return sdk.Usage{InputTokens: 1, OutputTokens: 2}
}

func TestGenerateReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		resp := sdk.Message{
			ID:    "msg_1",
			Type:  constant.Message("message"),
			Role:  constant.Assistant("assistant"),
			Model: sdk.ModelClaude3_7SonnetLatest,
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "hello"},
			},
			Usage: minimalUsage(),
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	cli := New(Config{APIKey: "k", Model: "m", BaseURL: srv.URL})
	resp, err := cli.Generate(t.Context(), []llmport.Message{{Role: llmport.RoleUser, Content: "hi"}}, nil, "")
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Message.Content)
	require.Equal(t, 1, resp.Usage.PromptTokens)
	require.Equal(t, 2, resp.Usage.CompletionTokens)
}

func TestGenerateCapturesToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		resp := sdk.Message{
			ID:    "msg_2",
			Type:  constant.Message("message"),
			Role:  constant.Assistant("assistant"),
			Model: sdk.ModelClaude3_7SonnetLatest,
			Content: []sdk.ContentBlockUnion{
				{Type: "tool_use", ID: "call-1", Name: "search", Input: json.RawMessage(`{"q":"go"}`)},
			},
			Usage: minimalUsage(),
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	cli := New(Config{APIKey: "k", Model: "m", BaseURL: srv.URL})
	resp, err := cli.Generate(t.Context(), []llmport.Message{{Role: llmport.RoleUser, Content: "search go"}}, []llmport.ToolDefinition{{Name: "search"}}, "")
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	require.Equal(t, "search", resp.Message.ToolCalls[0].Name)
}
