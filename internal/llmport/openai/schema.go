// Package openai is the OpenAI-compatible adapter for the LLM Client Port,
// grounded on manifold/internal/llm/openai's message/schema
// translation and SSE streaming accumulation.
package openai

import (
	sdk "github.com/openai/openai-go/v2"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
)

// adaptTools converts port ToolDefinitions to the SDK's function-tool params.
func adaptTools(tools []llmport.ToolDefinition) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			Parameters:  t.Parameters,
		}))
	}
	return out
}

// adaptMessages converts port Messages to SDK message params. System and
// user messages never carry empty content (the SDK template errors on it),
// matching AdaptMessages' defensive blank-content substitution.
func adaptMessages(msgs []llmport.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llmport.RoleSystem:
			out = append(out, sdk.SystemMessage(nonEmpty(m.Content, "You are a helpful assistant.")))
		case llmport.RoleUser:
			out = append(out, sdk.UserMessage(nonEmpty(m.Content, " ")))
		case llmport.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, sdk.AssistantMessage(nonEmpty(m.Content, " ")))
				continue
			}
			var asst sdk.ChatCompletionAssistantMessageParam
			asst.Content.OfString = sdk.String(nonEmpty(m.Content, " "))
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &sdk.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Args),
						},
					},
				})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case llmport.RoleTool:
			out = append(out, sdk.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// isEmptyArgsBytes reports whether raw is empty or an empty JSON object, so
// argument-less tool calls don't get flushed with a bogus non-empty body.
func isEmptyArgsBytes(raw []byte) bool {
	if len(raw) == 0 {
		return true
	}
	trimmed := string(raw)
	return trimmed == "" || trimmed == "{}" || trimmed == "null"
}
