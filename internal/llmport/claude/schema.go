// Package claude is the Claude-Code adapter for the LLM Client Port,
// grounded on manifold/internal/llm/anthropic's message/tool
// translation and thinking/tool-use block accumulation. Tool discovery and
// execution live outside the adapter, in the Tool Executor Port, which an
// MCP-backed registry implements; this package only translates chat turns
// to and from the Anthropic Messages API.
package claude

import (
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
)

func adaptTools(tools []llmport.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("claude provider: tool name required")
		}
		schema := anthropic.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		extras := map[string]any{}
		for k, v := range t.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			schema.Properties = props
			delete(extras, "properties")
		}
		if req, ok := extras["required"]; ok {
			delete(extras, "required")
			switch v := req.(type) {
			case []string:
				schema.Required = v
			case []any:
				for _, item := range v {
					if s, ok := item.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		delete(extras, "type")
		if len(extras) > 0 {
			schema.ExtraFields = extras
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{Name: name, Description: anthropic.String(t.Description), InputSchema: schema},
		})
	}
	return out, nil
}

func adaptMessages(msgs []llmport.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	toolResultCount := 0

	for _, m := range msgs {
		switch m.Role {
		case llmport.RoleSystem:
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case llmport.RoleUser:
			if strings.TrimSpace(m.Content) != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case llmport.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for i, tc := range m.ToolCalls {
				id := strings.TrimSpace(tc.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", i+1)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(id, decodeArgs(tc.Args), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case llmport.RoleTool:
			id := strings.TrimSpace(m.ToolCallID)
			if id == "" {
				toolResultCount++
				id = fmt.Sprintf("tool-result-%d", toolResultCount)
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)))
		default:
			return nil, nil, fmt.Errorf("unsupported role for claude provider: %s", m.Role)
		}
	}
	return system, out, nil
}

// decodeArgs unmarshals a tool call's accumulated argument bytes into the
// map Anthropic's tool_use.input requires, falling back to an empty object
// since Anthropic rejects non-dictionary input.
func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	return map[string]any{}
}

// toolBuffer accumulates one tool_use block's partial-JSON deltas. The
// initial content_block_start input is typically an empty placeholder
// object; once the first InputJSONDelta arrives it replaces rather than
// extends that placeholder, matching Anthropic's streaming contract.
type toolBuffer struct {
	name      string
	id        string
	buf       strings.Builder
	hasDeltas bool
}

func (tb *toolBuffer) appendInitial(raw json.RawMessage) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	tb.buf.WriteString(string(raw))
}

func (tb *toolBuffer) appendPartial(partial string) {
	if partial == "" {
		return
	}
	if !tb.hasDeltas {
		tb.buf.Reset()
		tb.hasDeltas = true
	}
	tb.buf.WriteString(partial)
}

func (tb *toolBuffer) toToolCall() llmport.ToolCall {
	args := tb.buf.String()
	if tb.hasDeltas && !strings.HasSuffix(strings.TrimSpace(args), "}") {
		args += "}"
	}
	trimmed := strings.TrimSpace(args)
	switch {
	case trimmed == "":
		trimmed = "{}"
	default:
		if !strings.HasPrefix(trimmed, "{") {
			trimmed = "{" + trimmed
		}
		if !strings.HasSuffix(trimmed, "}") {
			trimmed += "}"
		}
	}
	if !json.Valid([]byte(trimmed)) {
		trimmed = "{}"
	}
	return llmport.ToolCall{ID: tb.id, Name: tb.name, Args: json.RawMessage(trimmed)}
}
