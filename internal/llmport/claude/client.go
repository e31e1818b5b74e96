package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
	"github.com/llamaha/sagitta-sub008/internal/sagerr"
)

const defaultMaxTokens int64 = 1024

// Config holds the adapter's connection settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// Client is the Claude-Code llmport.Provider, grounded on
// manifold/internal/llm/anthropic.Client.
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{sdk: anthropic.NewClient(opts...), model: model, maxTokens: maxTokens}
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

// Generate implements llmport.Provider.
func (c *Client) Generate(ctx context.Context, messages []llmport.Message, tools []llmport.ToolDefinition, model string) (llmport.Response, error) {
	sys, converted, err := adaptMessages(messages)
	if err != nil {
		return llmport.Response{}, err
	}
	toolDefs, err := adaptTools(tools)
	if err != nil {
		return llmport.Response{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(model)),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: c.maxTokens,
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return llmport.Response{}, fmt.Errorf("claude message create: %s: %w", err, sagerr.ErrLLMProvider)
	}

	out := llmport.Message{Role: llmport.RoleAssistant}
	var text strings.Builder
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(v.Input)
			out.ToolCalls = append(out.ToolCalls, llmport.ToolCall{ID: v.ID, Name: v.Name, Args: args})
		}
	}
	out.Content = text.String()

	return llmport.Response{
		Message: out,
		Usage: llmport.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// GenerateStream implements llmport.Provider. Anthropic streams each
// content block independently addressed by ev.Index: a ContentBlockStart
// opens a ThinkingBlock or ToolUseBlock, ContentBlockDelta events append to
// whichever block is open at that index (TextDelta/InputJSONDelta/
// ThinkingDelta), and tool-call arguments are buffered per index until the
// stream ends, since Anthropic's own Accumulate helper mishandles tool_use
// blocks with empty/partial Input JSON.
func (c *Client) GenerateStream(ctx context.Context, messages []llmport.Message, tools []llmport.ToolDefinition, model string, sink llmport.StreamSink) error {
	sys, converted, err := adaptMessages(messages)
	if err != nil {
		return err
	}
	toolDefs, err := adaptTools(tools)
	if err != nil {
		return err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(model)),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: c.maxTokens,
	}

	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	toolBuffers := map[int64]*toolBuffer{}
	thinkingBlocks := map[int64]*strings.Builder{}
	var usage anthropic.MessageDeltaUsage

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			switch block := ev.ContentBlock.AsAny().(type) {
			case anthropic.ThinkingBlock:
				b := &strings.Builder{}
				b.WriteString(block.Thinking)
				thinkingBlocks[ev.Index] = b
				if b.Len() > 0 {
					sink(llmport.StreamChunk{Kind: llmport.PartThought, Thought: b.String()})
				}
			case anthropic.ToolUseBlock:
				id := strings.TrimSpace(block.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", len(toolBuffers)+1)
				}
				tb := &toolBuffer{name: block.Name, id: id}
				tb.appendInitial(block.Input)
				toolBuffers[ev.Index] = tb
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					sink(llmport.StreamChunk{Kind: llmport.PartText, Text: delta.Text})
				}
			case anthropic.InputJSONDelta:
				if tb := toolBuffers[ev.Index]; tb != nil {
					tb.appendPartial(delta.PartialJSON)
				}
			case anthropic.ThinkingDelta:
				if delta.Thinking == "" {
					break
				}
				b := thinkingBlocks[ev.Index]
				if b == nil {
					b = &strings.Builder{}
					thinkingBlocks[ev.Index] = b
				}
				b.WriteString(delta.Thinking)
				sink(llmport.StreamChunk{Kind: llmport.PartThought, Thought: b.String()})
			}
		case anthropic.MessageDeltaEvent:
			usage = ev.Usage
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("claude message stream: %s: %w", err, sagerr.ErrLLMProvider)
	}

	indices := make([]int64, 0, len(toolBuffers))
	for i := range toolBuffers {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	for _, idx := range indices {
		if tb := toolBuffers[idx]; tb != nil {
			tc := tb.toToolCall()
			sink(llmport.StreamChunk{Kind: llmport.PartToolCall, ToolCall: &tc})
		}
	}

	tu := llmport.TokenUsage{
		PromptTokens:     int(usage.InputTokens),
		CompletionTokens: int(usage.OutputTokens),
		TotalTokens:      int(usage.InputTokens + usage.OutputTokens),
	}
	sink(llmport.StreamChunk{Kind: llmport.PartText, IsFinal: true, Usage: &tu})
	return nil
}
