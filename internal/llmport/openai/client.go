package openai

import (
	"context"
	"fmt"
	"sort"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog/log"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
	"github.com/llamaha/sagitta-sub008/internal/sagerr"
)

// Config holds the adapter's connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client is the OpenAI-compatible llmport.Provider, grounded on
// manifold/internal/llm/openai.Client.
type Client struct {
	sdk   sdk.Client
	model string
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: cfg.Model}
}

func (c *Client) effectiveModel(model string) string {
	if model != "" {
		return model
	}
	return c.model
}

// Generate implements llmport.Provider.
func (c *Client) Generate(ctx context.Context, messages []llmport.Message, tools []llmport.ToolDefinition, model string) (llmport.Response, error) {
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(c.effectiveModel(model))}
	params.Messages = adaptMessages(messages)
	if len(tools) > 0 {
		params.Tools = adaptTools(tools)
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return llmport.Response{}, fmt.Errorf("openai chat completion: %s: %w", err, sagerr.ErrLLMProvider)
	}
	if len(comp.Choices) == 0 {
		return llmport.Response{}, fmt.Errorf("openai chat completion returned no choices: %w", sagerr.ErrLLMProvider)
	}

	choice := comp.Choices[0]
	out := llmport.Message{Role: llmport.RoleAssistant, Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		switch v := tc.AsAny().(type) {
		case sdk.ChatCompletionMessageFunctionToolCall:
			out.ToolCalls = append(out.ToolCalls, llmport.ToolCall{
				ID:   v.ID,
				Name: v.Function.Name,
				Args: []byte(v.Function.Arguments),
			})
		}
	}
	return llmport.Response{
		Message: out,
		Usage: llmport.TokenUsage{
			PromptTokens:     int(comp.Usage.PromptTokens),
			CompletionTokens: int(comp.Usage.CompletionTokens),
			TotalTokens:      int(comp.Usage.TotalTokens),
		},
	}, nil
}

// GenerateStream implements llmport.Provider. Tool calls arrive as partial
// deltas addressed by tc.Index (not by range position: chunks may arrive out
// of order or contain only a subset of a turn's tool calls), accumulated per
// index until the choice's finish_reason is emitted, at which point every
// completed tool call with a non-empty Name and non-empty Args is flushed as
// one PartToolCall chunk before the final chunk.
func (c *Client) GenerateStream(ctx context.Context, messages []llmport.Message, tools []llmport.ToolDefinition, model string, sink llmport.StreamSink) error {
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(c.effectiveModel(model))}
	params.Messages = adaptMessages(messages)
	if len(tools) > 0 {
		params.Tools = adaptTools(tools)
	}
	params.StreamOptions.IncludeUsage = sdk.Bool(true)

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	toolCalls := make(map[int64]*llmport.ToolCall)
	toolCallsFlushed := false
	var usage llmport.TokenUsage

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = llmport.TokenUsage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			sink(llmport.StreamChunk{Kind: llmport.PartText, Text: delta.Content})
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			if toolCalls[idx] == nil {
				toolCalls[idx] = &llmport.ToolCall{ID: tc.ID}
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Args = append(toolCalls[idx].Args, []byte(tc.Function.Arguments)...)
			}
		}

		if chunk.Choices[0].FinishReason != "" && !toolCallsFlushed {
			indices := make([]int64, 0, len(toolCalls))
			for idx := range toolCalls {
				indices = append(indices, idx)
			}
			sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
			for _, idx := range indices {
				tc := toolCalls[idx]
				if tc == nil || tc.Name == "" {
					continue
				}
				if isEmptyArgsBytes(tc.Args) {
					log.Warn().Str("tool", tc.Name).Str("id", tc.ID).Msg("skipping tool call with empty arguments in stream")
					continue
				}
				sink(llmport.StreamChunk{Kind: llmport.PartToolCall, ToolCall: tc})
			}
			toolCallsFlushed = true
			sink(llmport.StreamChunk{Kind: llmport.PartText, IsFinal: true, FinishReason: string(chunk.Choices[0].FinishReason), Usage: &usage})
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai chat stream: %s: %w", err, sagerr.ErrLLMProvider)
	}
	return nil
}
