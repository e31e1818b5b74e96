package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
	"github.com/llamaha/sagitta-sub008/internal/toolport"
)

// Engine runs the provider-neutral step loop: generate, reconcile tool
// calls, dispatch, repeat until a turn produces no tool calls or MaxSteps
// is exhausted.
type Engine struct {
	LLM      llmport.Provider
	Tools    *toolport.Registry
	MaxSteps int
	System   string
	Model    string

	// MaxToolParallelism bounds how many tool calls run concurrently within
	// one step. <= 0 means unbounded (len(toolCalls)).
	MaxToolParallelism int

	// OnAssistant is called with each assistant message the provider
	// returns, including ones carrying tool calls.
	OnAssistant func(llmport.Message)
	// OnDelta is called for streaming text deltas.
	OnDelta func(string)
	// OnToolStart is called once a tool call is reconciled, before dispatch.
	OnToolStart func(toolName string, args []byte, toolCallID string)
	// OnTool is called after a tool call's handler returns.
	OnTool func(toolName string, args, result []byte, toolCallID string)
	// OnTurnMessage is called for every message appended during the turn,
	// assistant and tool alike, in append order.
	OnTurnMessage func(llmport.Message)
	// OnThought is called for each reasoning/thinking chunk a provider
	// streams. Thoughts never mutate conversation history — they're
	// surfaced for display only.
	OnThought func(thought string)
	// OnUsage is called once per step with the provider's reported token
	// accounting for that step, when the adapter supplies it.
	OnUsage func(llmport.TokenUsage)

	toolCallSeq uint64
}

// Run executes the non-streaming loop for one user turn and returns the
// final assistant text.
func (e *Engine) Run(ctx context.Context, userInput string, history []llmport.Message) (string, error) {
	msgs := BuildInitialMessages(e.System, userInput, history)
	return e.runLoop(ctx, msgs)
}

// RunStream executes the streaming loop for one user turn and returns the
// final assistant text.
func (e *Engine) RunStream(ctx context.Context, userInput string, history []llmport.Message) (string, error) {
	msgs := BuildInitialMessages(e.System, userInput, history)
	return e.runStreamLoop(ctx, msgs)
}

func (e *Engine) model() string { return e.Model }

// runLoop is the non-streaming step loop.
func (e *Engine) runLoop(ctx context.Context, msgs []llmport.Message) (string, error) {
	var final string
	var finalSet bool

	for step := 0; step < e.maxSteps(); step++ {
		schemas := e.Tools.Schemas()
		resp, err := e.LLM.Generate(ctx, msgs, schemas, e.model())
		if err != nil {
			return "", fmt.Errorf("agent step %d: %w", step, err)
		}

		msg := resp.Message
		msg.Role = llmport.RoleAssistant
		msg.ToolCalls = e.ensureToolCallIDs(msgs, msg.ToolCalls)
		msgs = append(msgs, msg)
		e.emitAssistant(msg)
		if e.OnUsage != nil {
			e.OnUsage(resp.Usage)
		}

		if len(msg.ToolCalls) == 0 {
			final = msg.Content
			finalSet = true
			break
		}
		msgs = e.dispatchTools(ctx, msgs, msg.ToolCalls)
	}

	return e.finalText(final, finalSet), nil
}

// runStreamLoop is the streaming step loop: each step accumulates text and
// tool-call deltas from the sink until the provider signals IsFinal, then
// reconciles tool-call IDs exactly like the non-streaming path before
// dispatch, preserving one code path for the ordering invariant.
func (e *Engine) runStreamLoop(ctx context.Context, msgs []llmport.Message) (string, error) {
	var final string
	var finalSet bool

	for step := 0; step < e.maxSteps(); step++ {
		var content strings.Builder
		var toolCalls []llmport.ToolCall

		schemas := e.Tools.Schemas()
		err := e.LLM.GenerateStream(ctx, msgs, schemas, e.model(), func(chunk llmport.StreamChunk) {
			switch chunk.Kind {
			case llmport.PartText:
				if chunk.Text != "" {
					content.WriteString(chunk.Text)
					if e.OnDelta != nil {
						e.OnDelta(chunk.Text)
					}
				}
			case llmport.PartThought:
				if chunk.Thought != "" && e.OnThought != nil {
					e.OnThought(chunk.Thought)
				}
			case llmport.PartToolCall:
				if chunk.ToolCall != nil {
					toolCalls = append(toolCalls, *chunk.ToolCall)
				}
			}
			if chunk.Usage != nil && e.OnUsage != nil {
				e.OnUsage(*chunk.Usage)
			}
		})
		if err != nil {
			return "", fmt.Errorf("agent stream step %d: %w", step, err)
		}

		msg := llmport.Message{
			Role:      llmport.RoleAssistant,
			Content:   content.String(),
			ToolCalls: e.ensureToolCallIDs(msgs, toolCalls),
		}
		msgs = append(msgs, msg)
		e.emitAssistant(msg)

		if len(msg.ToolCalls) == 0 {
			final = msg.Content
			finalSet = true
			break
		}
		msgs = e.dispatchTools(ctx, msgs, msg.ToolCalls)
	}

	return e.finalText(final, finalSet), nil
}

func (e *Engine) maxSteps() int {
	if e.MaxSteps <= 0 {
		return 1
	}
	return e.MaxSteps
}

func (e *Engine) finalText(final string, finalSet bool) string {
	if !finalSet || final == "" {
		return "(no final text — increase max steps or check logs)"
	}
	return final
}

func (e *Engine) emitAssistant(msg llmport.Message) {
	if e.OnAssistant != nil {
		e.OnAssistant(msg)
	}
	if e.OnTurnMessage != nil {
		e.OnTurnMessage(msg)
	}
}

// ensureToolCallIDs assigns a synthetic, collision-free ID to every tool
// call missing one and de-duplicates against every ID already used in this
// conversation's assistant messages (the ordering invariant depends
// on every tool call having a stable, unique ID before dispatch).
func (e *Engine) ensureToolCallIDs(msgs []llmport.Message, toolCalls []llmport.ToolCall) []llmport.ToolCall {
	used := make(map[string]struct{}, len(toolCalls))
	for _, msg := range msgs {
		if msg.Role != llmport.RoleAssistant {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if id := strings.TrimSpace(tc.ID); id != "" {
				used[id] = struct{}{}
			}
		}
	}
	for i := range toolCalls {
		id := strings.TrimSpace(toolCalls[i].ID)
		if id == "" {
			id = e.nextToolCallID()
		}
		for {
			if _, ok := used[id]; !ok {
				break
			}
			id = e.nextToolCallID()
		}
		toolCalls[i].ID = id
		used[id] = struct{}{}
	}
	return toolCalls
}

func (e *Engine) nextToolCallID() string {
	seq := atomic.AddUint64(&e.toolCallSeq, 1)
	return fmt.Sprintf("engine-call-%d", seq)
}

// dispatchTools executes toolCalls, at most MaxToolParallelism concurrently,
// and appends their tool-role result messages to msgs in the SAME order the
// model emitted the calls — the ordering invariant: execution may race, but
// results[i] always corresponds to toolCalls[i] regardless of which
// goroutine finishes first.
func (e *Engine) dispatchTools(ctx context.Context, msgs []llmport.Message, toolCalls []llmport.ToolCall) []llmport.Message {
	if len(toolCalls) == 0 {
		return msgs
	}

	maxParallel := e.MaxToolParallelism
	if maxParallel <= 0 || maxParallel > len(toolCalls) {
		maxParallel = len(toolCalls)
	}

	results := make([]llmport.Message, len(toolCalls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i, tc := range toolCalls {
		i, tc := i, tc
		if e.OnToolStart != nil {
			e.OnToolStart(tc.Name, tc.Args, tc.ID)
		}
		g.Go(func() error {
			results[i] = e.executeToolCall(gctx, tc)
			return nil
		})
	}
	_ = g.Wait()

	if e.OnTurnMessage != nil {
		for _, toolMsg := range results {
			e.OnTurnMessage(toolMsg)
		}
	}
	return append(msgs, results...)
}

func (e *Engine) executeToolCall(ctx context.Context, tc llmport.ToolCall) llmport.Message {
	payload, err := e.Tools.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
		log.Error().Err(err).Str("tool", tc.Name).Str("tool_call_id", tc.ID).Msg("tool execution failed")
	}
	if e.OnTool != nil {
		e.OnTool(tc.Name, tc.Args, payload, tc.ID)
	}
	return llmport.Message{Role: llmport.RoleTool, Content: string(payload), ToolCallID: tc.ID, ToolName: tc.Name}
}
