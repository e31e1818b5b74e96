// Package agent implements the Streaming Agent Loop with Tool-Call
// Reconciliation, grounded on manifold/internal/agent.Engine.
package agent

import "github.com/llamaha/sagitta-sub008/internal/llmport"

// BuildInitialMessages assembles the first turn's message list from a
// system prompt, prior history, and the new user input.
func BuildInitialMessages(system, user string, history []llmport.Message) []llmport.Message {
	msgs := make([]llmport.Message, 0, 2+len(history))
	if system != "" {
		msgs = append(msgs, llmport.Message{Role: llmport.RoleSystem, Content: system})
	}
	if len(history) > 0 {
		msgs = append(msgs, history...)
	}
	if user != "" {
		msgs = append(msgs, llmport.Message{Role: llmport.RoleUser, Content: user})
	}
	return msgs
}
