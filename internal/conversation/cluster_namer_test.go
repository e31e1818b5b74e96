package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
)

func TestGenerateNameUsesCommonTagsWhenPresent(t *testing.T) {
	namer := NewClusterNamer(nil)
	cluster := Cluster{ConversationIDs: []string{"1", "2"}, CommonTags: []string{"rust", "debugging"}}
	conversations := []Conversation{{ID: "1", Title: "fix build"}, {ID: "2", Title: "fix panic"}}
	name := namer.GenerateName(context.Background(), cluster, conversations)
	assert.Contains(t, name, "debugging")
}

func TestGenerateNameFallsBackToCommonWords(t *testing.T) {
	namer := NewClusterNamer(nil)
	cluster := Cluster{ConversationIDs: []string{"1", "2"}}
	conversations := []Conversation{
		{ID: "1", Title: "rust cargo workspace layout"},
		{ID: "2", Title: "rust cargo workspace dependencies"},
	}
	name := namer.GenerateName(context.Background(), cluster, conversations)
	assert.Contains(t, name, "rust")
	assert.Contains(t, name, "cargo")
	assert.Contains(t, name, "Discussions")
}

func TestGenerateNameUsesProjectType(t *testing.T) {
	namer := NewClusterNamer(nil)
	cluster := Cluster{ConversationIDs: []string{"1", "2"}}
	conversations := []Conversation{
		{ID: "1", Title: "alpha", ProjectContext: "rust"},
		{ID: "2", Title: "beta", ProjectContext: "rust"},
	}
	name := namer.GenerateName(context.Background(), cluster, conversations)
	assert.Equal(t, "Rust Development", name)
}

func TestGenerateNameUsesThematicDetection(t *testing.T) {
	namer := NewClusterNamer(nil)
	cluster := Cluster{ConversationIDs: []string{"1", "2"}}
	conversations := []Conversation{
		{ID: "1", Title: "api endpoint design"},
		{ID: "2", Title: "unrelated note"},
	}
	name := namer.GenerateName(context.Background(), cluster, conversations)
	assert.Equal(t, "API Development", name)
}

func TestGenerateNameFallsBackToPrefixWhenNoSignal(t *testing.T) {
	namer := NewClusterNamer(nil)
	cluster := Cluster{ConversationIDs: []string{"1", "2"}}
	conversations := []Conversation{
		{ID: "1", Title: "alpha"},
		{ID: "2", Title: "beta"},
	}
	name := namer.GenerateName(context.Background(), cluster, conversations)
	assert.Contains(t, name, "Cluster")
}

type scriptedNamerProvider struct {
	text string
	err  error
}

func (p scriptedNamerProvider) Generate(ctx context.Context, messages []llmport.Message, tools []llmport.ToolDefinition, model string) (llmport.Response, error) {
	if p.err != nil {
		return llmport.Response{}, p.err
	}
	return llmport.Response{Message: llmport.Message{Content: p.text}}, nil
}

func (p scriptedNamerProvider) GenerateStream(ctx context.Context, messages []llmport.Message, tools []llmport.ToolDefinition, model string, sink llmport.StreamSink) error {
	return nil
}

func TestGenerateNamePrefersLLMWhenConfigured(t *testing.T) {
	namer := NewClusterNamer(scriptedNamerProvider{text: `"Rust Build Troubleshooting"`})
	cluster := Cluster{ConversationIDs: []string{"1"}}
	conversations := []Conversation{{ID: "1", Title: "rust build broken"}}
	name := namer.GenerateName(context.Background(), cluster, conversations)
	assert.Equal(t, "Rust Build Troubleshooting", name)
}

func TestGenerateNameFallsBackWhenLLMErrors(t *testing.T) {
	namer := NewClusterNamer(scriptedNamerProvider{err: assertErr{}})
	cluster := Cluster{ConversationIDs: []string{"1", "2"}, CommonTags: []string{"help"}}
	conversations := []Conversation{{ID: "1", Title: "a"}, {ID: "2", Title: "b"}}
	name := namer.GenerateName(context.Background(), cluster, conversations)
	assert.Contains(t, name, "help")
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
