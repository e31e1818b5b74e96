// Package conversation organizes multi-turn agent conversations: messages,
// branches, checkpoints, and clusters, grounded on the Rust original's
// agent/message/types.rs and agent/conversation/types.rs (see
// original_source/crates/sagitta-code/src/agent/conversation/), expressed
// in manifold/internal/llm.Message's Part-oriented struct/constructor idiom.
package conversation

import "time"

// Role names a message's author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind classifies one Part of a Message.
type PartKind string

const (
	PartText       PartKind = "text"
	PartThought    PartKind = "thought"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
)

// Part is one ordered unit of a Message's content.
type Part struct {
	Kind       PartKind
	Text       string
	ToolCallID string
	Name       string
	Parameters map[string]any // ToolCall
	Result     map[string]any // ToolResult
}

// Message is one turn in a Conversation. Parts are ordered; a ToolResult
// part must reference a ToolCall part with the same ID appearing earlier
// in the same branch or an ancestor branch.
type Message struct {
	ID        string
	Role      Role
	Parts     []Part
	Metadata  map[string]string
	Timestamp time.Time
}

// Text concatenates every PartText in the message, in order.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// Status is a Conversation's lifecycle state.
type Status string

const (
	StatusActive      Status = "active"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusArchived    Status = "archived"
	StatusSummarizing Status = "summarizing"
)

// BranchStatus is a Branch's lifecycle state.
type BranchStatus string

const (
	BranchActive   BranchStatus = "active"
	BranchMerged   BranchStatus = "merged"
	BranchAbandoned BranchStatus = "abandoned"
)

// Branch is an alternate continuation of a Conversation forked at a
// message. ParentMessageID is empty for the implicit main
// branch.
type Branch struct {
	ID              string
	Title           string
	ParentMessageID string
	CreatedAt       time.Time
	Status          BranchStatus
	Messages        []Message
}

// Checkpoint marks a message worth returning to.
type Checkpoint struct {
	ID            string
	MessageID     string
	Title         string
	AutoGenerated bool
	Importance    float64 // [0,1]
	CreatedAt     time.Time
}

// Conversation is the Conversation Store's unit of persistence.
type Conversation struct {
	ID             string
	Title          string
	WorkspaceID    string
	CreatedAt      time.Time
	LastActive     time.Time
	Status         Status
	Messages       []Message // main branch
	Branches       []Branch
	Checkpoints    []Checkpoint
	Tags           []string
	ProjectContext string
}

// AllMessages returns every message across the main branch and all
// branches, for tagging/clustering/summarization passes that read the
// whole conversation regardless of branch structure.
func (c Conversation) AllMessages() []Message {
	out := append([]Message{}, c.Messages...)
	for _, b := range c.Branches {
		out = append(out, b.Messages...)
	}
	return out
}

// Cluster groups similar conversations.
type Cluster struct {
	ID                string
	Title             string
	ConversationIDs   []string
	Centroid          []float32
	Cohesion          float64 // [0,1]
	CommonTags        []string
	TimeRangeStart     time.Time
	TimeRangeEnd       time.Time
	DominantProjectType string
}

// TagCorpusEntry is one learned tag in the Tagger's corpus.
type TagCorpusEntry struct {
	Tag                  string
	Embedding            []float32
	UsageCount           int
	SuccessRate          float64 // [0,1], running mean
	LastUsed             time.Time
	ExampleConversationIDs []string
}

// NewUserMessage builds a single-Part text user message with a fresh
// timestamp.
func NewUserMessage(id, text string) Message {
	return Message{ID: id, Role: RoleUser, Parts: []Part{{Kind: PartText, Text: text}}, Timestamp: time.Now()}
}

// NewAssistantMessage builds a single-Part text assistant message.
func NewAssistantMessage(id, text string) Message {
	return Message{ID: id, Role: RoleAssistant, Parts: []Part{{Kind: PartText, Text: text}}, Timestamp: time.Now()}
}
