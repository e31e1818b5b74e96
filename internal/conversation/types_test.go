package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageTextConcatenatesTextParts(t *testing.T) {
	msg := Message{
		Parts: []Part{
			{Kind: PartText, Text: "hello "},
			{Kind: PartToolCall, Name: "search"},
			{Kind: PartText, Text: "world"},
		},
	}
	assert.Equal(t, "hello world", msg.Text())
}

func TestConversationAllMessagesCombinesMainAndBranches(t *testing.T) {
	conv := Conversation{
		Messages: []Message{{ID: "m1"}, {ID: "m2"}},
		Branches: []Branch{
			{ID: "b1", Messages: []Message{{ID: "m3"}}},
			{ID: "b2", Messages: []Message{{ID: "m4"}, {ID: "m5"}}},
		},
	}
	all := conv.AllMessages()
	require := []string{"m1", "m2", "m3", "m4", "m5"}
	got := make([]string, len(all))
	for i, m := range all {
		got[i] = m.ID
	}
	assert.Equal(t, require, got)
}

func TestNewUserMessageAndNewAssistantMessage(t *testing.T) {
	u := NewUserMessage("u1", "hi there")
	assert.Equal(t, RoleUser, u.Role)
	assert.Equal(t, "hi there", u.Text())
	assert.WithinDuration(t, time.Now(), u.Timestamp, time.Second)

	a := NewAssistantMessage("a1", "hello")
	assert.Equal(t, RoleAssistant, a.Role)
	assert.Equal(t, "hello", a.Text())
}
