package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseHandle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "resp_1", (&Response{ID: "resp_1", ConversationID: "conv_1"}).Handle())
	assert.Equal(t, "conv_1", (&Response{ConversationID: "conv_1"}).Handle())
	assert.Empty(t, (&Response{}).Handle())
}

func TestResponseText(t *testing.T) {
	t.Parallel()

	r := &Response{Messages: []Message{
		{Role: RoleAssistant, Text: "Hello, "},
		{Role: RoleAssistant, Text: "planner."},
	}}
	assert.Equal(t, "Hello, planner.", r.Text())
}

func TestMessagePredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, Message{Role: RoleTool, ToolCallID: "call_1"}.IsToolResult())
	assert.False(t, Message{Role: RoleUser, Text: "hi"}.IsToolResult())

	assert.True(t, Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1"}}}.HasToolContent())
	assert.True(t, Message{Role: RoleTool, ToolCallID: "call_1"}.HasToolContent())
	assert.False(t, Message{Role: RoleAssistant, Text: "plain"}.HasToolContent())
}
