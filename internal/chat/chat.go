// Package chat defines the message data model and the abstract chat
// completion capability the rest of cargodeck is written against.
//
// The concrete upstream (Azure OpenAI Responses API) lives in
// internal/provider; tests use the scripted client in internal/testutil.
package chat

import (
	"context"
	"iter"

	"github.com/cargodeck/cargodeck/internal/agui"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ToolCall is a tool invocation embedded in an assistant message.
type ToolCall struct {
	// ID is the provider-assigned call identifier, correlated by a later
	// tool result message.
	ID string `json:"id"`

	// Name is the tool being invoked.
	Name string `json:"name"`

	// Arguments is the JSON-encoded argument payload.
	Arguments string `json:"arguments"`
}

// Message is one role-tagged content unit of a conversation.
type Message struct {
	Role Role `json:"role"`

	// Text is the plain text content, if any.
	Text string `json:"text,omitempty"`

	// ToolCalls are tool invocations carried by an assistant message.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolCallID correlates a tool result message to its invocation.
	ToolCallID string `json:"toolCallId,omitempty"`

	// ToolResult is the result payload of a tool message.
	ToolResult string `json:"toolResult,omitempty"`
}

// IsToolResult reports whether the message carries a tool result.
func (m Message) IsToolResult() bool {
	return m.Role == RoleTool
}

// HasToolContent reports whether the message references a tool invocation,
// either as an assistant tool call or as call-correlated content.
func (m Message) HasToolContent() bool {
	return len(m.ToolCalls) > 0 || m.ToolCallID != ""
}

// ToolSpec describes a tool exposed to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Options carries per-call settings for the upstream capability.
type Options struct {
	// Model is the deployment/model name.
	Model string

	// ConversationID is the continuation handle from a previous turn.
	// Empty means a fresh conversation.
	ConversationID string

	// Instructions is the system prompt for the turn.
	Instructions string

	// Tools are the tool specs offered to the model.
	Tools []ToolSpec
}

// Response is a complete, non-streaming chat result.
type Response struct {
	// ID is the provider response identifier (primary handle field).
	ID string

	// ConversationID is the provider conversation identifier
	// (fallback handle field).
	ConversationID string

	// Messages are the assistant output messages of the turn.
	Messages []Message
}

// Handle returns the conversation handle of the response: the primary
// response id, else the fallback conversation id.
func (r *Response) Handle() string {
	if r.ID != "" {
		return r.ID
	}
	return r.ConversationID
}

// Text returns the concatenated text of the response messages.
func (r *Response) Text() string {
	var out string
	for _, m := range r.Messages {
		out += m.Text
	}
	return out
}

// Client is the upstream chat completion capability.
//
// Send performs a non-streaming call. Stream performs a streaming call and
// yields raw AG-UI events as translated by the provider adapter; the
// sequence is not normalized (that is the continuity layer's job).
type Client interface {
	Send(ctx context.Context, messages []Message, opts Options) (*Response, error)
	Stream(ctx context.Context, messages []Message, opts Options) iter.Seq2[agui.Event, error]
}
