// Package agui implements the AG-UI streaming protocol surface: the event
// model, the SSE wire encoding, and the stream normalizer that repairs
// upstream event sequences before they reach the frontend chat widget.
package agui

import "encoding/json"

// EventType discriminates AG-UI protocol events.
type EventType string

const (
	EventRunStarted         EventType = "RUN_STARTED"
	EventRunFinished        EventType = "RUN_FINISHED"
	EventRunError           EventType = "RUN_ERROR"
	EventTextMessageStart   EventType = "TEXT_MESSAGE_START"
	EventTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	EventTextMessageEnd     EventType = "TEXT_MESSAGE_END"
	EventToolCallStart      EventType = "TOOL_CALL_START"
	EventToolCallArgs       EventType = "TOOL_CALL_ARGS"
	EventToolCallEnd        EventType = "TOOL_CALL_END"
	EventToolCallResult     EventType = "TOOL_CALL_RESULT"
	EventMessagesSnapshot   EventType = "MESSAGES_SNAPSHOT"
	EventStateSnapshot      EventType = "STATE_SNAPSHOT"
	EventStateDelta         EventType = "STATE_DELTA"
	EventCustom             EventType = "CUSTOM"
)

// Event is one incremental unit of a streaming chat turn, in AG-UI wire
// shape. Unused fields are omitted from the JSON encoding; which fields are
// meaningful depends on Type.
type Event struct {
	Type EventType `json:"type"`

	// Run lifecycle fields.
	ThreadID string `json:"threadId,omitempty"`
	RunID    string `json:"runId,omitempty"`

	// Text message fields.
	MessageID string `json:"messageId,omitempty"`
	Role      string `json:"role,omitempty"`
	Delta     string `json:"delta,omitempty"`

	// Tool call fields.
	ToolCallID      string `json:"toolCallId,omitempty"`
	ToolCallName    string `json:"toolCallName,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`

	// Content is the tool result payload (TOOL_CALL_RESULT).
	Content string `json:"content,omitempty"`

	// Snapshot payloads (MESSAGES_SNAPSHOT, STATE_SNAPSHOT, STATE_DELTA).
	Messages json.RawMessage `json:"messages,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`

	// Error fields (RUN_ERROR).
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`

	// ResponseID is the provider conversation handle fragment observed on
	// this update. Internal to the backend, never sent on the wire.
	ResponseID string `json:"-"`
}

// IsTerminal reports whether the event ends the run. RUN_FINISHED is the
// normal terminal; RUN_ERROR aborts the run and is equally final.
func (e Event) IsTerminal() bool {
	return e.Type == EventRunFinished || e.Type == EventRunError
}

// TextStart returns a TEXT_MESSAGE_START event for the given message.
func TextStart(messageID string) Event {
	return Event{Type: EventTextMessageStart, MessageID: messageID, Role: "assistant"}
}

// TextContent returns a TEXT_MESSAGE_CONTENT event carrying a text delta.
func TextContent(messageID, delta string) Event {
	return Event{Type: EventTextMessageContent, MessageID: messageID, Delta: delta}
}

// TextEnd returns a TEXT_MESSAGE_END event for the given message.
func TextEnd(messageID string) Event {
	return Event{Type: EventTextMessageEnd, MessageID: messageID}
}

// ToolStart returns a TOOL_CALL_START event.
func ToolStart(callID, name string) Event {
	return Event{Type: EventToolCallStart, ToolCallID: callID, ToolCallName: name}
}

// ToolArgs returns a TOOL_CALL_ARGS event carrying an argument delta.
func ToolArgs(callID, delta string) Event {
	return Event{Type: EventToolCallArgs, ToolCallID: callID, Delta: delta}
}

// ToolEnd returns a TOOL_CALL_END event.
func ToolEnd(callID string) Event {
	return Event{Type: EventToolCallEnd, ToolCallID: callID}
}

// ToolResult returns a TOOL_CALL_RESULT event.
func ToolResult(messageID, callID, content string) Event {
	return Event{Type: EventToolCallResult, MessageID: messageID, ToolCallID: callID, Content: content, Role: "tool"}
}

// RunStarted returns a RUN_STARTED event.
func RunStarted(threadID, runID string) Event {
	return Event{Type: EventRunStarted, ThreadID: threadID, RunID: runID}
}

// RunFinished returns a RUN_FINISHED event.
func RunFinished(threadID, runID string) Event {
	return Event{Type: EventRunFinished, ThreadID: threadID, RunID: runID}
}

// RunError returns a RUN_ERROR event.
func RunError(code, message string) Event {
	return Event{Type: EventRunError, Code: code, Message: message}
}
