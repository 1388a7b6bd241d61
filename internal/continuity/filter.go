package continuity

import "github.com/cargodeck/cargodeck/internal/chat"

// FilterMessages decides the minimal outbound message subset for a turn.
//
// Once a conversation handle exists the provider retains the full history
// server-side; resending it causes duplicate call-id errors upstream.
//
// Continuing turns send only the newest input: the trailing tool result if
// the provider is paused on one, else the last user message. Fresh turns
// may still carry stale history from a prior UI session, so every tool
// message and every assistant message referencing a tool call is removed —
// the provider has no record of those call ids.
func FilterMessages(messages []chat.Message, continuing bool) []chat.Message {
	if len(messages) == 0 {
		return messages
	}

	if continuing {
		if last := messages[len(messages)-1]; last.IsToolResult() {
			return []chat.Message{last}
		}
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == chat.RoleUser {
				return []chat.Message{messages[i]}
			}
		}
		// No user message to anchor on; send as-is.
		return messages
	}

	filtered := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.Role == chat.RoleTool:
			continue
		case m.Role == chat.RoleAssistant && m.HasToolContent():
			continue
		default:
			filtered = append(filtered, m)
		}
	}
	return filtered
}
