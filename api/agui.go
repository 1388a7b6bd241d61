package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/cargodeck/cargodeck/internal/agent"
	"github.com/cargodeck/cargodeck/internal/agui"
	"github.com/cargodeck/cargodeck/internal/chat"
	"github.com/cargodeck/cargodeck/internal/log"
)

// runAgentInput is the AG-UI request body for POST /logistics.
type runAgentInput struct {
	ThreadID       string          `json:"threadId"`
	RunID          string          `json:"runId"`
	Messages       []wireMessage   `json:"messages"`
	Context        []contextItem   `json:"context"`
	State          json.RawMessage `json:"state"`
	ForwardedProps json.RawMessage `json:"forwardedProps"`
}

// contextItem is one useCopilotReadable entry; Value is a JSON document.
type contextItem struct {
	Description string `json:"description"`
	Value       string `json:"value"`
}

// wireMessage is the AG-UI message shape.
type wireMessage struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// runState is the portion of the frontend state the backend reads.
type runState struct {
	ThreadID     string             `json:"threadId"`
	ActiveFilter *agent.FilterState `json:"activeFilter"`
}

type aguiHandler struct {
	agent  *agent.Agent
	logger log.Logger
}

// run handles POST /logistics: one AG-UI run streamed back as SSE.
func (h *aguiHandler) run(w http.ResponseWriter, r *http.Request) {
	var input runAgentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed run input", h.logger)
		return
	}

	turn := resolveTurn(&input, h.logger)
	messages := convertMessages(input.Messages)

	sse, err := agui.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	ctx := r.Context()
	for ev, err := range h.agent.RunStream(ctx, turn, messages) {
		if err != nil {
			// The agent already emitted a RUN_ERROR frame for this.
			h.logger.Error("run failed", "threadId", turn.ThreadID, "runId", turn.RunID, "error", err)
			return
		}

		select {
		case <-ctx.Done():
			h.logger.Info("client disconnected", "threadId", turn.ThreadID, "runId", turn.RunID)
			return
		default:
		}

		if err := sse.WriteEvent(ev); err != nil {
			h.logger.Debug("failed to write SSE frame", "error", err)
			return
		}
	}
}

// resolveTurn extracts the thread id and the dashboard filter from the run
// input. The thread id priority chain is: context entries, the threadId
// field, forwardedProps, state, then a generated fallback.
func resolveTurn(input *runAgentInput, logger log.Logger) *agent.TurnContext {
	turn := &agent.TurnContext{RunID: input.RunID}

	var state runState
	if len(input.State) > 0 {
		if err := json.Unmarshal(input.State, &state); err != nil {
			logger.Warn("failed to parse run state", "error", err)
		}
	}
	if state.ActiveFilter != nil {
		turn.ActiveFilter = *state.ActiveFilter
	}

	for _, item := range input.Context {
		var value runState
		if err := json.Unmarshal([]byte(item.Value), &value); err != nil {
			continue
		}
		if value.ThreadID != "" {
			turn.ThreadID = value.ThreadID
		}
		if value.ActiveFilter != nil {
			turn.ActiveFilter = *value.ActiveFilter
		}
	}

	if turn.ThreadID == "" {
		turn.ThreadID = input.ThreadID
	}
	if turn.ThreadID == "" && len(input.ForwardedProps) > 0 {
		var forwarded runState
		if err := json.Unmarshal(input.ForwardedProps, &forwarded); err == nil {
			turn.ThreadID = forwarded.ThreadID
		}
	}
	if turn.ThreadID == "" {
		turn.ThreadID = state.ThreadID
	}
	if turn.ThreadID == "" {
		turn.ThreadID = uuid.NewString()
		logger.Warn("run input carried no thread id, generated one", "threadId", turn.ThreadID)
	}
	if turn.RunID == "" {
		turn.RunID = uuid.NewString()
	}

	return turn
}

// convertMessages maps AG-UI wire messages to the chat model.
func convertMessages(wire []wireMessage) []chat.Message {
	messages := make([]chat.Message, 0, len(wire))
	for _, m := range wire {
		msg := chat.Message{Role: chat.Role(m.Role), Text: m.Content}
		if m.Role == string(chat.RoleTool) {
			msg.ToolCallID = m.ToolCallID
			msg.ToolResult = m.Content
			msg.Text = ""
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		messages = append(messages, msg)
	}
	return messages
}
