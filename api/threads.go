package api

import (
	"net/http"

	"github.com/cargodeck/cargodeck/internal/agent"
	"github.com/cargodeck/cargodeck/internal/log"
)

type threadHandler struct {
	agent  *agent.Agent
	logger log.Logger
}

// deleteThread handles DELETE /api/threads/{id}: it drops the stored
// conversation handle so the next turn for the thread starts fresh.
func (h *threadHandler) deleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	if threadID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "thread id is required", h.logger)
		return
	}

	existed := h.agent.ClearThread(threadID)

	writeJSON(w, http.StatusOK, map[string]any{
		"threadId": threadID,
		"deleted":  existed,
	}, h.logger)
}
