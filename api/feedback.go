package api

import (
	"encoding/json"
	"net/http"

	"github.com/cargodeck/cargodeck/internal/log"
)

// feedbackInput is the body of POST /logistics/feedback.
type feedbackInput struct {
	ThreadID  string `json:"threadId"`
	RunID     string `json:"runId"`
	MessageID string `json:"messageId"`
	Rating    string `json:"rating"`
	Comment   string `json:"comment"`
}

type feedbackHandler struct {
	logger log.Logger
}

// submit records user feedback on an assistant response. Feedback lands in
// the structured logs where the trace pipeline picks it up.
func (h *feedbackHandler) submit(w http.ResponseWriter, r *http.Request) {
	var in feedbackInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed feedback", h.logger)
		return
	}
	if in.Rating != "positive" && in.Rating != "negative" {
		writeError(w, http.StatusBadRequest, "invalid_rating", "rating must be positive or negative", h.logger)
		return
	}

	h.logger.Info("feedback received",
		"threadId", in.ThreadID,
		"runId", in.RunID,
		"messageId", in.MessageID,
		"rating", in.Rating,
		"comment", in.Comment,
	)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "received"}, h.logger)
}
