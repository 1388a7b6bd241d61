package api

import (
	"net/http"

	"github.com/cargodeck/cargodeck/internal/dataset"
	"github.com/cargodeck/cargodeck/internal/log"
)

// health is a liveness probe endpoint.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness reports whether the dataset is queryable.
func readiness(data *dataset.Store, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := data.Tables(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", "dataset unavailable", logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
	}
}
