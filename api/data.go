package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cargodeck/cargodeck/internal/dataset"
	"github.com/cargodeck/cargodeck/internal/log"
)

const (
	defaultFlightLimit = 100
	maxFlightLimit     = 1000
)

type dataHandler struct {
	data   *dataset.Store
	logger log.Logger
}

// listFlights handles GET /logistics/data/flights.
func (h *dataHandler) listFlights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := dataset.FlightQuery{
		Limit:       intParam(q.Get("limit"), defaultFlightLimit),
		Offset:      intParam(q.Get("offset"), 0),
		RiskLevel:   q.Get("risk_level"),
		Utilization: q.Get("utilization"),
		RouteFrom:   q.Get("route_from"),
		RouteTo:     q.Get("route_to"),
		DateFrom:    q.Get("date_from"),
		DateTo:      q.Get("date_to"),
		SortBy:      q.Get("sort_by"),
		SortDesc:    strings.EqualFold(q.Get("sort_order"), "desc"),
	}
	if query.Limit <= 0 || query.Limit > maxFlightLimit {
		query.Limit = defaultFlightLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	flights, total, err := h.data.Flights(r.Context(), query)
	if err != nil {
		h.logger.Error("flight query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "failed to query flights", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"flights": flights,
		"total":   total,
		"limit":   query.Limit,
		"offset":  query.Offset,
	}, h.logger)
}

// getFlight handles GET /logistics/data/flights/{id}. The id can be the
// flight id or a flight number.
func (h *dataHandler) getFlight(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	flight, err := h.data.FlightByID(r.Context(), id)
	if err != nil {
		h.logger.Error("flight lookup failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "failed to look up flight", h.logger)
		return
	}
	if flight == nil {
		writeError(w, http.StatusNotFound, "not_found", "flight "+id+" not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, flight, h.logger)
}

// historical handles GET /logistics/data/historical.
func (h *dataHandler) historical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days := intParam(q.Get("days"), 0)
	route := q.Get("route")
	if route == "" {
		from, to := q.Get("route_from"), q.Get("route_to")
		if from != "" && to != "" {
			route = strings.ToUpper(from) + " → " + strings.ToUpper(to)
		}
	}
	includePredictions := !strings.EqualFold(q.Get("include_predictions"), "false")

	records, err := h.data.Historical(r.Context(), days, route, includePredictions)
	if err != nil {
		h.logger.Error("historical query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "failed to query historical data", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"historical": records,
		"total":      len(records),
	}, h.logger)
}

// summary handles GET /logistics/data/summary.
func (h *dataHandler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.data.Summary(r.Context())
	if err != nil {
		h.logger.Error("summary query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "failed to summarize dataset", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, summary, h.logger)
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
