package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cargodeck/cargodeck/internal/chat"
	"github.com/cargodeck/cargodeck/internal/dataset"
)

// Tool is one capability offered to the model. Frontend tools are rendered
// and resolved by the dashboard; only backend tools have a Run function.
type Tool struct {
	Spec     chat.ToolSpec
	Frontend bool
	Run      func(ctx context.Context, turn *TurnContext, args json.RawMessage) (string, error)
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// buildTools assembles the logistics tool registry over the dataset.
func buildTools(data *dataset.Store) map[string]Tool {
	tools := map[string]Tool{
		// Dashboard tools, resolved client-side. The frontend reacts to the
		// tool call render and fetches data over the REST endpoints; no
		// result ever returns through the backend.
		"filter_flights": {
			Frontend: true,
			Spec: chat.ToolSpec{
				Name: "filter_flights",
				Description: "Filter flights in the dashboard. Filters are ALWAYS additive - " +
					"new filters combine with existing ones. Use reset_filters to clear all filters first.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"route_from": stringProp("Origin airport code (e.g., LAX)"),
						"route_to":   stringProp("Destination airport code (e.g., ORD)"),
						"utilization": stringProp("Utilization filter: 'over' (>95% capacity), " +
							"'near_capacity' (85-95%), 'optimal' (50-85%), 'under' (<50%)"),
						"risk_level": stringProp("Risk level filter: critical, high, medium, low"),
						"date_from":  stringProp("Start date (YYYY-MM-DD)"),
						"date_to":    stringProp("End date (YYYY-MM-DD)"),
					},
				},
			},
		},
		"reset_filters": {
			Frontend: true,
			Spec: chat.ToolSpec{
				Name: "reset_filters",
				Description: "UI ACTION: Remove all active filters from the dashboard. Use ONLY when the " +
					"user explicitly wants to CLEAR or RESET filters, NOT for questions about flights.",
				Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
			},
		},
		"display_flight_list": {
			Frontend: true,
			Spec: chat.ToolSpec{
				Name:        "display_flight_list",
				Description: "Render a flight list card in the chat.",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
		},
		"display_flight_detail": {
			Frontend: true,
			Spec: chat.ToolSpec{
				Name:        "display_flight_detail",
				Description: "Render a flight detail card in the chat for one flight.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"flight_id": stringProp("Flight id or flight number")},
				},
			},
		},
		"display_historical_chart": {
			Frontend: true,
			Spec: chat.ToolSpec{
				Name:        "display_historical_chart",
				Description: "Render the historical payload chart in the chat.",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
		},
	}

	tools["analyze_flights"] = Tool{
		Spec: chat.ToolSpec{
			Name: "analyze_flights",
			Description: "Answer questions about the flights currently displayed on the dashboard. " +
				"Analyzes the data WITHOUT changing the dashboard display. Optional analyze_* parameters " +
				"scope the analysis to a subset; otherwise the dashboard's active filter applies.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question":            stringProp("The user's question about the displayed flights"),
					"analyze_utilization": stringProp("Optional utilization subset: over, near_capacity, optimal, under"),
					"analyze_route_from":  stringProp("Optional origin airport code"),
					"analyze_route_to":    stringProp("Optional destination airport code"),
					"analyze_risk":        stringProp("Optional risk level: critical, high, medium, low"),
				},
			},
		},
		Run: func(ctx context.Context, turn *TurnContext, args json.RawMessage) (string, error) {
			return analyzeFlights(ctx, data, turn.ActiveFilter, args)
		},
	}

	tools["get_flight_details"] = Tool{
		Spec: chat.ToolSpec{
			Name:        "get_flight_details",
			Description: "Look up one flight by id or flight number and return its full record.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"flight_id": stringProp("Flight id or flight number")},
				"required":   []string{"flight_id"},
			},
		},
		Run: func(ctx context.Context, _ *TurnContext, args json.RawMessage) (string, error) {
			var in struct {
				FlightID string `json:"flight_id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			flight, err := data.FlightByID(ctx, in.FlightID)
			if err != nil {
				return "", err
			}
			if flight == nil {
				return marshalResult(map[string]any{"flight": nil, "error": "Flight " + in.FlightID + " not found"})
			}
			return marshalResult(map[string]any{"flight": flight})
		},
	}

	tools["get_historical_payload"] = Tool{
		Spec: chat.ToolSpec{
			Name:        "get_historical_payload",
			Description: "Return historical daily payload data for charts, optionally for one route.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"route_from": stringProp("Origin airport code"),
					"route_to":   stringProp("Destination airport code"),
					"days":       map[string]any{"type": "integer", "description": "Number of days of history (default 7)"},
				},
			},
		},
		Run: func(ctx context.Context, _ *TurnContext, args json.RawMessage) (string, error) {
			var in struct {
				RouteFrom string `json:"route_from"`
				RouteTo   string `json:"route_to"`
				Days      int    `json:"days"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			records, err := data.Historical(ctx, in.Days, routeLabel(in.RouteFrom, in.RouteTo), false)
			if err != nil {
				return "", err
			}
			return marshalResult(map[string]any{"historical": records, "total": len(records)})
		},
	}

	tools["get_predicted_payload"] = Tool{
		Spec: chat.ToolSpec{
			Name:        "get_predicted_payload",
			Description: "Return predicted payload data for upcoming flights, optionally for one route.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"route_from": stringProp("Origin airport code"),
					"route_to":   stringProp("Destination airport code"),
				},
			},
		},
		Run: func(ctx context.Context, _ *TurnContext, args json.RawMessage) (string, error) {
			var in struct {
				RouteFrom string `json:"route_from"`
				RouteTo   string `json:"route_to"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			records, err := data.Predictions(ctx, routeLabel(in.RouteFrom, in.RouteTo))
			if err != nil {
				return "", err
			}
			return marshalResult(map[string]any{"predictions": records, "total": len(records)})
		},
	}

	return tools
}

// routeLabel builds the dataset's route key; both codes are required.
func routeLabel(from, to string) string {
	if from == "" || to == "" {
		return ""
	}
	return strings.ToUpper(from) + " → " + strings.ToUpper(to)
}

func marshalResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return string(b), nil
}

// analyzeFlights scopes the dataset by the dashboard filter, overridden by
// any analyze_* parameters, and returns aggregate statistics.
func analyzeFlights(ctx context.Context, data *dataset.Store, active FilterState, args json.RawMessage) (string, error) {
	var in struct {
		Question           string `json:"question"`
		AnalyzeUtilization string `json:"analyze_utilization"`
		AnalyzeRouteFrom   string `json:"analyze_route_from"`
		AnalyzeRouteTo     string `json:"analyze_route_to"`
		AnalyzeRisk        string `json:"analyze_risk"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("parsing arguments: %w", err)
	}

	effective := active
	if in.AnalyzeUtilization != "" {
		effective.UtilizationType = in.AnalyzeUtilization
	}
	if in.AnalyzeRouteFrom != "" {
		effective.RouteFrom = in.AnalyzeRouteFrom
	}
	if in.AnalyzeRouteTo != "" {
		effective.RouteTo = in.AnalyzeRouteTo
	}
	if in.AnalyzeRisk != "" {
		effective.RiskLevel = in.AnalyzeRisk
	}

	flights, total, err := data.Flights(ctx, dataset.FlightQuery{
		Limit:       1000,
		RiskLevel:   effective.RiskLevel,
		Utilization: effective.UtilizationType,
		RouteFrom:   effective.RouteFrom,
		RouteTo:     effective.RouteTo,
		DateFrom:    effective.DateFrom,
		DateTo:      effective.DateTo,
		SortBy:      "utilizationPercent",
		SortDesc:    true,
	})
	if err != nil {
		return "", err
	}

	riskBreakdown := map[string]int{}
	var totalUtil float64
	for _, f := range flights {
		riskBreakdown[f.RiskLevel]++
		totalUtil += f.UtilizationPercent
	}
	avgUtil := 0.0
	if len(flights) > 0 {
		avgUtil = totalUtil / float64(len(flights))
	}

	top := flights
	if len(top) > 10 {
		top = top[:10]
	}

	return marshalResult(map[string]any{
		"question":           in.Question,
		"appliedFilter":      effective.Describe(),
		"matchCount":         total,
		"averageUtilization": avgUtil,
		"riskBreakdown":      riskBreakdown,
		"topFlights":         top,
	})
}
