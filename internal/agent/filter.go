package agent

import "strings"

// FilterState mirrors the dashboard's activeFilter object. It arrives with
// each run via the AG-UI context payload and is passed explicitly to the
// tools that need it; the backend keeps no ambient filter state.
type FilterState struct {
	RouteFrom       string `json:"routeFrom,omitempty"`
	RouteTo         string `json:"routeTo,omitempty"`
	UtilizationType string `json:"utilizationType,omitempty"`
	RiskLevel       string `json:"riskLevel,omitempty"`
	DateFrom        string `json:"dateFrom,omitempty"`
	DateTo          string `json:"dateTo,omitempty"`
	Limit           int    `json:"limit,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f FilterState) IsZero() bool {
	return f.RouteFrom == "" && f.RouteTo == "" && f.UtilizationType == "" &&
		f.RiskLevel == "" && f.DateFrom == "" && f.DateTo == ""
}

// Describe renders the filter for tool responses and logging.
func (f FilterState) Describe() string {
	var parts []string
	if f.RouteFrom != "" {
		parts = append(parts, "from "+strings.ToUpper(f.RouteFrom))
	}
	if f.RouteTo != "" {
		parts = append(parts, "to "+strings.ToUpper(f.RouteTo))
	}
	if f.UtilizationType != "" {
		parts = append(parts, f.UtilizationType+" utilization")
	}
	if f.RiskLevel != "" {
		parts = append(parts, f.RiskLevel+" risk")
	}
	if f.DateFrom != "" {
		parts = append(parts, "after "+f.DateFrom)
	}
	if f.DateTo != "" {
		parts = append(parts, "before "+f.DateTo)
	}
	if len(parts) == 0 {
		return "all flights"
	}
	return strings.Join(parts, ", ")
}
