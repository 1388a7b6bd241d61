// Package dataset serves the logistics flight data. The JSON dataset is
// loaded into an in-memory SQLite database at startup so the REST layer,
// the agent tools, and the MCP server can all query it with SQL.
package dataset

// Flight is one scheduled cargo flight with capacity utilization.
type Flight struct {
	ID                 string  `json:"id"`
	FlightNumber       string  `json:"flightNumber"`
	FlightDate         string  `json:"flightDate"`
	From               string  `json:"from"`
	To                 string  `json:"to"`
	CurrentPounds      float64 `json:"currentPounds"`
	MaxPounds          float64 `json:"maxPounds"`
	CurrentCubicFeet   float64 `json:"currentCubicFeet"`
	MaxCubicFeet       float64 `json:"maxCubicFeet"`
	UtilizationPercent float64 `json:"utilizationPercent"`
	RiskLevel          string  `json:"riskLevel"`
	SortTime           string  `json:"sortTime"`
}

// HistoricalRecord is one day of payload history (or prediction) for a route.
type HistoricalRecord struct {
	Date      string `json:"date"`
	Route     string `json:"route"`
	Pounds    int    `json:"pounds"`
	CubicFeet int    `json:"cubicFeet"`
	Predicted bool   `json:"predicted"`
}

// FlightQuery selects, sorts, and paginates flights.
type FlightQuery struct {
	Limit     int
	Offset    int
	RiskLevel string
	// Utilization buckets: "over" (>95%), "near_capacity" (85-95%),
	// "optimal" (50-85%), "under" (<50%).
	Utilization string
	RouteFrom   string
	RouteTo     string
	DateFrom    string
	DateTo      string
	SortBy      string
	SortDesc    bool
}

// RouteCount pairs a route label with its flight count.
type RouteCount struct {
	Route string `json:"route"`
	Count int    `json:"count"`
}

// Summary aggregates the dataset for LLM context and the dashboard header.
type Summary struct {
	TotalFlights         int            `json:"totalFlights"`
	RiskBreakdown        map[string]int `json:"riskBreakdown"`
	AverageUtilization   float64        `json:"averageUtilization"`
	UniqueRoutes         int            `json:"uniqueRoutes"`
	TopRoutes            []RouteCount   `json:"topRoutes"`
	Airports             []string       `json:"airports"`
	FlightsAtRisk        int            `json:"flightsAtRisk"`
	UnderUtilizedFlights int            `json:"underUtilizedFlights"`
}

// Column describes one table column for schema introspection.
type Column struct {
	Name string `json:"column"`
	Type string `json:"type"`
}

// QueryResult is the shape returned for raw SQL queries.
type QueryResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}
