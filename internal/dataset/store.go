package dataset

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cargodeck/cargodeck/internal/log"
)

//go:embed sample/flights.json
var sampleData []byte

const schema = `
CREATE TABLE flights (
	id TEXT PRIMARY KEY,
	flightNumber TEXT NOT NULL,
	flightDate TEXT NOT NULL,
	origin TEXT NOT NULL,
	destination TEXT NOT NULL,
	currentPounds REAL NOT NULL,
	maxPounds REAL NOT NULL,
	currentCubicFeet REAL NOT NULL,
	maxCubicFeet REAL NOT NULL,
	utilizationPercent REAL NOT NULL,
	riskLevel TEXT NOT NULL,
	sortTime TEXT NOT NULL
);
CREATE TABLE historical_data (
	date TEXT NOT NULL,
	route TEXT NOT NULL,
	pounds INTEGER NOT NULL,
	cubicFeet INTEGER NOT NULL,
	predicted BOOLEAN NOT NULL
);
`

// datasetFile is the on-disk JSON shape: a flights array plus an optional
// historicalData array, matching the dashboard's seed file.
type datasetFile struct {
	Flights        []Flight           `json:"flights"`
	HistoricalData []HistoricalRecord `json:"historicalData"`
}

// Store is the in-memory analytics database over the flight dataset.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// Open loads the dataset at path into a fresh in-memory SQLite database.
// An empty path loads the embedded sample dataset.
func Open(path string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	raw := sampleData
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading dataset: %w", err)
		}
		raw = b
	}

	var data datasetFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing dataset: %w", err)
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// The in-memory database lives and dies with this single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.load(data); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("dataset loaded",
		"flights", len(data.Flights),
		"historical", len(data.HistoricalData),
		"source", sourceName(path))
	return s, nil
}

func sourceName(path string) string {
	if path == "" {
		return "embedded sample"
	}
	return path
}

func (s *Store) load(data datasetFile) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	flightStmt, err := tx.Prepare(`INSERT INTO flights VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("preparing flight insert: %w", err)
	}
	defer flightStmt.Close()

	for _, f := range data.Flights {
		if _, err := flightStmt.Exec(
			f.ID, f.FlightNumber, f.FlightDate, f.From, f.To,
			f.CurrentPounds, f.MaxPounds, f.CurrentCubicFeet, f.MaxCubicFeet,
			f.UtilizationPercent, f.RiskLevel, f.SortTime,
		); err != nil {
			return fmt.Errorf("inserting flight %s: %w", f.ID, err)
		}
	}

	histStmt, err := tx.Prepare(`INSERT INTO historical_data VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("preparing historical insert: %w", err)
	}
	defer histStmt.Close()

	for _, h := range data.HistoricalData {
		if _, err := histStmt.Exec(h.Date, h.Route, h.Pounds, h.CubicFeet, h.Predicted); err != nil {
			return fmt.Errorf("inserting historical record: %w", err)
		}
	}

	return tx.Commit()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// sortColumns whitelists user-selectable sort fields.
var sortColumns = map[string]string{
	"utilizationPercent": "utilizationPercent",
	"flightDate":         "flightDate",
	"flightNumber":       "flightNumber",
	"riskLevel":          "riskLevel",
	"currentPounds":      "currentPounds",
	"maxPounds":          "maxPounds",
}

// Flights returns the flights matching q plus the total match count before
// pagination.
func (s *Store) Flights(ctx context.Context, q FlightQuery) ([]Flight, int, error) {
	var conds []string
	var args []any

	if q.RiskLevel != "" {
		conds = append(conds, "riskLevel = ?")
		args = append(args, strings.ToLower(q.RiskLevel))
	}
	switch q.Utilization {
	case "":
	case "over":
		conds = append(conds, "utilizationPercent > 95")
	case "near_capacity":
		conds = append(conds, "utilizationPercent >= 85 AND utilizationPercent <= 95")
	case "optimal":
		conds = append(conds, "utilizationPercent >= 50 AND utilizationPercent < 85")
	case "under":
		conds = append(conds, "utilizationPercent < 50")
	default:
		return nil, 0, fmt.Errorf("unknown utilization bucket %q", q.Utilization)
	}
	if q.RouteFrom != "" {
		conds = append(conds, "UPPER(origin) = ?")
		args = append(args, strings.ToUpper(q.RouteFrom))
	}
	if q.RouteTo != "" {
		conds = append(conds, "UPPER(destination) = ?")
		args = append(args, strings.ToUpper(q.RouteTo))
	}
	if q.DateFrom != "" {
		conds = append(conds, "flightDate >= ?")
		args = append(args, q.DateFrom)
	}
	if q.DateTo != "" {
		conds = append(conds, "flightDate <= ?")
		args = append(args, q.DateTo)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flights"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting flights: %w", err)
	}

	orderCol, ok := sortColumns[q.SortBy]
	if !ok {
		orderCol = "utilizationPercent"
	}
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		`SELECT id, flightNumber, flightDate, origin, destination,
			currentPounds, maxPounds, currentCubicFeet, maxCubicFeet,
			utilizationPercent, riskLevel, sortTime
		 FROM flights%s ORDER BY %s %s LIMIT ? OFFSET ?`,
		where, orderCol, dir)
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying flights: %w", err)
	}
	defer rows.Close()

	var flights []Flight
	for rows.Next() {
		var f Flight
		if err := rows.Scan(
			&f.ID, &f.FlightNumber, &f.FlightDate, &f.From, &f.To,
			&f.CurrentPounds, &f.MaxPounds, &f.CurrentCubicFeet, &f.MaxCubicFeet,
			&f.UtilizationPercent, &f.RiskLevel, &f.SortTime,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning flight: %w", err)
		}
		flights = append(flights, f)
	}
	return flights, total, rows.Err()
}

// FlightByID finds a flight by id or by flight number (case and separator
// insensitive, e.g. "ua-1234" matches "UA1234").
func (s *Store) FlightByID(ctx context.Context, id string) (*Flight, error) {
	normalized := strings.ToUpper(strings.NewReplacer(" ", "", "-", "").Replace(id))
	row := s.db.QueryRowContext(ctx,
		`SELECT id, flightNumber, flightDate, origin, destination,
			currentPounds, maxPounds, currentCubicFeet, maxCubicFeet,
			utilizationPercent, riskLevel, sortTime
		 FROM flights
		 WHERE id = ? OR REPLACE(REPLACE(UPPER(flightNumber), '-', ''), ' ', '') = ?`,
		id, normalized)

	var f Flight
	err := row.Scan(
		&f.ID, &f.FlightNumber, &f.FlightDate, &f.From, &f.To,
		&f.CurrentPounds, &f.MaxPounds, &f.CurrentCubicFeet, &f.MaxCubicFeet,
		&f.UtilizationPercent, &f.RiskLevel, &f.SortTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying flight %s: %w", id, err)
	}
	return &f, nil
}

// Summary computes dataset-wide statistics.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	flights, _, err := s.Flights(ctx, FlightQuery{Limit: 1 << 20})
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		TotalFlights:  len(flights),
		RiskBreakdown: map[string]int{"low": 0, "medium": 0, "high": 0, "critical": 0},
	}

	routeCounts := make(map[string]int)
	airports := make(map[string]bool)
	var totalUtil float64

	for _, f := range flights {
		if _, ok := sum.RiskBreakdown[f.RiskLevel]; ok {
			sum.RiskBreakdown[f.RiskLevel]++
		}
		route := f.From + " → " + f.To
		routeCounts[route]++
		airports[f.From] = true
		airports[f.To] = true
		totalUtil += f.UtilizationPercent
	}

	if len(flights) > 0 {
		sum.AverageUtilization = float64(int(totalUtil/float64(len(flights))*10+0.5)) / 10
	}
	sum.UniqueRoutes = len(routeCounts)
	sum.FlightsAtRisk = sum.RiskBreakdown["high"] + sum.RiskBreakdown["critical"]
	sum.UnderUtilizedFlights = sum.RiskBreakdown["low"]

	for route, count := range routeCounts {
		sum.TopRoutes = append(sum.TopRoutes, RouteCount{Route: route, Count: count})
	}
	sort.Slice(sum.TopRoutes, func(i, j int) bool {
		if sum.TopRoutes[i].Count != sum.TopRoutes[j].Count {
			return sum.TopRoutes[i].Count > sum.TopRoutes[j].Count
		}
		return sum.TopRoutes[i].Route < sum.TopRoutes[j].Route
	})
	if len(sum.TopRoutes) > 10 {
		sum.TopRoutes = sum.TopRoutes[:10]
	}

	for a := range airports {
		if a != "" {
			sum.Airports = append(sum.Airports, a)
		}
	}
	sort.Strings(sum.Airports)

	return sum, nil
}

// Historical returns payload history, optionally filtered by route label
// (e.g. "LAX → ORD"), with predictions appended when requested. Historical
// rows are sorted ascending by date; days bounds the historical portion.
func (s *Store) Historical(ctx context.Context, days int, route string, includePredictions bool) ([]HistoricalRecord, error) {
	var conds []string
	var args []any

	conds = append(conds, "predicted = ?")
	args = append(args, false)
	if route != "" {
		conds = append(conds, "route = ?")
		args = append(args, route)
	}

	if days <= 0 {
		days = 7
	}
	query := "SELECT date, route, pounds, cubicFeet, predicted FROM historical_data WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY date DESC LIMIT ?"
	args = append(args, days*maxRoutesPerDay)

	historical, err := s.queryHistorical(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sort.Slice(historical, func(i, j int) bool { return historical[i].Date < historical[j].Date })

	if !includePredictions {
		return historical, nil
	}

	predQuery := "SELECT date, route, pounds, cubicFeet, predicted FROM historical_data WHERE predicted = ?"
	predArgs := []any{true}
	if route != "" {
		predQuery += " AND route = ?"
		predArgs = append(predArgs, route)
	}
	predQuery += " ORDER BY date ASC"

	predictions, err := s.queryHistorical(ctx, predQuery, predArgs...)
	if err != nil {
		return nil, err
	}
	return append(historical, predictions...), nil
}

// maxRoutesPerDay caps how many route series share one calendar day when
// bounding the historical window.
const maxRoutesPerDay = 16

// Predictions returns only the predicted payload records, optionally
// filtered by route label, sorted ascending by date.
func (s *Store) Predictions(ctx context.Context, route string) ([]HistoricalRecord, error) {
	query := "SELECT date, route, pounds, cubicFeet, predicted FROM historical_data WHERE predicted = ?"
	args := []any{true}
	if route != "" {
		query += " AND route = ?"
		args = append(args, route)
	}
	query += " ORDER BY date ASC"
	return s.queryHistorical(ctx, query, args...)
}

func (s *Store) queryHistorical(ctx context.Context, query string, args ...any) ([]HistoricalRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying historical data: %w", err)
	}
	defer rows.Close()

	var records []HistoricalRecord
	for rows.Next() {
		var r HistoricalRecord
		if err := rows.Scan(&r.Date, &r.Route, &r.Pounds, &r.CubicFeet, &r.Predicted); err != nil {
			return nil, fmt.Errorf("scanning historical record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Tables lists the tables and their schemas for introspection.
func (s *Store) Tables(ctx context.Context) (map[string][]Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make(map[string][]Column, len(names))
	for _, name := range names {
		cols, err := s.tableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		tables[name] = cols
	}
	return tables, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("describing table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Query runs a read-only SQL query against the dataset. Only SELECT and
// WITH statements are accepted; the store is the agent's analytics surface,
// not a writable database.
func (s *Store) Query(ctx context.Context, query string) (*QueryResult, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(trimmed, "SELECT") && !strings.HasPrefix(trimmed, "WITH") {
		return nil, fmt.Errorf("only SELECT queries are allowed")
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := &QueryResult{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	result.RowCount = len(result.Rows)
	return result, rows.Err()
}
