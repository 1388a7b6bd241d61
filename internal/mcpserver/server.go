// Package mcpserver exposes the flight dataset to MCP clients. Two tools
// are offered: schema introspection and read-only SQL queries.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cargodeck/cargodeck/internal/dataset"
	"github.com/cargodeck/cargodeck/internal/log"
)

// Server wraps the MCP SDK server around the dataset store.
type Server struct {
	mcpServer *mcp.Server
	data      *dataset.Store
	logger    log.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	Data    *dataset.Store
	Logger  log.Logger
}

// NewServer creates the MCP server and registers the dataset tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Data == nil {
		return nil, fmt.Errorf("dataset store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		data:   cfg.Data,
		logger: logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	return s, nil
}

// Run starts the MCP server on the given transport. Blocks until the
// context is canceled or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// GetTablesInput defines the input schema for the get_tables tool.
type GetTablesInput struct{}

// QueryDataInput defines the input schema for the query_data tool.
type QueryDataInput struct {
	SQL string `json:"sql" jsonschema:"The SELECT statement to run against the flight database"`
}

func (s *Server) registerTools() error {
	tablesSchema, err := jsonschema.For[GetTablesInput](nil)
	if err != nil {
		return fmt.Errorf("schema for get_tables: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_tables",
		Description: "List the flight database tables and their columns. Call this before writing queries.",
		InputSchema: tablesSchema,
	}, s.GetTables)

	querySchema, err := jsonschema.For[QueryDataInput](nil)
	if err != nil {
		return fmt.Errorf("schema for query_data: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "query_data",
		Description: "Run a read-only SQL query against the flight database. " +
			"Only SELECT statements are allowed. Tables: flights, historical_data.",
		InputSchema: querySchema,
	}, s.QueryData)

	return nil
}

// GetTables handles the get_tables MCP tool call.
func (s *Server) GetTables(ctx context.Context, req *mcp.CallToolRequest, input GetTablesInput) (*mcp.CallToolResult, any, error) {
	tables, err := s.data.Tables(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("introspecting schema: %w", err)
	}

	payload, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encoding schema: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
	}, nil, nil
}

// QueryData handles the query_data MCP tool call. Statement rejections are
// returned as tool errors so the client model can correct itself.
func (s *Server) QueryData(ctx context.Context, req *mcp.CallToolRequest, input QueryDataInput) (*mcp.CallToolResult, any, error) {
	s.logger.Info("mcp query", "sql", input.SQL)

	result, err := s.data.Query(ctx, input.SQL)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "Query failed: " + err.Error()}},
			IsError: true,
		}, nil, nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding query result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
	}, nil, nil
}
