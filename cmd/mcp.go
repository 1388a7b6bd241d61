package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	mcpSDK "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/cargodeck/cargodeck/internal/config"
	"github.com/cargodeck/cargodeck/internal/dataset"
	"github.com/cargodeck/cargodeck/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long: `Expose the flight dataset to MCP clients over stdio transport.
Tools: get_tables (schema introspection) and query_data (read-only SQL).`,
	RunE: func(*cobra.Command, []string) error {
		return runMCP()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	logger.Info("starting MCP server", "version", Version)

	data, err := dataset.Open(cfg.Data.FlightsFile, logger.With("component", "dataset"))
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}
	defer func() {
		if err := data.Close(); err != nil {
			logger.Warn("dataset close failed", "error", err)
		}
	}()

	server, err := mcpserver.NewServer(mcpserver.Config{
		Name:    "cargodeck",
		Version: Version,
		Data:    data,
		Logger:  logger.With("component", "mcp"),
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	logger.Info("MCP server ready", "transport", "stdio")

	if err := server.Run(ctx, &mcpSDK.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server: %w", err)
	}

	logger.Info("MCP server shut down gracefully")
	return nil
}
