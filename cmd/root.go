// Package cmd implements the cargodeck CLI.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cargodeck/cargodeck/internal/log"
)

var debugLogging bool

var rootCmd = &cobra.Command{
	Use:   "cargodeck",
	Short: "CargoDeck - air cargo logistics dashboard backend",
	Long: `CargoDeck is the backend for an air cargo logistics dashboard.
It serves flight capacity data over REST and runs the embedded
logistics assistant over the AG-UI streaming protocol.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "enable debug logging")
}

// newLogger builds the process logger from the CLI flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if debugLogging {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: true})
}
