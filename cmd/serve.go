package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cargodeck/cargodeck/api"
	"github.com/cargodeck/cargodeck/internal/agent"
	"github.com/cargodeck/cargodeck/internal/auth"
	"github.com/cargodeck/cargodeck/internal/config"
	"github.com/cargodeck/cargodeck/internal/continuity"
	"github.com/cargodeck/cargodeck/internal/dataset"
	"github.com/cargodeck/cargodeck/internal/observability"
	"github.com/cargodeck/cargodeck/internal/provider/azure"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // SSE streaming needs longer timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var trustProxy bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(*cobra.Command, []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&trustProxy, "trust-proxy", false, "trust X-Real-IP/X-Forwarded-For headers")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	logger.Info("starting HTTP API server", "version", Version)

	if cfg.Observability.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Observability.Endpoint,
			ServiceName: cfg.Observability.ServiceName,
			Environment: cfg.Observability.Environment,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer flushCancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("trace flush failed", "error", err)
			}
		}()
	}

	data, err := dataset.Open(cfg.Data.FlightsFile, logger.With("component", "dataset"))
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}
	defer func() {
		if err := data.Close(); err != nil {
			logger.Warn("dataset close failed", "error", err)
		}
	}()

	upstream, err := azure.New(azure.Config{
		Endpoint: cfg.Upstream.Endpoint,
		APIKey:   cfg.Upstream.APIKey,
		Logger:   logger.With("component", "azure"),
	})
	if err != nil {
		return fmt.Errorf("creating upstream client: %w", err)
	}

	turns := continuity.NewTurns(continuity.TurnsConfig{
		Store:          continuity.NewStore(),
		Client:         upstream,
		FrontendTools:  cfg.FrontendToolSet(),
		HandlePrefixes: cfg.Agent.HandlePrefixes,
		Logger:         logger.With("component", "continuity"),
	})

	assistant := agent.New(agent.Config{
		Turns:         turns,
		Data:          data,
		Model:         cfg.Upstream.Model,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
		Logger:        logger.With("component", "agent"),
	})

	var validator *auth.Validator
	if cfg.Auth.Enabled {
		validator, err = auth.New(ctx, auth.Config{
			TenantID: cfg.Auth.TenantID,
			ClientID: cfg.Auth.ClientID,
			JWKSURL:  cfg.Auth.JWKSURL,
			Logger:   logger.With("component", "auth"),
		})
		if err != nil {
			return fmt.Errorf("setting up auth: %w", err)
		}
		logger.Info("bearer auth enabled", "tenant", cfg.Auth.TenantID)
	} else {
		logger.Warn("bearer auth disabled")
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:      logger.With("component", "api"),
		Agent:       assistant,
		Data:        data,
		Auth:        validator,
		CORSOrigins: cfg.CORS.AllowedOrigins,
		TrustProxy:  trustProxy,
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Server.Addr,
		"agent", "/logistics",
		"data", "/logistics/data/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
