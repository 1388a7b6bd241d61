// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (CARGODECK_* runtime override)
//  2. Config file (~/.cargodeck/config.yaml or ./cargodeck.yaml)
//  3. Default values
//
// Sensitive values (API keys) are never logged. Validation uses sentinel
// errors so callers can check categories with errors.Is().
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingUpstreamEndpoint indicates the upstream chat endpoint is not set.
	ErrMissingUpstreamEndpoint = errors.New("missing upstream endpoint")

	// ErrMissingUpstreamKey indicates the upstream API key is not set.
	ErrMissingUpstreamKey = errors.New("missing upstream API key")

	// ErrInvalidAddr indicates the server listen address is invalid.
	ErrInvalidAddr = errors.New("invalid listen address")

	// ErrInvalidModel indicates the upstream model name is invalid.
	ErrInvalidModel = errors.New("invalid model name")

	// ErrAuthIncomplete indicates auth is enabled but tenant/client ids are missing.
	ErrAuthIncomplete = errors.New("incomplete auth configuration")
)

// Config is the root application configuration.
type Config struct {
	Server        Server        `mapstructure:"server"`
	Upstream      Upstream      `mapstructure:"upstream"`
	Agent         Agent         `mapstructure:"agent"`
	Auth          Auth          `mapstructure:"auth"`
	CORS          CORS          `mapstructure:"cors"`
	Data          Data          `mapstructure:"data"`
	Observability Observability `mapstructure:"observability"`
}

// Server holds HTTP server settings.
type Server struct {
	// Addr is the listen address, e.g. "127.0.0.1:8000".
	Addr string `mapstructure:"addr"`

	// RateLimit is the per-client request rate per second. 0 uses the
	// server default.
	RateLimit float64 `mapstructure:"rate_limit"`

	// RateBurst is the burst size for the rate limiter.
	RateBurst int `mapstructure:"rate_burst"`
}

// Upstream holds the chat completion provider settings.
type Upstream struct {
	// Endpoint is the Azure OpenAI resource endpoint,
	// e.g. "https://myresource.openai.azure.com/openai/v1".
	Endpoint string `mapstructure:"endpoint"`

	// APIKey authenticates against the endpoint.
	APIKey string `mapstructure:"api_key"`

	// Model is the deployment/model name used for chat turns.
	Model string `mapstructure:"model"`
}

// Agent holds logistics agent policy settings.
type Agent struct {
	// FrontendTools are tool names resolved entirely client-side; their
	// results never come back through the backend as tool messages.
	FrontendTools []string `mapstructure:"frontend_tools"`

	// HandlePrefixes are the recognized conversation handle prefixes.
	// Handles without one of these prefixes are never stored.
	HandlePrefixes []string `mapstructure:"handle_prefixes"`

	// MaxToolRounds bounds backend tool-execution rounds per chat turn.
	MaxToolRounds int `mapstructure:"max_tool_rounds"`
}

// Auth holds optional Entra ID bearer-token validation settings.
type Auth struct {
	Enabled  bool   `mapstructure:"enabled"`
	TenantID string `mapstructure:"tenant_id"`
	ClientID string `mapstructure:"client_id"`

	// JWKSURL overrides the derived Entra ID JWKS endpoint. Optional.
	JWKSURL string `mapstructure:"jwks_url"`
}

// CORS holds cross-origin settings for the dashboard frontend.
type CORS struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Data holds dataset settings.
type Data struct {
	// FlightsFile is the path to the flights JSON dataset. Empty uses the
	// embedded sample dataset.
	FlightsFile string `mapstructure:"flights_file"`
}

// Observability holds OpenTelemetry settings.
type Observability struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// DefaultFrontendTools mirrors the dashboard's client-side tool set.
var DefaultFrontendTools = []string{
	"filter_flights",
	"reset_filters",
	"display_flight_list",
	"display_flight_detail",
	"display_historical_chart",
}

// DefaultHandlePrefixes are the provider prefixes a stored handle must carry.
var DefaultHandlePrefixes = []string{"resp_", "conv_"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8000")
	v.SetDefault("server.rate_limit", 0.0)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("upstream.model", "gpt-4o")

	v.SetDefault("agent.frontend_tools", DefaultFrontendTools)
	v.SetDefault("agent.handle_prefixes", DefaultHandlePrefixes)
	v.SetDefault("agent.max_tool_rounds", 4)

	v.SetDefault("auth.enabled", false)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.endpoint", "localhost:4318")
	v.SetDefault("observability.service_name", "cargodeck")
	v.SetDefault("observability.environment", "dev")
}

// Load reads configuration from file and environment.
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".cargodeck"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("CARGODECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ValidateServe checks the configuration needed to run the HTTP server.
func (c *Config) ValidateServe() error {
	if c.Server.Addr == "" || !strings.Contains(c.Server.Addr, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidAddr, c.Server.Addr)
	}
	if c.Upstream.Endpoint == "" {
		return ErrMissingUpstreamEndpoint
	}
	if c.Upstream.APIKey == "" {
		return ErrMissingUpstreamKey
	}
	if c.Upstream.Model == "" {
		return ErrInvalidModel
	}
	if c.Auth.Enabled && (c.Auth.TenantID == "" || c.Auth.ClientID == "") {
		return fmt.Errorf("%w: tenant_id and client_id are required", ErrAuthIncomplete)
	}
	return nil
}

// FrontendToolSet returns the frontend-only tool names as a set.
func (c *Config) FrontendToolSet() map[string]bool {
	set := make(map[string]bool, len(c.Agent.FrontendTools))
	for _, name := range c.Agent.FrontendTools {
		set[name] = true
	}
	return set
}
