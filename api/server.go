// Package api is the HTTP surface of the backend: the AG-UI run endpoint,
// the dashboard data endpoints, and thread management.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/cors"

	"github.com/cargodeck/cargodeck/internal/agent"
	"github.com/cargodeck/cargodeck/internal/auth"
	"github.com/cargodeck/cargodeck/internal/dataset"
	"github.com/cargodeck/cargodeck/internal/log"
)

// publicPaths bypass bearer auth; probes and CORS preflights must work
// without a token.
var publicPaths = map[string]bool{
	"/":       true,
	"/health": true,
	"/ready":  true,
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger log.Logger
	Agent  *agent.Agent   // Required
	Data   *dataset.Store // Required

	Auth        *auth.Validator // Optional: nil disables bearer auth
	CORSOrigins []string        // Allowed origins for CORS
	TrustProxy  bool            // Trust X-Real-IP/X-Forwarded-For headers
	RateLimit   float64         // Tokens per second per IP (0 = default 1)
	RateBurst   int             // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON/SSE API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("agent is required")
	}
	if cfg.Data == nil {
		return nil, errors.New("dataset store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ah := &aguiHandler{agent: cfg.Agent, logger: logger}
	dh := &dataHandler{data: cfg.Data, logger: logger}
	fh := &feedbackHandler{logger: logger}
	th := &threadHandler{agent: cfg.Agent, logger: logger}

	mux := http.NewServeMux()

	// AG-UI run endpoint
	mux.HandleFunc("POST /logistics", ah.run)

	// Dashboard data
	mux.HandleFunc("GET /logistics/data/flights", dh.listFlights)
	mux.HandleFunc("GET /logistics/data/flights/{id}", dh.getFlight)
	mux.HandleFunc("GET /logistics/data/historical", dh.historical)
	mux.HandleFunc("GET /logistics/data/summary", dh.summary)

	// Feedback
	mux.HandleFunc("POST /logistics/feedback", fh.submit)

	// Thread management
	mux.HandleFunc("DELETE /api/threads/{id}", th.deleteThread)

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 1.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(limit, burst)

	// Middleware stack (outermost first):
	//   Recovery → Logging → CORS → RateLimit → Auth → Routes
	// CORS sits before RateLimit so preflight OPTIONS always gets headers.
	var handler http.Handler = mux
	if cfg.Auth != nil {
		handler = cfg.Auth.Middleware(publicPaths)(handler)
	}
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           3600,
	})(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes sit outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Data, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
