// Package auth validates Microsoft Entra ID bearer tokens. Signing keys
// come from the tenant JWKS endpoint and refresh in the background; tokens
// from both the v1.0 and v2.0 issuer endpoints are accepted.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cargodeck/cargodeck/internal/log"
)

// ErrInvalidToken wraps all token validation failures.
var ErrInvalidToken = errors.New("invalid bearer token")

type contextKey struct{}

// ClaimsFromContext returns the validated token claims, if any.
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(contextKey{}).(jwt.MapClaims)
	return claims, ok
}

// Validator checks Entra ID bearer tokens against the tenant's keys.
type Validator struct {
	keys      jwt.Keyfunc
	issuers   map[string]bool
	audiences map[string]bool
	logger    log.Logger
}

// Config configures a Validator.
type Config struct {
	// TenantID is the Entra ID directory (tenant) id.
	TenantID string

	// ClientID is the application (client) id of the API registration.
	ClientID string

	// JWKSURL overrides the tenant discovery keys endpoint when set.
	JWKSURL string

	Logger log.Logger
}

// New creates a Validator. The JWKS is fetched eagerly so a misconfigured
// tenant fails at startup rather than on the first request.
func New(ctx context.Context, cfg Config) (*Validator, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("auth requires both tenant id and client id")
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = fmt.Sprintf("https://login.microsoftonline.com/%s/discovery/v2.0/keys", cfg.TenantID)
	}

	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetching jwks from %s: %w", jwksURL, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Validator{
		keys: k.Keyfunc,
		issuers: map[string]bool{
			"https://login.microsoftonline.com/" + cfg.TenantID + "/v2.0": true,
			"https://sts.windows.net/" + cfg.TenantID + "/":               true,
		},
		audiences: map[string]bool{
			cfg.ClientID:           true,
			"api://" + cfg.ClientID: true,
		},
		logger: logger,
	}, nil
}

// Validate parses and verifies a bearer token, returning its claims.
func (v *Validator) Validate(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, v.keys,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}

	issuer, err := claims.GetIssuer()
	if err != nil || !v.issuers[issuer] {
		return nil, fmt.Errorf("%w: untrusted issuer %q", ErrInvalidToken, issuer)
	}

	audience, err := claims.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("%w: missing audience", ErrInvalidToken)
	}
	matched := false
	for _, aud := range audience {
		if v.audiences[aud] {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: audience not accepted", ErrInvalidToken)
	}

	return claims, nil
}

// Middleware enforces bearer auth on every request except the listed
// public paths and CORS preflights. Validated claims are attached to the
// request context.
func (v *Validator) Middleware(publicPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := strings.TrimRight(r.URL.Path, "/")
			if path == "" {
				path = "/"
			}
			if publicPaths[path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "missing Authorization header")
				return
			}
			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") {
				unauthorized(w, "invalid Authorization header format")
				return
			}

			claims, err := v.Validate(token)
			if err != nil {
				v.logger.Warn("token validation failed", "path", r.URL.Path, "error", err)
				unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":%q}`+"\n", detail)
}
