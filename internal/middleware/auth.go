package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"stockledger-api/pkg/apierror"

	"github.com/rs/zerolog"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	APIKeys []string
	// AllowAnonymous lets every request through when no keys are configured.
	AllowAnonymous bool
}

// publicPaths never require a key.
var publicPaths = map[string]bool{
	"/api/v1/health": true,
	"/api/v1/ready":  true,
	"/api/status":    true,
	"/metrics":       true,
}

// NewAuthMiddleware creates an API key authentication middleware.
// Keys are read from X-API-Key or an "Authorization: Bearer" header.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	keys := make([]string, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if len(keys) == 0 {
				if cfg.AllowAnonymous {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, apierror.Unauthorized("API keys are not configured"))
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use X-API-Key header."))
				return
			}

			if !isValidKey(apiKey, keys) {
				zerolog.Ctx(r.Context()).Warn().
					Str("component", "Auth").
					Str("path", r.URL.Path).
					Msg("rejected invalid API key")
				writeError(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// isValidKey checks if the provided key is in the valid keys list.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}
