package middleware

import (
	"net/http"

	"stockledger-api/pkg/uid"

	"github.com/rs/zerolog/log"
)

// RequestID is a middleware that adds a unique request ID to each request
// and attaches a request-scoped logger carrying it. A client-supplied
// X-Request-ID is kept only when it is a UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if !uid.IsValid(requestID) {
			requestID = uid.New()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := uid.WithRequestID(r.Context(), requestID)
		logger := log.With().Str("request_id", requestID).Logger()
		ctx = logger.WithContext(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
