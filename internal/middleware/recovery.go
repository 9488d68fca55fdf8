package middleware

import (
	"net/http"
	"runtime/debug"

	"stockledger-api/pkg/apierror"

	"github.com/rs/zerolog"
)

// Recovery is a middleware that recovers from panics.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				zerolog.Ctx(r.Context()).Error().
					Str("component", "Recovery").
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Msg("panic while serving request")

				writeError(w, apierror.InternalError("internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
