package handler

import (
	"context"
	"errors"
	"net/http"

	"stockledger-api/internal/service"
	"stockledger-api/pkg/apierror"
	"stockledger-api/pkg/response"

	"github.com/rs/zerolog"
)

// writeError renders a ledger error with the status its kind maps to.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	msg := err.Error()
	if errors.As(err, &se) {
		msg = se.Message
	}

	switch service.KindOf(err) {
	case service.KindInvalidArgument:
		response.Error(w, apierror.ValidationError(msg))
	case service.KindNotFound:
		response.Error(w, apierror.NotFound(msg))
	case service.KindProductNotFound:
		response.Error(w, apierror.ProductNotFound(msg))
	case service.KindInsufficientStock:
		response.Error(w, apierror.InsufficientStock(msg))
	case service.KindConflict:
		response.Error(w, apierror.Conflict(msg))
	case service.KindDependencyUnavailable:
		response.Error(w, apierror.DependencyUnavailable(msg))
	case service.KindStoreUnavailable:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("component", "Handler").Msg("store unavailable")
		response.Error(w, apierror.ServiceUnavailable(msg))
	default:
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			response.Error(w, apierror.ServiceUnavailable("request cancelled or timed out"))
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("component", "Handler").Msg("unhandled error")
		response.Error(w, apierror.InternalError(""))
	}
}
