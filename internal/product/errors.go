package product

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrProductNotFound is the product service's explicit "does not exist" answer.
var ErrProductNotFound = errors.New("product not found")

// StatusError is an unexpected HTTP status from the product service.
type StatusError struct {
	StatusCode int
	Op         string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("product service %s: unexpected status %d", e.Op, e.StatusCode)
}

// Transient reports whether the status indicates a temporary upstream condition.
func (e *StatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsTransient reports whether err is worth retrying: timeouts,
// connection failures and temporary upstream statuses.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrProductNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
