// Package guard wraps calls to the product service with a circuit breaker,
// bounded retries, a per-attempt timeout and a fallback answer.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockledger-api/internal/model"
	"stockledger-api/internal/product"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrDependencyUnavailable is returned when the product service could not
// give an answer: breaker open, retries exhausted or a non-transient failure.
var ErrDependencyUnavailable = errors.New("product service unavailable")

// Existence is the guarded answer to "does this product exist".
type Existence int

const (
	// ExistenceUnknown means no answer could be obtained; callers apply their fallback policy.
	ExistenceUnknown Existence = iota
	ExistencePresent
	ExistenceAbsent
)

func (e Existence) String() string {
	switch e {
	case ExistencePresent:
		return "present"
	case ExistenceAbsent:
		return "absent"
	}
	return "unknown"
}

// Call outcomes reported to the Observer.
const (
	OutcomeLabelSuccess   = "success"
	OutcomeLabelNotFound  = "not_found"
	OutcomeLabelFailure   = "failure"
	OutcomeLabelRejected  = "rejected"
	OutcomeLabelCancelled = "cancelled"
)

// Observer receives per-attempt outcomes and breaker state changes.
type Observer interface {
	GuardCall(dependency, outcome string)
	GuardState(dependency string, state State)
}

// Settings configures a Guard.
type Settings struct {
	Name            string
	AttemptTimeout  time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	Breaker         BreakerSettings
}

// Guard is the only path from the ledger to the product service.
type Guard struct {
	authority product.Authority
	breaker   *Breaker
	settings  Settings
	observer  Observer
	tracer    trace.Tracer
}

// New creates a Guard around authority. observer may be nil.
func New(authority product.Authority, settings Settings, observer Observer) *Guard {
	if settings.Name == "" {
		settings.Name = "product-service"
	}
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	if settings.AttemptTimeout <= 0 {
		settings.AttemptTimeout = 5 * time.Second
	}
	if settings.Multiplier < 1 {
		settings.Multiplier = 2
	}

	bs := settings.Breaker
	bs.Name = settings.Name
	userHook := bs.OnStateChange
	bs.OnStateChange = func(name string, from, to State) {
		log.Warn().
			Str("component", "Guard").
			Str("dependency", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
		if observer != nil {
			observer.GuardState(name, to)
		}
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	g := &Guard{
		authority: authority,
		breaker:   NewBreaker(bs),
		settings:  settings,
		observer:  observer,
		tracer:    otel.Tracer("stockledger-api/guard"),
	}
	if observer != nil {
		observer.GuardState(settings.Name, StateClosed)
	}
	return g
}

// Breaker exposes the underlying circuit breaker.
func (g *Guard) Breaker() *Breaker {
	return g.breaker
}

// Snapshot returns the breaker's current view.
func (g *Guard) Snapshot() Snapshot {
	return g.breaker.Snapshot()
}

// Exists asks the product service whether productID exists. When no answer
// can be obtained it returns ExistenceUnknown with a nil error; the error is
// non-nil only when ctx itself is done.
func (g *Guard) Exists(ctx context.Context, productID int64) (Existence, error) {
	ctx, span := g.tracer.Start(ctx, "guard.exists", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	var exists bool
	err := g.call(ctx, func(actx context.Context) error {
		ok, err := g.authority.Exists(actx, productID)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})

	switch {
	case err == nil && exists:
		span.SetAttributes(attribute.String("guard.existence", ExistencePresent.String()))
		return ExistencePresent, nil
	case err == nil:
		span.SetAttributes(attribute.String("guard.existence", ExistenceAbsent.String()))
		return ExistenceAbsent, nil
	case ctx.Err() != nil:
		return ExistenceUnknown, ctx.Err()
	}

	span.SetAttributes(attribute.String("guard.existence", ExistenceUnknown.String()))
	log.Warn().
		Err(err).
		Str("component", "Guard").
		Int64("product_id", productID).
		Msg("existence check fell back to unknown")
	return ExistenceUnknown, nil
}

// Fetch returns product metadata. Errors are product.ErrProductNotFound,
// ErrDependencyUnavailable, or ctx's own error.
func (g *Guard) Fetch(ctx context.Context, productID int64) (*model.Product, error) {
	ctx, span := g.tracer.Start(ctx, "guard.fetch", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	var p *model.Product
	err := g.call(ctx, func(actx context.Context) error {
		fetched, err := g.authority.Fetch(actx, productID)
		if err != nil {
			return err
		}
		p = fetched
		return nil
	})

	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, product.ErrProductNotFound):
		return nil, product.ErrProductNotFound
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
}

// FetchBatch returns metadata for the known ids among productIDs. Errors are
// ErrDependencyUnavailable or ctx's own error.
func (g *Guard) FetchBatch(ctx context.Context, productIDs []int64) ([]model.Product, error) {
	if len(productIDs) == 0 {
		return []model.Product{}, nil
	}
	ctx, span := g.tracer.Start(ctx, "guard.fetch_batch", trace.WithAttributes(attribute.Int("product.count", len(productIDs))))
	defer span.End()

	var products []model.Product
	err := g.call(ctx, func(actx context.Context) error {
		fetched, err := g.authority.FetchBatch(actx, productIDs)
		if err != nil {
			return err
		}
		products = fetched
		return nil
	})

	switch {
	case err == nil:
		return products, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
}

// call runs fn with retry outermost and the breaker consulted on every attempt.
func (g *Guard) call(ctx context.Context, fn func(context.Context) error) error {
	attempt := func() (struct{}, error) {
		gen, err := g.breaker.Allow()
		if err != nil {
			g.observe(OutcomeLabelRejected)
			return struct{}{}, backoff.Permanent(err)
		}

		actx, cancel := context.WithTimeout(ctx, g.settings.AttemptTimeout)
		err = fn(actx)
		cancel()

		switch {
		case err == nil:
			g.breaker.Record(gen, OutcomeSuccess)
			g.observe(OutcomeLabelSuccess)
			return struct{}{}, nil
		case errors.Is(err, product.ErrProductNotFound):
			// an explicit negative is a healthy response
			g.breaker.Record(gen, OutcomeSuccess)
			g.observe(OutcomeLabelNotFound)
			return struct{}{}, backoff.Permanent(err)
		case ctx.Err() != nil:
			g.breaker.Record(gen, OutcomeIgnored)
			g.observe(OutcomeLabelCancelled)
			return struct{}{}, backoff.Permanent(ctx.Err())
		}

		g.breaker.Record(gen, OutcomeFailure)
		g.observe(OutcomeLabelFailure)
		if product.IsTransient(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.settings.InitialInterval
	eb.Multiplier = g.settings.Multiplier
	if g.settings.MaxInterval > 0 {
		eb.MaxInterval = g.settings.MaxInterval
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(g.settings.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().
				Err(err).
				Str("component", "Guard").
				Dur("retry_in", next).
				Msg("retrying product service call")
		}),
	)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func (g *Guard) observe(outcome string) {
	if g.observer != nil {
		g.observer.GuardCall(g.settings.Name, outcome)
	}
}
