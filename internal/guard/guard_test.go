package guard

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"stockledger-api/internal/model"
	"stockledger-api/internal/product"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAuthority returns scripted results in order, repeating the last one.
type stubAuthority struct {
	mu      sync.Mutex
	results []error
	exists  bool
	calls   int
	block   bool
}

func (s *stubAuthority) next(ctx context.Context) error {
	s.mu.Lock()
	s.calls++
	i := s.calls - 1
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	var err error
	if i >= 0 {
		err = s.results[i]
	}
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (s *stubAuthority) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubAuthority) Exists(ctx context.Context, _ int64) (bool, error) {
	if err := s.next(ctx); err != nil {
		return false, err
	}
	return s.exists, nil
}

func (s *stubAuthority) Fetch(ctx context.Context, id int64) (*model.Product, error) {
	if err := s.next(ctx); err != nil {
		return nil, err
	}
	return &model.Product{ID: id, Name: "Widget", Price: decimal.RequireFromString("2.50")}, nil
}

func (s *stubAuthority) FetchBatch(ctx context.Context, ids []int64) ([]model.Product, error) {
	if err := s.next(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Product, len(ids))
	for i, id := range ids {
		out[i] = model.Product{ID: id, Name: "Widget"}
	}
	return out, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	states   []State
}

func (o *recordingObserver) GuardCall(_, outcome string) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func (o *recordingObserver) GuardState(_ string, s State) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func testSettings() Settings {
	return Settings{
		Name:            "product-service",
		AttemptTimeout:  50 * time.Millisecond,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		Multiplier:      2,
		MaxInterval:     5 * time.Millisecond,
		Breaker: BreakerSettings{
			WindowSize:           10,
			FailureRateThreshold: 50,
			MinimumCalls:         5,
			OpenTimeout:          time.Hour,
			HalfOpenCalls:        3,
		},
	}
}

var errUnavailable = &product.StatusError{StatusCode: http.StatusServiceUnavailable, Op: "exists"}

func TestGuard_ExistsPresentAndAbsent(t *testing.T) {
	auth := &stubAuthority{exists: true}
	g := New(auth, testSettings(), nil)

	e, err := g.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ExistencePresent, e)

	auth.exists = false
	e, err = g.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ExistenceAbsent, e)
}

func TestGuard_RetriesTransientThenSucceeds(t *testing.T) {
	auth := &stubAuthority{exists: true, results: []error{errUnavailable, errUnavailable, nil}}
	obs := &recordingObserver{}
	g := New(auth, testSettings(), obs)

	e, err := g.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ExistencePresent, e)
	assert.Equal(t, 3, auth.Calls())
	assert.Equal(t, []string{OutcomeLabelFailure, OutcomeLabelFailure, OutcomeLabelSuccess}, obs.outcomes)
}

func TestGuard_RetriesExhaustedIsUnknown(t *testing.T) {
	auth := &stubAuthority{results: []error{errUnavailable}}
	g := New(auth, testSettings(), nil)

	e, err := g.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ExistenceUnknown, e)
	assert.Equal(t, 3, auth.Calls())
}

func TestGuard_NonTransientNotRetried(t *testing.T) {
	auth := &stubAuthority{results: []error{&product.StatusError{StatusCode: http.StatusInternalServerError}}}
	g := New(auth, testSettings(), nil)

	e, err := g.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ExistenceUnknown, e)
	assert.Equal(t, 1, auth.Calls())
}

func TestGuard_AttemptTimeoutIsRetried(t *testing.T) {
	auth := &stubAuthority{block: true}
	g := New(auth, testSettings(), nil)

	start := time.Now()
	e, err := g.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ExistenceUnknown, e)
	assert.Equal(t, 3, auth.Calls())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGuard_OpenCircuitShortCircuits(t *testing.T) {
	auth := &stubAuthority{results: []error{errUnavailable}}
	obs := &recordingObserver{}
	g := New(auth, testSettings(), obs)

	// 2 requests x 3 attempts = 6 failures; trips after the 5th
	for i := 0; i < 2; i++ {
		e, err := g.Exists(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, ExistenceUnknown, e)
	}
	require.Equal(t, StateOpen, g.Breaker().State())
	assert.Equal(t, 5, auth.Calls())

	e, err := g.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ExistenceUnknown, e)
	assert.Equal(t, 5, auth.Calls(), "open breaker must not reach the dependency")
	assert.Equal(t, OutcomeLabelRejected, obs.outcomes[len(obs.outcomes)-1])
	assert.Equal(t, []State{StateClosed, StateOpen}, obs.states)
}

func TestGuard_NotFoundCountsAsSuccess(t *testing.T) {
	auth := &stubAuthority{results: []error{product.ErrProductNotFound}}
	g := New(auth, testSettings(), nil)

	for i := 0; i < 10; i++ {
		_, err := g.Fetch(context.Background(), 7)
		assert.ErrorIs(t, err, product.ErrProductNotFound)
	}
	assert.Equal(t, 10, auth.Calls())
	assert.Equal(t, StateClosed, g.Breaker().State())
	assert.Equal(t, 0, g.Snapshot().Failures)
}

func TestGuard_FetchUnavailable(t *testing.T) {
	auth := &stubAuthority{results: []error{errUnavailable}}
	g := New(auth, testSettings(), nil)

	_, err := g.Fetch(context.Background(), 7)
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
}

func TestGuard_FetchSuccess(t *testing.T) {
	g := New(&stubAuthority{}, testSettings(), nil)

	p, err := g.Fetch(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "2.50", p.Price.StringFixed(2))
}

func TestGuard_FetchBatch(t *testing.T) {
	auth := &stubAuthority{results: []error{errUnavailable, nil}}
	g := New(auth, testSettings(), nil)

	products, err := g.FetchBatch(context.Background(), []int64{3, 4})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(4), products[1].ID)
	assert.Equal(t, 2, auth.Calls())

	products, err = g.FetchBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, 2, auth.Calls())
}

func TestGuard_FetchBatchUnavailable(t *testing.T) {
	auth := &stubAuthority{results: []error{errUnavailable}}
	g := New(auth, testSettings(), nil)

	_, err := g.FetchBatch(context.Background(), []int64{1})
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.Equal(t, 3, auth.Calls())
}

func TestGuard_CallerCancellation(t *testing.T) {
	auth := &stubAuthority{block: true}
	g := New(auth, testSettings(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := g.Exists(ctx, 1)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, ExistenceUnknown, e)
	assert.Equal(t, 0, g.Snapshot().Calls, "cancellation is not a dependency failure")
}
