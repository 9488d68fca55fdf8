package guard

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without invoking it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// Outcome classifies a finished call for the breaker.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	// OutcomeIgnored releases the call without counting it, e.g. caller cancellation.
	OutcomeIgnored
)

// BreakerSettings configures a Breaker.
type BreakerSettings struct {
	Name                 string
	WindowSize           int
	FailureRateThreshold float64 // percent, e.g. 50
	MinimumCalls         int
	OpenTimeout          time.Duration
	HalfOpenCalls        int
	// OnStateChange is invoked outside the breaker lock.
	OnStateChange func(name string, from, to State)
}

// Snapshot is a point-in-time view of a Breaker.
type Snapshot struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Calls       int       `json:"calls"`
	Failures    int       `json:"failures"`
	FailureRate float64   `json:"failure_rate"`
	OpenedAt    time.Time `json:"opened_at,omitempty"`
}

// Breaker is a count-based sliding window circuit breaker.
//
// Every admitted call receives the generation current at admission; results
// reported with an older generation are dropped, so calls that straddle a
// state change cannot skew the new state's accounting.
type Breaker struct {
	mu       sync.Mutex
	settings BreakerSettings
	now      func() time.Time

	state      State
	generation uint64
	openedAt   time.Time

	// ring buffer of outcomes, true = failure
	window   []bool
	next     int
	calls    int
	failures int

	halfOpenAdmitted  int
	halfOpenSucceeded int
}

// NewBreaker creates a closed breaker.
func NewBreaker(settings BreakerSettings) *Breaker {
	if settings.WindowSize < 1 {
		settings.WindowSize = 10
	}
	if settings.MinimumCalls < 1 {
		settings.MinimumCalls = 1
	}
	if settings.HalfOpenCalls < 1 {
		settings.HalfOpenCalls = 1
	}
	if settings.FailureRateThreshold <= 0 {
		settings.FailureRateThreshold = 50
	}
	return &Breaker{
		settings: settings,
		now:      time.Now,
		window:   make([]bool, settings.WindowSize),
	}
}

// Allow admits a call or returns ErrCircuitOpen. The returned generation
// must be passed to Record once the call finishes.
func (b *Breaker) Allow() (uint64, error) {
	b.mu.Lock()
	from, to, changed := b.advanceLocked()

	var err error
	switch b.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenAdmitted >= b.settings.HalfOpenCalls {
			err = ErrCircuitOpen
		} else {
			b.halfOpenAdmitted++
		}
	}
	gen := b.generation
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
	return gen, err
}

// Record reports the outcome of a call admitted under generation gen.
func (b *Breaker) Record(gen uint64, outcome Outcome) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}

	from := b.state
	switch b.state {
	case StateClosed:
		if outcome != OutcomeIgnored {
			b.pushLocked(outcome == OutcomeFailure)
			if b.calls >= b.settings.MinimumCalls && b.failureRateLocked() >= b.settings.FailureRateThreshold {
				b.transitionLocked(StateOpen)
			}
		}
	case StateHalfOpen:
		switch outcome {
		case OutcomeFailure:
			b.transitionLocked(StateOpen)
		case OutcomeSuccess:
			b.halfOpenSucceeded++
			if b.halfOpenSucceeded >= b.settings.HalfOpenCalls {
				b.transitionLocked(StateClosed)
			}
		case OutcomeIgnored:
			b.halfOpenAdmitted--
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

// State returns the current state, applying the open timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	from, to, changed := b.advanceLocked()
	s := b.state
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
	return s
}

// Snapshot returns the breaker's current counters.
func (b *Breaker) Snapshot() Snapshot {
	s := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()
	snap := Snapshot{
		Name:        b.settings.Name,
		State:       s.String(),
		Calls:       b.calls,
		Failures:    b.failures,
		FailureRate: b.failureRateLocked(),
	}
	if s != StateClosed {
		snap.OpenedAt = b.openedAt
	}
	return snap
}

// advanceLocked moves OPEN to HALF_OPEN once the open timeout has elapsed.
func (b *Breaker) advanceLocked() (State, State, bool) {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.settings.OpenTimeout)) {
		b.transitionLocked(StateHalfOpen)
		return StateOpen, StateHalfOpen, true
	}
	return b.state, b.state, false
}

func (b *Breaker) transitionLocked(to State) {
	b.state = to
	b.generation++
	b.halfOpenAdmitted = 0
	b.halfOpenSucceeded = 0

	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.resetWindowLocked()
	}
}

func (b *Breaker) pushLocked(failed bool) {
	if b.calls == len(b.window) {
		if b.window[b.next] {
			b.failures--
		}
	} else {
		b.calls++
	}
	b.window[b.next] = failed
	if failed {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.window)
}

func (b *Breaker) resetWindowLocked() {
	for i := range b.window {
		b.window[i] = false
	}
	b.next = 0
	b.calls = 0
	b.failures = 0
}

func (b *Breaker) failureRateLocked() float64 {
	if b.calls == 0 {
		return 0
	}
	return float64(b.failures) * 100 / float64(b.calls)
}

func (b *Breaker) notify(from, to State) {
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}
