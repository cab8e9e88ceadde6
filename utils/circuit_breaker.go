package utils

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned without invoking the wrapped call while the
// breaker is open or out of half-open probes.
var ErrBreakerOpen = errors.New("circuit breaker: open")

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

// CircuitBreaker trips after maxFailures consecutive failures, stays open for
// cooldown, then lets a limited number of probes through half-open. A single
// probe success closes it again.
type CircuitBreaker struct {
	name        string
	maxFailures uint32
	cooldown    time.Duration
	maxProbes   uint32

	mu       sync.Mutex
	state    BreakerState
	failures uint32
	probes   uint32
	openedAt time.Time
}

func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:        name,
		maxFailures: 5,
		cooldown:    30 * time.Second,
		maxProbes:   1,
		state:       BreakerClosed,
	}
}

// Do runs fn unless the breaker rejects the call. fn's error feeds the breaker.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	cb.record(err == nil)
	return err
}

// State reports the current state, advancing open -> half-open when the
// cooldown has passed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked(time.Now())
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked(time.Now()) {
	case BreakerOpen:
		return ErrBreakerOpen
	case BreakerHalfOpen:
		if cb.probes >= cb.maxProbes {
			return ErrBreakerOpen
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.stateLocked(time.Now())

	if success {
		cb.failures = 0
		if state == BreakerHalfOpen {
			cb.transition(BreakerClosed)
		}
		return
	}

	cb.failures++
	if state == BreakerHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = time.Now()
		cb.transition(BreakerOpen)
	}
}

func (cb *CircuitBreaker) stateLocked(now time.Time) BreakerState {
	if cb.state == BreakerOpen && now.Sub(cb.openedAt) >= cb.cooldown {
		cb.transition(BreakerHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.probes = 0
	if to == BreakerClosed {
		cb.failures = 0
	}
	slog.Info("circuit breaker state change", "name", cb.name, "from", from.String(), "to", to.String())
}
