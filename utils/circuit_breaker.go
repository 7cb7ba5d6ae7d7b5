package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while the breaker is refusing calls.
var ErrBreakerOpen = errors.New("circuit breaker is open")

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

// CircuitBreaker guards an outbound dependency (the mail transport) so a
// degraded provider cannot stall ticket issuance. Counts reset per
// interval; the breaker trips once the failure ratio is met and probes
// again after the cooldown.
type CircuitBreaker struct {
	name         string
	maxRequests  uint32
	interval     time.Duration
	cooldown     time.Duration
	failureRatio float64
	minRequests  uint32

	mutex    sync.Mutex
	state    BreakerState
	requests uint32
	failures uint32
	expiry   time.Time
}

func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxRequests:  5,
		interval:     60 * time.Second,
		cooldown:     60 * time.Second,
		failureRatio: 0.6,
		minRequests:  10,
		state:        BreakerClosed,
	}
}

// Do runs fn unless the breaker is open. Context cancellation is treated
// as a caller problem, not a dependency failure.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err == nil || errors.Is(err, context.Canceled))
	return err
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.currentState(time.Now())
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	switch cb.currentState(now) {
	case BreakerOpen:
		return ErrBreakerOpen
	case BreakerHalfOpen:
		if cb.requests >= cb.maxRequests {
			return ErrBreakerOpen
		}
	}

	cb.requests++
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state := cb.currentState(now)

	if success {
		if state == BreakerHalfOpen {
			cb.reset(BreakerClosed, now)
		}
		return
	}

	cb.failures++
	if state == BreakerHalfOpen {
		cb.trip(now)
		return
	}
	if cb.requests >= cb.minRequests &&
		float64(cb.failures)/float64(cb.requests) >= cb.failureRatio {
		cb.trip(now)
	}
}

func (cb *CircuitBreaker) trip(now time.Time) {
	cb.state = BreakerOpen
	cb.expiry = now.Add(cb.cooldown)
	cb.requests = 0
	cb.failures = 0
}

func (cb *CircuitBreaker) reset(state BreakerState, now time.Time) {
	cb.state = state
	cb.requests = 0
	cb.failures = 0
	if state == BreakerClosed {
		cb.expiry = now.Add(cb.interval)
	} else {
		cb.expiry = time.Time{}
	}
}

// currentState rolls the breaker forward before reporting: closed windows
// expire into a fresh window, open breakers expire into half-open probes.
func (cb *CircuitBreaker) currentState(now time.Time) BreakerState {
	switch cb.state {
	case BreakerClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.reset(BreakerClosed, now)
		}
	case BreakerOpen:
		if cb.expiry.Before(now) {
			cb.reset(BreakerHalfOpen, now)
		}
	}
	return cb.state
}
