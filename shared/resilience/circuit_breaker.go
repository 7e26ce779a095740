package resilience

import (
	"fmt"
	"sync"
	"time"
)

// CircuitBreaker guards a single upstream provider. After a run of
// consecutive failures it opens and rejects calls until the reset timeout
// elapses, then lets one probe call through (half-open).
type CircuitBreaker struct {
	mu               sync.Mutex
	provider         string
	failureThreshold int
	resetTimeout     time.Duration

	consecutiveFailures int
	lastFailureTime     time.Time
	state               CircuitState
	reopenAt            time.Time
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var ErrCircuitOpen = fmt.Errorf("circuit breaker open")

func NewCircuitBreaker(provider string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		provider:         provider,
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
		state:            CircuitClosed,
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if time.Now().After(cb.reopenAt) {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	}

	return true
}

func (cb *CircuitBreaker) RecordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.consecutiveFailures = 0
		if cb.state == CircuitHalfOpen {
			cb.state = CircuitClosed
		}
		return
	}

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.state = CircuitOpen
		cb.reopenAt = time.Now().Add(cb.resetTimeout)
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
