package resilience

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState mirrors the teacher's three-state breaker
// (pkg/agent/circuit_breaker.go).
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "invalid"
	}
}

// CircuitBreakerConfig tunes when the breaker opens and how long it
// stays open before probing again.
type CircuitBreakerConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
	HalfOpenMaxCalls int
}

var DefaultCircuitBreakerConfig = CircuitBreakerConfig{ //nolint:gochecknoglobals
	FailureThreshold: 5,
	OpenDuration:      30 * time.Second,
	HalfOpenMaxCalls:  1,
}

type CircuitBreakerError struct {
	State CircuitState
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("llmhost: circuit breaker is %s", e.State)
}

// CircuitBreaker guards calls to one LLM host backend.
type CircuitBreaker struct {
	mu             sync.Mutex
	cfg            CircuitBreakerConfig
	state          CircuitState
	failures       int
	openedAt       time.Time
	halfOpenCalls  int
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed, transitioning Open→HalfOpen
// once cfg.OpenDuration has elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.OpenDuration {
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 1
			return nil
		}
		return &CircuitBreakerError{State: StateOpen}
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			return &CircuitBreakerError{State: StateHalfOpen}
		}
		cb.halfOpenCalls++
		return nil
	default:
		return nil
	}
}

// Record updates breaker state after a call completes.
func (cb *CircuitBreaker) Record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.failures = 0
		cb.state = StateClosed
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.state = StateOpen
		cb.openedAt = time.Now()
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
