package cache

import (
	"errors"
	"log"
	"sync"
	"time"
)

type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerOpen
	CircuitBreakerHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

type CircuitBreakerConfig struct {
	Name        string        `json:"name"`
	MaxFailures int           `json:"max_failures"`
	Cooldown    time.Duration `json:"cooldown"`
}

func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "redis",
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
	}
}

// CircuitBreaker stops calling the shared cache after MaxFailures consecutive errors.
// Once the cooldown has elapsed a single probe call is let through; its outcome closes or
// reopens the breaker.
type CircuitBreaker struct {
	mu       sync.Mutex
	name     string
	state    CircuitBreakerState
	failures int
	openedAt time.Time
	probing  bool
	trips    int64
	rejected int64

	maxFailures int
	cooldown    time.Duration

	now func() time.Time
}

func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config == nil {
		config = defaults
	}
	cb := &CircuitBreaker{
		name:        config.Name,
		maxFailures: config.MaxFailures,
		cooldown:    config.Cooldown,
		now:         time.Now,
	}
	if cb.name == "" {
		cb.name = defaults.Name
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = defaults.MaxFailures
	}
	if cb.cooldown <= 0 {
		cb.cooldown = defaults.Cooldown
	}
	return cb
}

// Execute runs fn unless the breaker rejects the call. Errors returned by fn count as
// backend failures, so callers translate expected outcomes such as a miss to nil first.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn()
	cb.release(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			cb.rejected++
			return ErrCircuitBreakerOpen
		}
		cb.state = CircuitBreakerHalfOpen
		cb.probing = true
		return nil
	case CircuitBreakerHalfOpen:
		if cb.probing {
			cb.rejected++
			return ErrCircuitBreakerOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) release(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitBreakerHalfOpen {
		cb.probing = false
		if err != nil {
			cb.trip()
			return
		}
		cb.state = CircuitBreakerClosed
		cb.failures = 0
		log.Printf("[cache] %s breaker closed", cb.name)
		return
	}

	if err == nil {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.state == CircuitBreakerClosed && cb.failures >= cb.maxFailures {
		cb.trip()
	}
}

// trip must be called with mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = CircuitBreakerOpen
	cb.openedAt = cb.now()
	cb.trips++
	log.Printf("[cache] Warning: %s breaker opened after %d failures, retrying in %s", cb.name, cb.failures, cb.cooldown)
}

func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"name":             cb.name,
		"state":            cb.state.String(),
		"failures":         cb.failures,
		"trips":            cb.trips,
		"rejected":         cb.rejected,
		"max_failures":     cb.maxFailures,
		"cooldown_seconds": cb.cooldown.Seconds(),
	}
}
