package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/agentmesh/agentmesh/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited requests for testing
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker in logs
	Name string

	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int

	// RecoveryTimeout is how long to wait before entering half-open state
	RecoveryTimeout time.Duration

	// HalfOpenRequests is the number of test requests allowed half-open
	HalfOpenRequests int

	// Logger receives state transition diagnostics
	Logger core.Logger
}

// DefaultCircuitBreakerConfig returns conservative defaults.
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// CircuitBreaker guards a downstream dependency: consecutive failures
// open the circuit, a recovery timeout later a limited number of probe
// requests decide whether to close it again.
type CircuitBreaker struct {
	config *CircuitBreakerConfig
	logger core.Logger

	mu           sync.Mutex
	state        CircuitState
	failures     int
	halfOpenUsed int
	openedAt     time.Time
	now          func() time.Time
}

// NewCircuitBreaker creates a circuit breaker from config.
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &CircuitBreaker{
		config: config,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

// CanExecute reports whether a request may proceed right now. Half-open
// probes are budgeted; callers that get true must report the outcome via
// RecordSuccess/RecordFailure.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenUsed < cb.config.HalfOpenRequests {
			cb.halfOpenUsed++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess notes a successful request and closes the circuit from
// half-open.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.stateLocked() == StateHalfOpen {
		cb.transitionLocked(StateClosed)
	}
	cb.failures = 0
}

// RecordFailure notes a failed request, opening the circuit at the
// threshold or immediately from half-open.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	switch cb.stateLocked() {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionLocked(StateOpen)
		}
	}
}

// Execute runs fn under circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.CanExecute() {
		return core.ErrCircuitBreakerOpen
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// stateLocked folds the recovery timeout into the visible state.
func (cb *CircuitBreaker) stateLocked() CircuitState {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.RecoveryTimeout {
		cb.state = StateHalfOpen
		cb.halfOpenUsed = 0
		cb.logger.Info("Circuit breaker half-open", map[string]interface{}{
			"breaker": cb.config.Name,
		})
	}
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
		cb.halfOpenUsed = 0
	}
	cb.logger.Warn("Circuit breaker state change", map[string]interface{}{
		"breaker": cb.config.Name,
		"from":    from.String(),
		"to":      to.String(),
	})
}
