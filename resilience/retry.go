package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/agentmesh/agentmesh/core"
)

// SleepFunc waits for the given delay or returns early with the context's
// error. Tests inject a fake to observe the backoff schedule without
// real sleeps.
type SleepFunc func(ctx context.Context, delay time.Duration) error

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration // 0 leaves the backoff uncapped
	BackoffFactor float64
	JitterEnabled bool

	// Sleep overrides how delays are waited out. Nil uses a timer that
	// honors context cancellation.
	Sleep SleepFunc
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// DeliveryRetryConfig is the delivery-path schedule: 1s, 2s, 4s, ...
// doubling without cap or jitter. Uncapped growth is a deliberate
// tuning point for callers with large budgets.
func DeliveryRetryConfig(maxAttempts int) *RetryConfig {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &RetryConfig{
		MaxAttempts:   maxAttempts,
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
	}
}

func sleepWithTimer(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry executes a function with retry logic. On exhaustion the last
// error is wrapped together with core.ErrMaxRetriesExceeded.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = sleepWithTimer
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		// Jitter desynchronizes retries across clients (thundering herd
		// mitigation).
		if config.JitterEnabled {
			jitter := time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
			delay += jitter
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	// Both sentinels survive errors.Is: the budget marker and the last
	// underlying transport error.
	return fmt.Errorf("max retry attempts (%d) exceeded: %w: %w", config.MaxAttempts, core.ErrMaxRetriesExceeded, lastErr)
}

// RetryWithCircuitBreaker combines retry logic with circuit breaker
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		if !cb.CanExecute() {
			return core.ErrCircuitBreakerOpen
		}

		err := fn()
		if err != nil {
			cb.RecordFailure()
			return err
		}

		cb.RecordSuccess()
		return nil
	})
}
