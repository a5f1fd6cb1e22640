package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentmesh/agentmesh/core"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	config := DeliveryRetryConfig(3)
	config.Sleep = func(ctx context.Context, delay time.Duration) error {
		t.Errorf("Unexpected sleep of %v", delay)
		return nil
	}

	err := Retry(context.Background(), config, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryDeliverySchedule(t *testing.T) {
	var delays []time.Duration
	config := DeliveryRetryConfig(3)
	config.Sleep = func(ctx context.Context, delay time.Duration) error {
		delays = append(delays, delay)
		return nil
	}

	calls := 0
	transportErr := errors.New("connection refused")
	err := Retry(context.Background(), config, func() error {
		calls++
		return transportErr
	})

	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	if len(delays) != 2 {
		t.Fatalf("Expected 2 sleeps between 3 attempts, got %v", delays)
	}
	if delays[0] != time.Second {
		t.Errorf("First backoff should be 1s, got %v", delays[0])
	}
	if delays[1] != 2*time.Second {
		t.Errorf("Second backoff should be 2s, got %v", delays[1])
	}

	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("Exhaustion should wrap ErrMaxRetriesExceeded, got %v", err)
	}
	if !errors.Is(err, transportErr) {
		t.Errorf("Exhaustion should carry the last attempt's error, got %v", err)
	}
}

func TestRetryRecoveryMidway(t *testing.T) {
	config := DeliveryRetryConfig(5)
	config.Sleep = func(ctx context.Context, delay time.Duration) error { return nil }

	calls := 0
	err := Retry(context.Background(), config, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected success on third attempt, got %d calls", calls)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := DeliveryRetryConfig(5)
	config.Sleep = func(ctx context.Context, delay time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	err := Retry(ctx, config, func() error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Cancellation during sleep should stop further attempts, got %d", calls)
	}
}

func TestRetryMaxDelayCap(t *testing.T) {
	var delays []time.Duration
	config := &RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Second,
		MaxDelay:      3 * time.Second,
		BackoffFactor: 2.0,
		Sleep: func(ctx context.Context, delay time.Duration) error {
			delays = append(delays, delay)
			return nil
		},
	}

	_ = Retry(context.Background(), config, func() error {
		return errors.New("always")
	})

	for _, d := range delays {
		if d > 3*time.Second {
			t.Errorf("Delay %v exceeds configured cap", d)
		}
	}
}

func TestRetryWithCircuitBreakerOpen(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})
	cb.RecordFailure()

	config := DeliveryRetryConfig(2)
	config.Sleep = func(ctx context.Context, delay time.Duration) error { return nil }

	calls := 0
	err := RetryWithCircuitBreaker(context.Background(), config, cb, func() error {
		calls++
		return nil
	})
	if !errors.Is(err, core.ErrCircuitBreakerOpen) {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Open breaker should block the function, got %d calls", calls)
	}
}
