package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	}, fastConfig(3), nil)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_FailureThenSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, fastConfig(3), IsRetryableNetworkError)

	if err != nil {
		t.Errorf("Expected no error after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_MaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("persistent error")
	}, fastConfig(2), nil)

	if err == nil || err.Error() != "persistent error" {
		t.Errorf("Expected last error after max attempts, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("bad request")
	}, fastConfig(3), IsRetryableNetworkError)

	if err == nil {
		t.Error("Expected error")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("connection refused")
	}, fastConfig(5), IsRetryableNetworkError)

	if err == nil {
		t.Error("Expected error after cancellation")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt before cancellation stopped retries, got %d", attempts)
	}
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("x")
	}, fastConfig(0), nil)
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestCalculateBackoff(t *testing.T) {
	if b := CalculateBackoff(0, 100*time.Millisecond, time.Second, 2); b != 100*time.Millisecond {
		t.Errorf("Expected 100ms, got %v", b)
	}
	if b := CalculateBackoff(2, 100*time.Millisecond, time.Second, 2); b != 400*time.Millisecond {
		t.Errorf("Expected 400ms, got %v", b)
	}
	if b := CalculateBackoff(10, 100*time.Millisecond, time.Second, 2); b != time.Second {
		t.Errorf("Expected cap at 1s, got %v", b)
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	cases := map[string]bool{
		"dial tcp 127.0.0.1:8000: connect: connection refused": true,
		"websocket: bad handshake":                             true,
		"read tcp: i/o timeout":                                true,
		"invalid session":                                      false,
	}
	for msg, expected := range cases {
		if got := IsRetryableNetworkError(errors.New(msg)); got != expected {
			t.Errorf("IsRetryableNetworkError(%q) = %v, expected %v", msg, got, expected)
		}
	}
	if IsRetryableNetworkError(nil) {
		t.Error("Expected nil error to be non-retryable")
	}
	if IsRetryableNetworkError(context.Canceled) {
		t.Error("Expected context.Canceled to be non-retryable")
	}
}
