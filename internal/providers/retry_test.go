package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryDo_SucceedsAfterRetries(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	attempts := 0
	got, err := RetryDo(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", ErrNetworkError
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RetryDo error = %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Errorf("got=%q attempts=%d, want ok after 3 attempts", got, attempts)
	}
}

func TestRetryDo_GivesUpAfterMaxRetries(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	attempts := 0
	_, err := RetryDo(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", ErrTimeout
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("RetryDo error = %v, want ErrTimeout", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (1 initial + 1 retry)", attempts)
	}
}

func TestRetryDo_NonRetryableErrorStopsImmediately(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	attempts := 0
	_, err := RetryDo(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", ErrInvalidRequest
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("RetryDo error = %v, want ErrInvalidRequest", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (non-retryable errors must not retry)", attempts)
	}
}
