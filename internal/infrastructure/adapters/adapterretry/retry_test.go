package adapterretry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		BackoffFactor:   1.5,
		RetryableErrors: []string{"timeout", "503"},
	}
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastConfig(), "test.op", func() (*string, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("upstream timeout")
		}
		v := "ok"
		return &v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *result != "ok" {
		t.Fatalf("result = %q, want ok", *result)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), "test.op", func() (*string, error) {
		calls++
		return nil, errors.New("400 bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("non-retryable error must not retry, calls = %d", calls)
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), "test.op", func() (*string, error) {
		calls++
		return nil, errors.New("503 service unavailable")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoRunsOnceWithZeroConfig(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), Config{}, "test.op", func() (*int, error) {
		calls++
		v := 7
		return &v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || *result != 7 {
		t.Fatalf("calls = %d, result = %v", calls, result)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, fastConfig(), "test.op", func() (*string, error) {
		return nil, errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
