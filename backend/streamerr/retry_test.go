package streamerr_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkwell-ai/inkwell/backend/streamerr"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	base := time.Second
	max := 10 * time.Second

	cases := []struct {
		n    uint
		want time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := streamerr.Backoff(tc.n, base, max); got != tc.want {
			t.Errorf("Backoff(%d) = %s, want %s", tc.n, got, tc.want)
		}
	}
}

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := streamerr.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	}, 3)
	if err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo_RetryableExhaustsBudget(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := streamerr.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("data stream read failed")
	}, 3, streamerr.WithBaseDelay(time.Millisecond))

	if attempts != 4 {
		t.Errorf("attempts = %d, want 4 (initial + 3 retries)", attempts)
	}

	var streamErr *streamerr.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("Do returned %T, want *StreamError", err)
	}
	if streamErr.Classification.Type != streamerr.TypeStreamProcessing {
		t.Errorf("Type = %s, want %s", streamErr.Classification.Type, streamerr.TypeStreamProcessing)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := streamerr.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("request aborted: superseded by newer request")
	}, 3, streamerr.WithBaseDelay(time.Millisecond))

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}

	var streamErr *streamerr.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("Do returned %T, want *StreamError", err)
	}
	if streamErr.Classification.Type != streamerr.TypeAborted {
		t.Errorf("Type = %s, want %s", streamErr.Classification.Type, streamerr.TypeAborted)
	}
	if streamErr.Classification.Retryable {
		t.Error("aborted classification should not be retryable")
	}
}

func TestDo_RecoversMidBudget(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := streamerr.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("network unreachable")
		}
		return nil
	}, 3, streamerr.WithBaseDelay(time.Millisecond))

	if err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDo_ZeroRetriesRunsOnce(t *testing.T) {
	t.Parallel()

	attempts := 0
	_ = streamerr.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("network unreachable")
	}, 0, streamerr.WithBaseDelay(time.Millisecond))

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := streamerr.Do(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("network unreachable")
	}, 3, streamerr.WithBaseDelay(10*time.Millisecond))

	if err == nil {
		t.Fatal("Do returned nil, want error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 after cancellation", attempts)
	}
}
