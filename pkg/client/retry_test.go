package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, Backoff: 5 * time.Millisecond}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", p.MaxRetries)
	}
	if p.Backoff != 2*time.Second {
		t.Errorf("Backoff = %v, want 2s", p.Backoff)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastPolicy(3), func(int) (ErrorClass, error) {
		calls++
		return "", nil
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastPolicy(3), func(attempt int) (ErrorClass, error) {
		calls++
		if attempt < 2 {
			return ErrorClassNetwork, errors.New("connection reset")
		}
		return "", nil
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	calls := 0
	testErr := errors.New("timeout")
	err := retryWithBackoff(context.Background(), fastPolicy(3), func(int) (ErrorClass, error) {
		calls++
		return ErrorClassNetwork, testErr
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("error = %v, should wrap the last attempt error", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want MaxRetries+1 = 4", calls)
	}
}

func TestRetryWithBackoff_ZeroRetries(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastPolicy(0), func(int) (ErrorClass, error) {
		calls++
		return ErrorClassServer, errors.New("502")
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	calls := 0
	testErr := errors.New("bad request")
	err := retryWithBackoff(context.Background(), fastPolicy(3), func(int) (ErrorClass, error) {
		calls++
		return ErrorClassClient, testErr
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for client errors)", calls)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("client errors must not report ErrRetryExhausted")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("error = %v, want original error", err)
	}
}

func TestRetryWithBackoff_ConstantBackoff(t *testing.T) {
	var stamps []time.Time
	policy := RetryPolicy{MaxRetries: 2, Backoff: 30 * time.Millisecond}

	_ = retryWithBackoff(context.Background(), policy, func(int) (ErrorClass, error) {
		stamps = append(stamps, time.Now())
		return ErrorClassServer, errors.New("503")
	})

	if len(stamps) != 3 {
		t.Fatalf("attempts = %d, want 3", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		if gap < 30*time.Millisecond || gap > 500*time.Millisecond {
			t.Errorf("gap %d = %v, want about 30ms", i, gap)
		}
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, Backoff: time.Second}

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := retryWithBackoff(ctx, policy, func(int) (ErrorClass, error) {
		calls++
		return ErrorClassNetwork, errors.New("timeout")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("cancellation did not interrupt the backoff")
	}
}
