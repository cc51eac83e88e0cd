package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_api_retries_total",
		Help: "Total number of API retry attempts by error class",
	}, []string{"error_class"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_api_retry_exhausted_total",
		Help: "Total number of API requests that exhausted their retries by error class",
	}, []string{"error_class"})
)

// RetryPolicy holds the transport-level retry configuration.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Backoff is the constant wait between attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy returns the default retry policy: three retries, two
// seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Backoff:    2 * time.Second,
	}
}

// retryWithBackoff runs fn until it succeeds, fails with a non-retryable
// class, or MaxRetries retries have been spent. fn receives the zero-based
// attempt number and reports the class of its failure.
func retryWithBackoff(ctx context.Context, policy RetryPolicy, fn func(attempt int) (ErrorClass, error)) error {
	var lastErr error
	var lastClass ErrorClass

	for attempt := 0; ; attempt++ {
		class, err := fn(attempt)
		if err == nil {
			if attempt > 0 {
				log.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		lastClass = class

		if !shouldRetry(class) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}
		if attempt >= policy.MaxRetries {
			break
		}

		apiRetriesTotal.WithLabelValues(string(class)).Inc()
		log.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt+1).
			Dur("backoff", policy.Backoff).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			log.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-time.After(policy.Backoff):
		}
	}

	apiRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	log.Warn().
		Str("error_class", string(lastClass)).
		Int("attempts", policy.MaxRetries+1).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, policy.MaxRetries+1, lastErr)
}
