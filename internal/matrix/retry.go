package matrix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Retry configuration constants
const (
	MaxRetryAttempts  = 3
	InitialBackoff    = 500 * time.Millisecond
	MaxBackoff        = 5 * time.Second
	BackoffMultiplier = 2.0
)

// RetryableStatusCodes are HTTP status codes that should trigger a retry
var RetryableStatusCodes = []int{
	http.StatusTooManyRequests,     // 429 - M_LIMIT_EXCEEDED
	http.StatusServiceUnavailable,  // 503
	http.StatusGatewayTimeout,      // 504
	http.StatusBadGateway,          // 502
	http.StatusInternalServerError, // 500
}

// RetryPolicy bounds how often and how fast a request is repeated.
type RetryPolicy struct {
	Attempts int
	Backoff  func(attempt int) time.Duration
}

// DefaultRetryPolicy retries transient failures three times with
// exponential backoff.
var DefaultRetryPolicy = RetryPolicy{
	Attempts: MaxRetryAttempts,
	Backoff:  CalculateBackoff,
}

// ShouldRetry checks if the status code indicates a transient failure
func ShouldRetry(statusCode int) bool {
	for _, code := range RetryableStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

// CalculateBackoff returns the backoff duration for a given attempt number
func CalculateBackoff(attempt int) time.Duration {
	backoff := InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * BackoffMultiplier)
		if backoff > MaxBackoff {
			backoff = MaxBackoff
			break
		}
	}
	return backoff
}

// RetryableFunc is a function that can be retried
type RetryableFunc[T any] func() (T, error)

// WithRetry executes fn, repeating it while it fails with an *APIError
// carrying a retryable status code. Other errors are returned immediately.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, fn RetryableFunc[T]) (T, error) {
	var lastErr error
	var zero T

	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("operation cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !ShouldRetry(apiErr.StatusCode) {
			return zero, err
		}

		if attempt < attempts-1 && policy.Backoff != nil {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("operation cancelled: %w", ctx.Err())
			case <-time.After(policy.Backoff(attempt)):
			}
		}
	}

	return zero, fmt.Errorf("max retry attempts (%d) exceeded: %w", attempts, lastErr)
}
