package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RetryConfig configures exponential backoff
type RetryConfig struct {
	MaxRetries int           // Attempts in total, including the first
	BaseDelay  time.Duration // Delay after the first failure
	MaxDelay   time.Duration // Upper bound for any single delay
	Multiplier float64       // Growth factor between delays
}

// DefaultRetryConfig returns the retry policy used for remote providers
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier: BackoffMultiplier,
	}
}

// delay returns the wait before attempt n+1, n counting from zero
func (c RetryConfig) delay(n int) time.Duration {
	d := c.BaseDelay
	for i := 0; i < n; i++ {
		d = time.Duration(float64(d) * c.Multiplier)
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}

// statusError is a non-200 answer from an embeddings endpoint
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.code, e.body)
}

// retryable reports whether err may succeed on another attempt. Client
// errors other than timeouts and rate limiting are permanent.
func retryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return true
	}
	switch {
	case se.code == http.StatusTooManyRequests, se.code == http.StatusRequestTimeout:
		return true
	case se.code >= 400 && se.code < 500:
		return false
	}
	return true
}

// retryWithBackoff calls fn until it succeeds, returns a permanent error,
// the context ends or the attempts run out. The last error is returned.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
		if !retryable(err) || attempt == config.MaxRetries-1 {
			break
		}

		timer := time.NewTimer(config.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
