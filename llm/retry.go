package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls automatic retries for retryable provider errors.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the first backoff delay in seconds.
	BaseDelay float64
	// MaxDelay caps the backoff delay in seconds.
	MaxDelay float64
	// BackoffMultiplier scales the delay between attempts.
	BackoffMultiplier float64
	// Jitter randomizes each delay by up to ±50%.
	Jitter bool
	// OnRetry, if set, is called before each retry with the attempt
	// number (1-based) and the error that triggered it.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns the standard policy: two retries with
// exponential backoff and jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay computes the backoff before the given retry attempt (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay * math.Pow(p.BackoffMultiplier, float64(attempt))
	delay = math.Min(delay, p.MaxDelay)
	if p.Jitter {
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

// Retry runs fn, retrying retryable errors per the policy. A RetryAfter
// hint from the provider overrides the computed backoff; if the hint exceeds
// MaxDelay the error is returned immediately.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return result, err
		}

		delay := policy.Delay(attempt)
		if rle, ok := err.(*RateLimitError); ok && rle.RetryAfter != nil {
			if *rle.RetryAfter > policy.MaxDelay {
				return result, err
			}
			delay = time.Duration(*rle.RetryAfter * float64(time.Second))
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, &AbortError{ClientError{Message: "request aborted during retry backoff", Cause: ctx.Err()}}
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return result, err
}
