package extract

import (
	"errors"
	"math/rand/v2"
	"time"
)

// MaxRetries is the number of attempts per chunk for transient failures.
const MaxRetries = 3

// IsRetryable reports whether err is a transient upstream failure.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns an exponential delay with jitter for the given attempt.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}
