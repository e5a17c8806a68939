package webhook

import (
	"time"

	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// MaxRetries is the number of retries after the initial attempt.
const MaxRetries = 3

// Backoff returns the delay before retry n (n = 1..MaxRetries): 2^n seconds.
func Backoff(n int) time.Duration {
	return model.ExponentialDelay(n)
}

// NextAttempt reports whether another attempt follows a failed attempt with the given
// 0-based retry index, and the delay before it.
func NextAttempt(failedRetry int) (time.Duration, bool) {
	next := failedRetry + 1
	if next > MaxRetries {
		return 0, false
	}
	return Backoff(next), true
}
