package flagstore

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// ConflictRetryPolicy creates the backoff used by one Upsert call to pace its retries after a
// lost compare-and-swap race. A fresh backoff is requested per call since backoffs are stateful.
type ConflictRetryPolicy func() retry.Backoff

// RetryForever retries immediately and never gives up. An Upsert with this policy only returns
// once its write wins or turns out to be stale, or its context is done.
func RetryForever() ConflictRetryPolicy {
	return func() retry.Backoff {
		return retry.BackoffFunc(func() (time.Duration, bool) {
			return 0, false
		})
	}
}

// RetryWithBackoff retries up to maxRetries times with jittered Fibonacci backoff starting at
// base and capped at maxWait.
func RetryWithBackoff(maxRetries uint64, base, maxWait time.Duration) ConflictRetryPolicy {
	if base <= 0 {
		return RetryAtMost(maxRetries)
	}
	return func() retry.Backoff {
		b := retry.NewFibonacci(base)
		b = retry.WithJitterPercent(20, b)
		if maxWait > 0 {
			b = retry.WithCappedDuration(maxWait, b)
		}
		return retry.WithMaxRetries(maxRetries, b)
	}
}

// RetryAtMost retries immediately up to maxRetries times.
func RetryAtMost(maxRetries uint64) ConflictRetryPolicy {
	return func() retry.Backoff {
		return retry.WithMaxRetries(maxRetries, retry.BackoffFunc(func() (time.Duration, bool) {
			return 0, false
		}))
	}
}
