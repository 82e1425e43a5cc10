// Package retry provides the shared exponential-backoff helper used by voice
// discovery, capability probing, and job-level reruns.
package retry

import (
	"context"
	"time"
)

// DefaultMaxAttempts bounds retry loops when callers pass zero.
const DefaultMaxAttempts = 3

// Policy retries an operation with exponential backoff between attempts.
// After attempt n fails (1-based), the policy waits BaseDelay * 2^n before
// the next attempt; there is no wait after the final attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is injectable for deterministic tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy builds a policy with sane defaults for zero values.
func NewPolicy(maxAttempts int, baseDelay time.Duration) Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, sleep: sleepContext}
}

// OnRetry is notified after a failed attempt, before the backoff wait.
type OnRetry func(attempt int, wait time.Duration, err error)

// Do runs op up to MaxAttempts times, returning the first success or the
// last error. A retryable gate may stop the loop early by returning false.
func (p Policy) Do(ctx context.Context, op func(attempt int) error, retryable func(error) bool, onRetry OnRetry) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, lastErr)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

// Delay returns the backoff wait after the given 1-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * (1 << attempt)
}

// sleepContext waits for d unless the context is cancelled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewPolicyForTests builds a policy with an injected sleep function.
func NewPolicyForTests(maxAttempts int, baseDelay time.Duration, sleep func(ctx context.Context, d time.Duration) error) Policy {
	p := NewPolicy(maxAttempts, baseDelay)
	p.sleep = sleep
	return p
}
