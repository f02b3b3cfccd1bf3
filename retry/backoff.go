// Package retry implements the bounded exponential backoff used by the
// chain scraper for provider RPCs and missing receipts. The checkpoint
// quorum syncer does not use it; it skips a validator whose storage errors.
package retry

import (
	"context"
	"time"
)

// Policy bounds a retry loop's delay and attempt count.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is a reasonable default: 5 attempts, doubling from 200ms,
// capped at 10s.
var DefaultPolicy = Policy{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second}

// Do calls fn until it succeeds, the policy's attempt budget is
// exhausted, or ctx is cancelled. It returns the last error on exhaustion.
func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	var lastErr error
	delay := p.BaseDelay
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
