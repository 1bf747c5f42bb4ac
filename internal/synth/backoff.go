package synth

import (
	"context"
	"math/rand/v2"
	"time"
)

// backoffDelay computes the wait before the next attempt. attempt is
// the number of the try that just failed, starting at 1. A server
// retry hint always wins over the computed schedule, even past
// MaxDelay; the server knows its own window.
func (c Config) backoffDelay(attempt int, apiErr *APIError) time.Duration {
	if apiErr != nil && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	base := c.RetryBaseDelay
	if apiErr != nil && apiErr.Class == RateLimited {
		base = c.RateLimitDelay
	}
	delay := c.MaxDelay
	if shift := attempt - 1; shift < 16 {
		if d := base << shift; d < delay {
			delay = d
		}
	}
	delay += time.Duration(rand.Int64N(int64(base)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// sleepContext waits for d or until ctx is canceled, whichever comes
// first. A sleeping chunk holds no lock and occupies no network slot.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
