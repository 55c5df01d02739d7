// Package cooldown decides whether an account/action pair is eligible
// again, given the minimum time required between successive actions.
package cooldown

import (
	"context"
	"time"
)

// Eligible reports whether enough time has passed since the last action and,
// if not, how long remains. A zero last-action time means the action never
// happened and is always eligible. The boundary is closed on the eligible
// side: remaining of exactly zero is eligible.
func Eligible(last time.Time, cooldown time.Duration, now time.Time) (bool, time.Duration) {
	if last.IsZero() {
		return true, 0
	}
	remaining := cooldown - now.Sub(last)
	if remaining <= 0 {
		return true, 0
	}
	return false, remaining
}

// Wait blocks until the remaining cooldown has elapsed or the context is
// done. It uses a single timer against a fixed deadline, not a recomputing
// poll loop.
func Wait(ctx context.Context, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
