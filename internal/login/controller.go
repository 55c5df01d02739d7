// Package login drives the bounded-retry login state machine:
// Selecting -> Authenticating -> {Succeeded | Exhausted}.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mhalvorsen/sockpool/internal/bandetect"
	"github.com/mhalvorsen/sockpool/internal/identity"
	"github.com/mhalvorsen/sockpool/internal/logging"
	"github.com/mhalvorsen/sockpool/internal/selector"
	"github.com/mhalvorsen/sockpool/internal/session"
	"github.com/mhalvorsen/sockpool/internal/store"
)

// Controller coordinates account selection, credential submission, ban
// detection, and identity rotation under per-account attempt caps. All of
// its loops are count- or time-bounded; exhaustion is a reachable terminal
// state, never an emergent property of scattered breaks.
type Controller struct {
	selector *selector.Selector
	store    store.Store
	driver   session.Driver
	rotator  identity.Rotator
	detector bandetect.Detector

	maxAttempts int
	window      time.Duration
	poll        time.Duration
	logger      logging.Logger

	// Injectable for tests.
	now   func() time.Time
	sleep func(d time.Duration)
}

// Options bounds the controller's retry behavior.
type Options struct {
	MaxAttemptsPerAccount int
	LoginTimeoutWindow    time.Duration
	LoginPollInterval     time.Duration
}

// NewController creates a Controller. The rotator is an explicitly injected
// dependency, never a process-wide singleton.
func NewController(sel *selector.Selector, st store.Store, drv session.Driver, rot identity.Rotator, det bandetect.Detector, opts Options) *Controller {
	if opts.MaxAttemptsPerAccount <= 0 {
		opts.MaxAttemptsPerAccount = 5
	}
	if opts.LoginTimeoutWindow <= 0 {
		opts.LoginTimeoutWindow = 10 * time.Second
	}
	if opts.LoginPollInterval <= 0 {
		opts.LoginPollInterval = 500 * time.Millisecond
	}
	return &Controller{
		selector:    sel,
		store:       st,
		driver:      drv,
		rotator:     rot,
		detector:    det,
		maxAttempts: opts.MaxAttemptsPerAccount,
		window:      opts.LoginTimeoutWindow,
		poll:        opts.LoginPollInterval,
		logger:      logging.Get().Named("login"),
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Acquire runs the state machine until an account is authenticated or no
// eligible account remains. The exclusion set accumulates for the duration
// of one call: an account that burned its attempt budget, or was detected
// banned, is never re-chosen within the same call, which also prevents the
// selector from oscillating between exactly two failing accounts.
func (c *Controller) Acquire(ctx context.Context) (store.Account, selector.Reason, error) {
	excluded := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return store.Account{}, "", err
		}

		// Selecting
		acct, reason, err := c.selector.Select(excluded)
		if err != nil {
			if errors.Is(err, selector.ErrNoEligibleAccount) {
				c.logger.Warn("Exhausted: no eligible account remains", "excluded", len(excluded))
			}
			return store.Account{}, "", err
		}
		acctLogger := c.logger.With("account_id", acct.ID)
		acctLogger.Info("Attempting login", "reason", reason)

		// Authenticating: bounded per-account retries. A ban verdict below
		// breaks out without consuming another account's budget; the counter
		// is scoped to this account only.
		banned := false
		authenticated := false
		for attempts := 0; attempts < c.maxAttempts; {
			if err := ctx.Err(); err != nil {
				return store.Account{}, "", err
			}

			if err := c.driver.SubmitCredentials(acct.ID, acct.Credential); err != nil {
				// Credential-entry fields never locatable: counts like a timeout.
				attempts++
				acctLogger.Warn("Could not submit credentials", "attempt", attempts, "max_attempts", c.maxAttempts, "error", err)
				c.retryPrep(ctx, acctLogger)
				continue
			}

			if !c.waitLoginSurfaceCleared(ctx) {
				attempts++
				acctLogger.Warn("Login surface did not clear within window", "attempt", attempts, "max_attempts", c.maxAttempts, "window", c.window)
				if attempts < c.maxAttempts {
					c.retryPrep(ctx, acctLogger)
				}
				continue
			}

			// Left the login surface: consult the ban detector before
			// declaring success.
			msg, present := c.driver.BanSignal()
			verdict := c.detector.Inspect(msg, present)
			if verdict.Banned {
				acctLogger.Warn("Ban detected, marking account banned", "reason", verdict.Reason)
				if err := c.store.UpdateStatus(acct.ID, store.StatusBanned); err != nil {
					// The store is the single source of truth for status; a
					// failed write means the account could be selected again,
					// so this cannot be absorbed.
					return store.Account{}, "", fmt.Errorf("failed to mark account %s banned: %w", acct.ID, err)
				}
				banned = true
				break
			}

			authenticated = true
			break
		}

		if authenticated {
			acctLogger.Info("Login succeeded")
			return acct, reason, nil
		}

		// A ban is terminal for the account; a timeout merely excludes it
		// for this run while it stays active in the store.
		excluded[acct.ID] = struct{}{}
		if banned {
			acctLogger.Info("Reselecting after ban")
		} else {
			acctLogger.Warn("Max login attempts reached, excluding account for this run", "max_attempts", c.maxAttempts)
		}
	}
}

// waitLoginSurfaceCleared polls until the driver leaves the login surface or
// the window expires. Sub-second granularity within a fixed deadline.
func (c *Controller) waitLoginSurfaceCleared(ctx context.Context) bool {
	deadline := c.now().Add(c.window)
	for {
		if !c.driver.OnLoginSurface() {
			return true
		}
		if !c.now().Before(deadline) || ctx.Err() != nil {
			return false
		}
		c.sleep(c.poll)
	}
}

// retryPrep rotates the network identity and clears session state before the
// next attempt on the same account. Rotation is a mitigation, not a
// precondition: failures are logged and the retry proceeds unaided.
func (c *Controller) retryPrep(ctx context.Context, logger logging.Logger) {
	if err := c.rotator.Rotate(ctx); err != nil {
		logger.Warn("Identity rotation failed, retrying login without it", "error", err)
	}
	c.driver.ClearCookies()
}
