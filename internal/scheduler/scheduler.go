// Package scheduler exposes one operation to callers: acquire a working,
// authenticated account.
package scheduler

import (
	"context"
	"time"

	"github.com/mhalvorsen/sockpool/internal/login"
	"github.com/mhalvorsen/sockpool/internal/logging"
	"github.com/mhalvorsen/sockpool/internal/selector"
)

// AuthenticatedAccount identifies a logged-in account. The caller uses the
// id for subsequent ledger recording; the credential is deliberately absent.
type AuthenticatedAccount struct {
	ID              string
	SelectionReason selector.Reason
	LoggedInAt      time.Time
}

// Scheduler composes selection, login, and ban handling behind a single
// call. Each AcquireSession runs with a fresh selection context; nothing is
// cached across calls.
type Scheduler struct {
	controller *login.Controller
	logger     logging.Logger
}

// New creates a Scheduler.
func New(controller *login.Controller) *Scheduler {
	return &Scheduler{
		controller: controller,
		logger:     logging.Get().Named("scheduler"),
	}
}

// AcquireSession returns an authenticated account or a terminal error. All
// internal retry loops are count- or time-bounded, so the caller gets an
// answer, never a hang. selector.ErrNoEligibleAccount is the only
// selection-related error that reaches the caller.
func (s *Scheduler) AcquireSession(ctx context.Context) (AuthenticatedAccount, error) {
	acct, reason, err := s.controller.Acquire(ctx)
	if err != nil {
		s.logger.Warn("Session acquisition failed", "error", err)
		return AuthenticatedAccount{}, err
	}

	auth := AuthenticatedAccount{
		ID:              acct.ID,
		SelectionReason: reason,
		LoggedInAt:      time.Now().UTC(),
	}
	s.logger.Info("Session acquired", "account_id", auth.ID, "reason", auth.SelectionReason)
	return auth, nil
}
