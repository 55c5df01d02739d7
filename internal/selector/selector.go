// Package selector implements the three-tier account selection algorithm.
package selector

import (
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/mhalvorsen/sockpool/internal/cooldown"
	"github.com/mhalvorsen/sockpool/internal/ledger"
	"github.com/mhalvorsen/sockpool/internal/logging"
	"github.com/mhalvorsen/sockpool/internal/store"
)

// ErrNoEligibleAccount is returned when every active account is excluded or
// none exist.
var ErrNoEligibleAccount = errors.New("no eligible account")

// Reason states which tier produced the selected account.
type Reason string

const (
	// ReasonNeverActed: the account has no recorded action of this type.
	ReasonNeverActed Reason = "never_acted"
	// ReasonCooldownExpired: the account's last action is older than the cooldown.
	ReasonCooldownExpired Reason = "cooldown_expired"
	// ReasonLeastRecentlyActed: the account acted longest ago among the remainder.
	ReasonLeastRecentlyActed Reason = "least_recently_acted"
)

// Selector picks the most suitable account for the next session. It is
// read-only: status mutation belongs to ban detection, never to selection,
// and live status is re-read from the store on every call.
type Selector struct {
	store      store.Store
	ledger     *ledger.Gateway
	cooldownD  time.Duration
	actionType string
	logger     logging.Logger

	// Injectable for tests.
	now  func() time.Time
	intn func(n int) int
}

// New creates a Selector.
func New(st store.Store, gw *ledger.Gateway, cooldownDuration time.Duration, actionType string) *Selector {
	return &Selector{
		store:      st,
		ledger:     gw,
		cooldownD:  cooldownDuration,
		actionType: actionType,
		logger:     logging.Get().Named("selector"),
		now:        time.Now,
		intn:       rand.Intn,
	}
}

type candidate struct {
	account store.Account
	last    time.Time
	hasLast bool
}

// Select returns an eligible account, evaluated in strict tier order:
//  1. active accounts that never performed the action: uniform random pick
//  2. accounts whose cooldown has expired: the most cooldown-elapsed wins
//  3. the least-recently-acted account, ties broken by account id
//
// Accounts in excluded are skipped in every tier.
func (s *Selector) Select(excluded map[string]struct{}) (store.Account, Reason, error) {
	accounts, err := s.store.List()
	if err != nil {
		return store.Account{}, "", err
	}

	now := s.now()

	var fresh []store.Account
	var acted []candidate
	for _, acct := range accounts {
		if acct.Status != store.StatusActive {
			continue
		}
		if _, skip := excluded[acct.ID]; skip {
			s.logger.Debug("Skipping excluded account", "account_id", acct.ID)
			continue
		}
		last, ok := s.ledger.LastActionTime(acct.ID, s.actionType)
		if !ok {
			fresh = append(fresh, acct)
			continue
		}
		acted = append(acted, candidate{account: acct, last: last, hasLast: true})
	}

	// Tier 1: never acted. Uniform random keeps fresh accounts from being
	// burned in a fixed order.
	if len(fresh) > 0 {
		acct := fresh[s.intn(len(fresh))]
		s.logger.Info("Selected account", "account_id", acct.ID, "reason", ReasonNeverActed, "fresh_candidates", len(fresh))
		return acct, ReasonNeverActed, nil
	}

	// Oldest last-action first; id breaks ties deterministically.
	sort.Slice(acted, func(i, j int) bool {
		if acted[i].last.Equal(acted[j].last) {
			return acted[i].account.ID < acted[j].account.ID
		}
		return acted[i].last.Before(acted[j].last)
	})

	// Tier 2: cooldown expired. Sorted order makes this the most
	// cooldown-elapsed candidate rather than whichever the store
	// enumerated first.
	for _, c := range acted {
		if ok, _ := cooldown.Eligible(c.last, s.cooldownD, now); ok {
			s.logger.Info("Selected account", "account_id", c.account.ID, "reason", ReasonCooldownExpired, "last_action", c.last)
			return c.account, ReasonCooldownExpired, nil
		}
	}

	// Tier 3: least recently acted.
	if len(acted) > 0 {
		c := acted[0]
		s.logger.Info("Selected account", "account_id", c.account.ID, "reason", ReasonLeastRecentlyActed, "last_action", c.last)
		return c.account, ReasonLeastRecentlyActed, nil
	}

	s.logger.Warn("No suitable account found", "excluded", len(excluded))
	return store.Account{}, "", ErrNoEligibleAccount
}
