package ledger

import (
	"time"

	"github.com/mhalvorsen/sockpool/internal/logging"
)

// Gateway is a thin façade over a Ledger for the scheduler. Ledger failures
// are absorbed here: a record that cannot be written is logged and the
// action, which already happened externally, is not rolled back. Query
// errors are logged and answered with the safe default (no history).
// Retries, if desired, are the ledger's own concern.
type Gateway struct {
	ledger Ledger
	logger logging.Logger
}

// NewGateway wraps a Ledger.
func NewGateway(l Ledger) *Gateway {
	return &Gateway{
		ledger: l,
		logger: logging.Get().Named("ledger_gateway"),
	}
}

// Record writes an action record. The returned error is informational; the
// caller proceeds regardless.
func (g *Gateway) Record(accountID, actionType, targetID, content, reason string) error {
	err := g.ledger.Record(Record{
		AccountID:  accountID,
		ActionType: actionType,
		TargetID:   targetID,
		OccurredAt: time.Now().UTC(),
		Content:    content,
		Reason:     reason,
	})
	if err != nil {
		g.logger.Error("Failed to record action; continuing", "account_id", accountID, "action_type", actionType, "target_id", targetID, "error", err)
	}
	return err
}

// HasPerformed reports whether the account already acted on the target.
// On query error the account is treated as not having acted.
func (g *Gateway) HasPerformed(accountID, actionType, targetID string) bool {
	done, err := g.ledger.HasPerformed(accountID, actionType, targetID)
	if err != nil {
		g.logger.Warn("Error checking performed actions, treating as not performed", "account_id", accountID, "target_id", targetID, "error", err)
		return false
	}
	return done
}

// LastActionTime returns the account's most recent action time of the given
// type. On query error the account is treated as having no history.
func (g *Gateway) LastActionTime(accountID, actionType string) (time.Time, bool) {
	last, ok, err := g.ledger.LastActionTime(accountID, actionType)
	if err != nil {
		g.logger.Warn("Error querying last action time, treating as no history", "account_id", accountID, "action_type", actionType, "error", err)
		return time.Time{}, false
	}
	return last, ok
}
