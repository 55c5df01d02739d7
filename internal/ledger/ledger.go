package ledger

import (
	"time"
)

// Record stores information about a performed action. Records are
// append-only and never mutated after insertion.
type Record struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	ActionType string    `json:"action_type"`
	TargetID   string    `json:"target_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Content    string    `json:"content,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Ledger defines the interface for recording actions and checking history.
// The full history is retained: HasPerformed needs every (account, action,
// target) triple ever written, not just the latest per account.
type Ledger interface {
	Record(rec Record) error
	HasPerformed(accountID, actionType, targetID string) (bool, error)
	LastActionTime(accountID, actionType string) (time.Time, bool, error)
	// DeleteAccountHistory removes every record for the account. Used when
	// the account itself is deleted.
	DeleteAccountHistory(accountID string) error
	Close() error
}
