package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Import the PostgreSQL driver

	"github.com/mhalvorsen/sockpool/internal/logging"
)

// SQLLedger persists action history to a SQL database. All accounts share a
// single actions table keyed by account id.
type SQLLedger struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLLedger creates a ledger using a SQL database connection.
func NewSQLLedger(dsn string) (*SQLLedger, error) {
	logger := logging.Get().Named("sql_ledger")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close() // Close connection if ping fails
		return nil, fmt.Errorf("failed to connect to SQL database: %w", err)
	}

	l := &SQLLedger{db: db, logger: logger}

	if err := l.ensureSchema(); err != nil {
		l.db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	l.logger.Info("SQL Ledger initialized successfully.")
	return l, nil
}

// ensureSchema creates the actions table if it doesn't already exist.
func (l *SQLLedger) ensureSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS actions (
		id SERIAL PRIMARY KEY,
		account_id VARCHAR(255) NOT NULL,
		action_type VARCHAR(50) NOT NULL,
		target_id VARCHAR(255) NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		content TEXT,
		reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_actions_account_type_time ON actions (account_id, action_type, occurred_at DESC);
	CREATE INDEX IF NOT EXISTS idx_actions_account_type_target ON actions (account_id, action_type, target_id);
	`
	_, err := l.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to execute schema creation query: %w", err)
	}
	return nil
}

// Record appends an action record.
func (l *SQLLedger) Record(rec Record) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	query := `INSERT INTO actions (account_id, action_type, target_id, occurred_at, content, reason) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := l.db.Exec(query, rec.AccountID, rec.ActionType, rec.TargetID, rec.OccurredAt, rec.Content, rec.Reason)
	if err != nil {
		return fmt.Errorf("failed to insert action record into database: %w", err)
	}
	l.logger.Info("Recorded action", "account_id", rec.AccountID, "action_type", rec.ActionType, "target_id", rec.TargetID)
	return nil
}

// HasPerformed reports whether the account already performed the action on the target.
func (l *SQLLedger) HasPerformed(accountID, actionType, targetID string) (bool, error) {
	var one int
	query := `SELECT 1 FROM actions WHERE account_id = $1 AND action_type = $2 AND target_id = $3 LIMIT 1`
	err := l.db.QueryRow(query, accountID, actionType, targetID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query performed actions: %w", err)
	}
	return true, nil
}

// LastActionTime returns the timestamp of the account's most recent action of the given type.
func (l *SQLLedger) LastActionTime(accountID, actionType string) (time.Time, bool, error) {
	var lastTime time.Time
	query := `SELECT occurred_at FROM actions WHERE account_id = $1 AND action_type = $2 ORDER BY occurred_at DESC LIMIT 1`
	err := l.db.QueryRow(query, accountID, actionType).Scan(&lastTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to query last action time: %w", err)
	}
	return lastTime, true, nil
}

// DeleteAccountHistory removes all records for the account. This is a
// filtered delete on the shared table, never a schema drop.
func (l *SQLLedger) DeleteAccountHistory(accountID string) error {
	_, err := l.db.Exec(`DELETE FROM actions WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account history: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (l *SQLLedger) Close() error {
	if l.db != nil {
		l.logger.Info("Closing SQL Ledger database connection...")
		return l.db.Close()
	}
	return nil
}
