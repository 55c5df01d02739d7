package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Import the PostgreSQL driver

	"github.com/mhalvorsen/sockpool/internal/logging"
)

// SQLStore persists accounts to a SQL database. It shares the database with
// the SQL ledger so an account and its action history can be removed in a
// single transaction.
type SQLStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLStore creates an account store using a SQL database connection.
func NewSQLStore(dsn string) (*SQLStore, error) {
	logger := logging.Get().Named("sql_store")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close() // Close connection if ping fails
		return nil, fmt.Errorf("failed to connect to SQL database: %w", err)
	}

	s := &SQLStore{db: db, logger: logger}

	if err := s.ensureSchema(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	s.logger.Info("SQL Store initialized successfully.")
	return s, nil
}

// ensureSchema creates the accounts table if it doesn't already exist. The
// actions table is created here as well so Delete can always cascade into it,
// even before the first ledger write.
func (s *SQLStore) ensureSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS accounts (
		id VARCHAR(255) PRIMARY KEY,
		credential VARCHAR(255) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS actions (
		id SERIAL PRIMARY KEY,
		account_id VARCHAR(255) NOT NULL,
		action_type VARCHAR(50) NOT NULL,
		target_id VARCHAR(255) NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		content TEXT,
		reason TEXT
	);
	`
	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to execute schema creation query: %w", err)
	}
	return nil
}

// List returns all accounts ordered by id.
func (s *SQLStore) List() ([]Account, error) {
	rows, err := s.db.Query(`SELECT id, credential, status, created_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var acct Account
		var status string
		if err := rows.Scan(&acct.ID, &acct.Credential, &status, &acct.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		acct.Status = Status(status)
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}

// Get returns the account with the given id.
func (s *SQLStore) Get(id string) (Account, error) {
	var acct Account
	var status string
	query := `SELECT id, credential, status, created_at FROM accounts WHERE id = $1`
	err := s.db.QueryRow(query, id).Scan(&acct.ID, &acct.Credential, &status, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("failed to query account: %w", err)
	}
	acct.Status = Status(status)
	return acct, nil
}

// Create saves a new account with active status.
func (s *SQLStore) Create(id, credential string) (Account, error) {
	acct := Account{
		ID:         id,
		Credential: credential,
		Status:     StatusActive,
		CreatedAt:  time.Now().UTC(),
	}
	query := `INSERT INTO accounts (id, credential, status, created_at) VALUES ($1, $2, $3, $4)
	          ON CONFLICT (id) DO NOTHING`
	res, err := s.db.Exec(query, acct.ID, acct.Credential, string(acct.Status), acct.CreatedAt)
	if err != nil {
		return Account{}, fmt.Errorf("failed to insert account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Account{}, fmt.Errorf("failed to check insert result: %w", err)
	}
	if affected == 0 {
		return Account{}, ErrDuplicate
	}

	s.logger.Info("Account created", "account_id", id)
	return acct, nil
}

// UpdateStatus changes the status of an existing account.
func (s *SQLStore) UpdateStatus(id string, status Status) error {
	res, err := s.db.Exec(`UPDATE accounts SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Info("Account status updated", "account_id", id, "status", status)
	return nil
}

// Delete removes the account and its action history in one transaction.
// The actions table is a filtered delete keyed by account id, never a
// schema drop.
func (s *SQLStore) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`DELETE FROM actions WHERE account_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete action history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete transaction: %w", err)
	}

	s.logger.Info("Account and action history deleted", "account_id", id)
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		s.logger.Info("Closing SQL Store database connection...")
		return s.db.Close()
	}
	return nil
}
