package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Import the PostgreSQL driver

	"github.com/mhalvorsen/sockpool/internal/logging"
)

// SQLMemory persists bookkeeping items to a SQL database.
type SQLMemory struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLMemory creates a memory store using a SQL database connection.
func NewSQLMemory(dsn string) (*SQLMemory, error) {
	logger := logging.Get().Named("sql_memory")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to SQL database: %w", err)
	}

	m := &SQLMemory{db: db, logger: logger}

	query := `
	CREATE TABLE IF NOT EXISTS memory_items (
		key VARCHAR(255) PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`
	if _, err := m.db.Exec(query); err != nil {
		m.db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	m.logger.Info("SQL Memory initialized successfully.")
	return m, nil
}

// Set stores or overwrites an item.
func (m *SQLMemory) Set(key, value string) error {
	query := `INSERT INTO memory_items (key, value, updated_at) VALUES ($1, $2, $3)
	          ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := m.db.Exec(query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert memory item: %w", err)
	}
	return nil
}

// Get retrieves an item.
func (m *SQLMemory) Get(key string) (string, bool, error) {
	var value string
	err := m.db.QueryRow(`SELECT value FROM memory_items WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to query memory item: %w", err)
	}
	return value, true, nil
}

// Delete removes an item. Deleting a missing key is not an error.
func (m *SQLMemory) Delete(key string) error {
	if _, err := m.db.Exec(`DELETE FROM memory_items WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete memory item: %w", err)
	}
	return nil
}

// Clear removes all items.
func (m *SQLMemory) Clear() error {
	if _, err := m.db.Exec(`DELETE FROM memory_items`); err != nil {
		return fmt.Errorf("failed to clear memory items: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (m *SQLMemory) Close() error {
	if m.db != nil {
		m.logger.Info("Closing SQL Memory database connection...")
		return m.db.Close()
	}
	return nil
}
