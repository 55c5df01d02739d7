package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mhalvorsen/sockpool/internal/logging"
)

const defaultAccountsFileName = "sockpool-accounts.json"

// FileStore persists accounts to a JSON file.
type FileStore struct {
	mu       sync.RWMutex
	filePath string
	accounts map[string]Account // keyed by account ID
	logger   logging.Logger
}

// NewFileStore creates or loads an account store backed by a file.
func NewFileStore(dir string) (*FileStore, error) {
	logger := logging.Get().Named("file_store")
	if dir == "" {
		dir = "."
	}
	filePath := filepath.Join(dir, defaultAccountsFileName)

	s := &FileStore{
		filePath: filePath,
		accounts: make(map[string]Account),
		logger:   logger,
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load accounts from %s: %w", filePath, err)
	}

	s.logger.Info("FileStore initialized.", "path", filePath, "loaded_accounts", len(s.accounts))
	return s, nil
}

// load reads the accounts file and populates the map.
func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err // Handles os.IsNotExist
	}

	if len(data) == 0 {
		s.accounts = make(map[string]Account)
		return nil
	}

	var loaded []Account
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to unmarshal accounts file %s: %w", s.filePath, err)
	}

	accounts := make(map[string]Account, len(loaded))
	for _, acct := range loaded {
		accounts[acct.ID] = acct
	}
	s.accounts = accounts
	return nil
}

// save writes the accounts back to the file, sorted by id for stable output.
func (s *FileStore) save() error {
	list := make([]Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		list = append(list, acct)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}

	// Write atomically via temp file rename
	tempFilePath := s.filePath + ".tmp"
	if err := os.WriteFile(tempFilePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp accounts file %s: %w", tempFilePath, err)
	}

	if err := os.Rename(tempFilePath, s.filePath); err != nil {
		_ = os.Remove(tempFilePath) // Attempt cleanup on rename error
		return fmt.Errorf("failed to rename temp accounts file to %s: %w", s.filePath, err)
	}

	return nil
}

// List returns all accounts sorted by id.
func (s *FileStore) List() ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		list = append(list, acct)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Get returns the account with the given id.
func (s *FileStore) Get(id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

// Create saves a new account with active status.
func (s *FileStore) Create(id, credential string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[id]; exists {
		return Account{}, ErrDuplicate
	}

	acct := Account{
		ID:         id,
		Credential: credential,
		Status:     StatusActive,
		CreatedAt:  time.Now().UTC(),
	}
	s.accounts[id] = acct

	if err := s.save(); err != nil {
		delete(s.accounts, id)
		return Account{}, err
	}

	s.logger.Info("Account created", "account_id", id)
	return acct, nil
}

// UpdateStatus changes the status of an existing account.
func (s *FileStore) UpdateStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}

	previous := acct.Status
	acct.Status = status
	s.accounts[id] = acct

	if err := s.save(); err != nil {
		acct.Status = previous
		s.accounts[id] = acct
		return err
	}

	s.logger.Info("Account status updated", "account_id", id, "status", status)
	return nil
}

// Delete removes the account. The caller is responsible for removing the
// account's ledger history alongside (the file backends keep them in
// separate files).
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.accounts, id)
	if err := s.save(); err != nil {
		s.accounts[id] = acct
		return err
	}

	s.logger.Info("Account deleted", "account_id", id)
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
