package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhalvorsen/sockpool/internal/logging"
)

const defaultLedgerFileName = "sockpool-actions.json"

// FileLedger persists action history to a JSON file.
type FileLedger struct {
	mu       sync.RWMutex
	filePath string
	lastMap  map[string]Record   // (accountID|actionType) -> latest record, for cooldown lookups
	done     map[string]struct{} // (accountID|actionType|targetID) -> performed, for dedup
	records  []Record            // full history, for persistence and dedup correctness
	logger   logging.Logger
}

func lastKey(accountID, actionType string) string {
	return accountID + "|" + actionType
}

func doneKey(accountID, actionType, targetID string) string {
	return accountID + "|" + actionType + "|" + targetID
}

// NewFileLedger creates or loads a ledger backed by a file.
func NewFileLedger(dir string) (*FileLedger, error) {
	logger := logging.Get().Named("file_ledger")
	if dir == "" {
		dir = "."
	}
	filePath := filepath.Join(dir, defaultLedgerFileName)

	l := &FileLedger{
		filePath: filePath,
		lastMap:  make(map[string]Record),
		done:     make(map[string]struct{}),
		records:  []Record{},
		logger:   logger,
	}

	if err := l.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load ledger history from %s: %w", filePath, err)
	}

	l.logger.Info("FileLedger initialized.", "path", filePath, "loaded_records", len(l.records))
	return l, nil
}

// load reads the history file and rebuilds the lookup maps.
func (l *FileLedger) load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return err // Handles os.IsNotExist
	}

	if len(data) == 0 {
		l.lastMap = make(map[string]Record)
		l.done = make(map[string]struct{})
		l.records = []Record{}
		return nil
	}

	var loaded []Record
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to unmarshal ledger file %s: %w", l.filePath, err)
	}

	l.records = loaded
	l.rebuildIndexes()
	return nil
}

// rebuildIndexes repopulates lastMap and done from the full record list.
// Caller must hold the write lock.
func (l *FileLedger) rebuildIndexes() {
	lastMap := make(map[string]Record)
	done := make(map[string]struct{})
	for _, rec := range l.records {
		key := lastKey(rec.AccountID, rec.ActionType)
		if current, exists := lastMap[key]; !exists || rec.OccurredAt.After(current.OccurredAt) {
			lastMap[key] = rec
		}
		done[doneKey(rec.AccountID, rec.ActionType, rec.TargetID)] = struct{}{}
	}
	l.lastMap = lastMap
	l.done = done
}

// save writes the current full record list back to the file.
func (l *FileLedger) save() error {
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger history: %w", err)
	}

	// Write atomically via temp file rename
	tempFilePath := l.filePath + ".tmp"
	if err := os.WriteFile(tempFilePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp ledger file %s: %w", tempFilePath, err)
	}

	if err := os.Rename(tempFilePath, l.filePath); err != nil {
		_ = os.Remove(tempFilePath) // Attempt cleanup on rename error
		return fmt.Errorf("failed to rename temp ledger file to %s: %w", l.filePath, err)
	}

	return nil
}

// Record appends an action record.
func (l *FileLedger) Record(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}

	l.records = append(l.records, rec)
	key := lastKey(rec.AccountID, rec.ActionType)
	if current, exists := l.lastMap[key]; !exists || rec.OccurredAt.After(current.OccurredAt) {
		l.lastMap[key] = rec
	}
	l.done[doneKey(rec.AccountID, rec.ActionType, rec.TargetID)] = struct{}{}

	if err := l.save(); err != nil {
		l.logger.Warn("Failed to save ledger history", "error", err)
		return err
	}

	l.logger.Info("Recorded action", "account_id", rec.AccountID, "action_type", rec.ActionType, "target_id", rec.TargetID)
	return nil
}

// HasPerformed reports whether the account already performed the action on the target.
func (l *FileLedger) HasPerformed(accountID, actionType, targetID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.done[doneKey(accountID, actionType, targetID)]
	return ok, nil
}

// LastActionTime returns the timestamp of the account's most recent action of the given type.
func (l *FileLedger) LastActionTime(accountID, actionType string) (time.Time, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.lastMap[lastKey(accountID, actionType)]
	if !ok {
		return time.Time{}, false, nil
	}
	return rec.OccurredAt, true, nil
}

// DeleteAccountHistory removes all records for the account.
func (l *FileLedger) DeleteAccountHistory(accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.records[:0]
	removed := 0
	for _, rec := range l.records {
		if rec.AccountID == accountID {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	if removed == 0 {
		return nil
	}
	l.records = kept
	l.rebuildIndexes()

	if err := l.save(); err != nil {
		return err
	}

	l.logger.Info("Deleted account history", "account_id", accountID, "removed_records", removed)
	return nil
}

// Close is a no-op for the file ledger.
func (l *FileLedger) Close() error {
	return nil
}
