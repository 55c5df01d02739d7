package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mhalvorsen/sockpool/internal/logging"
)

const defaultMemoryFileName = "sockpool-memory.json"

type item struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileMemory persists bookkeeping items to a JSON file.
type FileMemory struct {
	mu       sync.RWMutex
	filePath string
	items    map[string]item
	logger   logging.Logger
}

// NewFileMemory creates or loads a memory store backed by a file.
func NewFileMemory(dir string) (*FileMemory, error) {
	logger := logging.Get().Named("file_memory")
	if dir == "" {
		dir = "."
	}
	filePath := filepath.Join(dir, defaultMemoryFileName)

	m := &FileMemory{
		filePath: filePath,
		items:    make(map[string]item),
		logger:   logger,
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load memory from %s: %w", filePath, err)
		}
	} else if len(data) > 0 {
		if err := json.Unmarshal(data, &m.items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal memory file %s: %w", filePath, err)
		}
	}

	m.logger.Info("FileMemory initialized.", "path", filePath, "loaded_items", len(m.items))
	return m, nil
}

// save writes the items back to the file. Caller must hold the write lock.
func (m *FileMemory) save() error {
	data, err := json.MarshalIndent(m.items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memory items: %w", err)
	}

	tempFilePath := m.filePath + ".tmp"
	if err := os.WriteFile(tempFilePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp memory file %s: %w", tempFilePath, err)
	}
	if err := os.Rename(tempFilePath, m.filePath); err != nil {
		_ = os.Remove(tempFilePath)
		return fmt.Errorf("failed to rename temp memory file to %s: %w", m.filePath, err)
	}
	return nil
}

// Set stores or overwrites an item.
func (m *FileMemory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = item{Value: value, UpdatedAt: time.Now().UTC()}
	return m.save()
}

// Get retrieves an item.
func (m *FileMemory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[key]
	if !ok {
		return "", false, nil
	}
	return it.Value, true, nil
}

// Delete removes an item. Deleting a missing key is not an error.
func (m *FileMemory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; !ok {
		return nil
	}
	delete(m.items, key)
	return m.save()
}

// Clear removes all items.
func (m *FileMemory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]item)
	return m.save()
}

// Close is a no-op for the file memory.
func (m *FileMemory) Close() error {
	return nil
}
