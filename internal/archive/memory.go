package archive

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"moodlog-go/internal/moodlog"
)

// MemoryArchive is an in-memory implementation of the Archive interface.
// It is useful for testing and is safe for concurrent use.
type MemoryArchive struct {
	name    string
	exports map[string][]byte // id -> sealed export
	mu      sync.RWMutex
}

var _ moodlog.Archive = (*MemoryArchive)(nil)

// NewMemoryArchive creates a new in-memory archive with the given name.
func NewMemoryArchive(name string) *MemoryArchive {
	return &MemoryArchive{
		name:    name,
		exports: make(map[string][]byte),
	}
}

// Put stores an export identified by id. Storing the same id twice overwrites.
func (m *MemoryArchive) Put(id string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.exports[id] = data
	return nil
}

// Get retrieves an export by id.
func (m *MemoryArchive) Get(id string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.exports[id]
	if !ok {
		return fmt.Errorf("export not found: %s", id)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	return nil
}

// List returns the ids of all stored exports, sorted.
func (m *MemoryArchive) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.exports))
	for id := range m.exports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ValidateSetup always succeeds for the in-memory archive.
func (m *MemoryArchive) ValidateSetup() error {
	return nil
}
