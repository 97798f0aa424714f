package testutil

import (
	"path/filepath"
	"testing"

	"moodlog-go/internal/archive"
	"moodlog-go/internal/moodlog"
	"moodlog-go/internal/store"
)

// NewTestStore creates an in-memory document store.
func NewTestStore() *store.MemoryStore {
	return store.NewMemoryStore()
}

// NewTestSQLiteStore creates a SQLite document store backed by a temp file
// with the schema applied. The store is closed when the test completes.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// NewTestArchive creates an in-memory archive for export tests.
func NewTestArchive() moodlog.Archive {
	return archive.NewMemoryArchive("test")
}
