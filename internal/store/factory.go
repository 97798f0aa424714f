package store

import (
	"fmt"
	"os"
	"path/filepath"

	"moodlog-go/internal/config"
	"moodlog-go/internal/moodlog"
)

// NewStoreFromConfig creates a DocumentStore implementation based on the
// store config type.
func NewStoreFromConfig(cfg config.StoreConfig) (moodlog.DocumentStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite store requires data_dir to be set")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "moodlog.db"))
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
