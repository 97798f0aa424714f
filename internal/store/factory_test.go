package store

import (
	"testing"

	"moodlog-go/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{
			name:    "memory store",
			cfg:     config.StoreConfig{Type: "memory"},
			wantErr: false,
		},
		{
			name:    "sqlite store",
			cfg:     config.StoreConfig{Type: "sqlite", DataDir: t.TempDir()},
			wantErr: false,
		},
		{
			name:    "empty type defaults to sqlite",
			cfg:     config.StoreConfig{DataDir: t.TempDir()},
			wantErr: false,
		},
		{
			name:    "sqlite without data_dir",
			cfg:     config.StoreConfig{Type: "sqlite"},
			wantErr: true,
		},
		{
			name:    "unknown store type",
			cfg:     config.StoreConfig{Type: "redis"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStoreFromConfig(tt.cfg)

			if (err != nil) != tt.wantErr {
				t.Errorf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == nil {
				t.Error("NewStoreFromConfig() returned nil store")
			}
			if s, ok := got.(*SQLiteStore); ok {
				s.Close()
			}
		})
	}
}
