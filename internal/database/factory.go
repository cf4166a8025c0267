package database

import (
	"fmt"
	"path/filepath"

	"sentinel-go/internal/config"
)

// NewStoreFromConfig creates a store based on the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig, hostID string) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		dbPath := filepath.Join(cfg.DataDir, hostID+".db")
		return NewSQLiteStore(dbPath, nil, nil)
	case "memory":
		// An in-memory store is always fresh; migrate it on open so the
		// schema check passes.
		s, err := NewSQLiteStore(":memory:", nil, nil)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
