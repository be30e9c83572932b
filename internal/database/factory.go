package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"unitprice/internal/config"
	"unitprice/internal/unitprice"
)

// NewStoreFromConfig opens a Store implementation based on the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig, logger unitprice.Logger) (unitprice.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return openSQLite(filepath.Join(cfg.DataDir, "unitprice.db"), logger)
	case "memory":
		return openSQLite(":memory:", logger)
	case "badger":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for badger database")
		}
		s, err := NewBadgerStore(BadgerConfig{
			Path:       filepath.Join(cfg.DataDir, "badger"),
			SyncWrites: cfg.SyncWrites,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// NewLazyStoreFromConfig defers NewStoreFromConfig until the store is first used.
func NewLazyStoreFromConfig(cfg config.DatabaseConfig, logger unitprice.Logger) *LazyStore {
	return NewLazyStore(func(context.Context) (unitprice.Store, error) {
		return NewStoreFromConfig(cfg, logger)
	}, logger)
}

func openSQLite(path string, logger unitprice.Logger) (unitprice.Store, error) {
	s, err := NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}
