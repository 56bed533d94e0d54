package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"chunkdb/internal/config"
)

// DatabaseFileName is the SQLite file created under DatabaseConfig.DataDir.
const DatabaseFileName = "chunkdb.db"

// NewDatabaseFromConfig opens the database selected by the config type.
func NewDatabaseFromConfig(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, DatabaseFileName))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	case "mysql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for mysql database")
		}
		return NewMySQLDatabase(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
