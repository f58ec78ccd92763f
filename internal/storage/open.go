package storage

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// Backend names
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config selects and configures a VectorStore
type Config struct {
	Backend     string
	ProjectRoot string
	Root        string // overrides the primary root of the file backend
	SQLitePath  string // defaults to <project>/.code-connoisseur/index.db
	BatchSize   int
	Logger      *zap.Logger
}

// Open creates the configured store
func Open(cfg Config) (VectorStore, error) {
	switch cfg.Backend {
	case BackendFile, "":
		opts := DefaultOptions(cfg.ProjectRoot)
		if cfg.Root != "" {
			opts.PrimaryRoot = cfg.Root
		}
		if cfg.BatchSize > 0 {
			opts.BatchSize = cfg.BatchSize
		}
		opts.Logger = cfg.Logger
		return NewFileStore(opts), nil
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.ProjectRoot, ".code-connoisseur", "index.db")
		}
		return NewSQLiteStore(path, cfg.BatchSize, cfg.Logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
