package chatstore

import (
	"fmt"
	"path/filepath"

	"github.com/comigor/dudil-go/internal/config"
	"github.com/comigor/dudil-go/internal/logger"
)

// Open builds the store selected by cfg.Mode. If the SQLite database cannot
// be opened the in-memory store is used instead and the failure is logged.
// Callers should Close the result when it implements io.Closer.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Mode {
	case config.StorageSingle:
		return NewFileStore(cfg.HistoryFile), nil
	case config.StorageMulti, "":
		return NewMultiUserFileStore(cfg.DataDir), nil
	case config.StorageSQLite:
		s, err := NewSQLiteStore(filepath.Join(cfg.DataDir, DefaultSQLiteFile))
		if err != nil {
			logger.L.Warn("sqlite open failed; using in-memory history", "error", err)
			return NewMemoryStore(), nil
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage mode: %s", cfg.Mode)
	}
}
