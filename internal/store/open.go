package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/punchamoorthee/offerledger/internal/config"
)

const boltFile = "offerledger.db"

// OpenBackend opens the backend selected by STORE_BACKEND.
func OpenBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendFile:
		return NewFileBackend(cfg.DataDir)
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("unable to create data directory: %w", err)
		}
		return NewBoltBackend(filepath.Join(cfg.DataDir, boltFile), nil, SetCatalog, SetLedger)
	case config.BackendPostgres:
		return NewPostgresBackend(ctx, cfg.DBSource)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
