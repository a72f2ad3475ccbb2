package parquet

import (
	"context"

	"marketetl/internal/storage"
)

var _ storage.Repository = (*Writer)(nil)

func init() {
	storage.Register("parquet", func(_ context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewWriter(Config{
			Path:           cfg.Path,
			Compression:    cfg.Compression,
			MaxRowsPerFile: cfg.MaxRowsPerFile,
			Static:         cfg.Static(),
			RunID:          cfg.RunID,
			Logger:         cfg.Log(),
		})
	})
}
