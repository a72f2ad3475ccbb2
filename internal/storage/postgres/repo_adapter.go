// This adapter wires the Postgres backend into the storage-agnostic factory by
// registering a constructor at init time. Callers obtain a Repository via
// storage.New without importing this package directly.

package postgres

import (
	"context"

	"marketetl/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo adapts *postgres.Repository to storage.Repository and provides
// Close.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:             cfg.DSN,
			Table:           cfg.Table,
			AutoCreateTable: cfg.AutoCreateTable,
			Static:          cfg.Static(),
			Logger:          cfg.Log(),
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
}
