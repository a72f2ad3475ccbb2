package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CopyFn inserts rows (aligned to columns) and returns how many were
// inserted. Backends implement it with their bulk primitive: multi-row
// INSERT, COPY, or a bulk-copy stream.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches feeds rows to copyFn in batches of batchSize and returns the
// total reported inserted. It stops at the first error or when ctx is done.
// Progress is logged at debug level per batch.
func LoadBatches(ctx context.Context, log *zap.Logger, columns []string, rows [][]any, batchSize int, copyFn CopyFn) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total   int64
		batches int
		start   = time.Now()
	)
	for lo := 0; lo < len(rows); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		hi := min(lo+batchSize, len(rows))
		n, err := copyFn(ctx, columns, rows[lo:hi])
		total += n
		if err != nil {
			return total, fmt.Errorf("batch %d: %w", batches+1, err)
		}
		batches++
		log.Debug("batch loaded",
			zap.Int("batch", batches),
			zap.Int64("inserted", n),
			zap.Int64("total", total),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return total, nil
}
