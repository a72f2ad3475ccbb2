// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql. Each write runs in one transaction: the replaced partitions
// are deleted, then every row is inserted through a prepared statement.
// SQLite has no bulk-load API, but a single transaction keeps it fast enough
// for moderate volumes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"marketetl/internal/ddl"
	"marketetl/internal/schema"
	"marketetl/internal/storage"
)

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:events.db?cache=shared"
	//   ":memory:"
	DSN string

	// Table is the target table, e.g. "market_events".
	Table string

	AutoCreateTable bool
	Static          bool
	Logger          *zap.Logger
}

// Dialect is the SQLite quoting and type mapping.
var Dialect = ddl.Dialect{
	QuoteIdent: ddl.DoubleQuote,
	MapType:    MapType,
}

// MapType maps a contract type to a SQLite column type.
func MapType(kind string) string {
	switch kind {
	case schema.TypeInt:
		return "INTEGER"
	case schema.TypeDecimal:
		return "DECIMAL(18,2)"
	default:
		return "TEXT"
	}
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
	log *zap.Logger
}

// Open opens a SQLite database with a single connection, so ":memory:"
// databases survive across statements.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewRepository opens the database and returns a Repository plus a Close
// function for cleanup. The target table is created first when
// AutoCreateTable is set.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("sqlite: table must not be empty")
	}

	db, err := Open(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Repository{db: db, cfg: cfg, log: log.With(zap.String("backend", "sqlite"))}
	if cfg.AutoCreateTable {
		if err := r.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return r, func() { db.Close() }, nil
}

// DB exposes the underlying handle for read-side queries.
func (r *Repository) DB() *sql.DB { return r.db }

// EnsureTable creates the target table from the canonical contract if it
// does not exist.
func (r *Repository) EnsureTable(ctx context.Context) error {
	stmt, err := ddl.BuildCreateTableSQL(ddl.FromContract(schema.Canonical, r.cfg.Table, Dialect), Dialect)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

// ReplacePartitions deletes the partitions present in events (every row in
// static mode) and inserts events, all in one transaction.
func (r *Repository) ReplacePartitions(ctx context.Context, events []schema.MarketEvent) (storage.WriteResult, error) {
	sets := storage.GroupByPartition(events)
	keys := storage.Keys(sets)
	if len(keys) == 0 && !r.cfg.Static {
		return storage.Result(nil), nil
	}

	table := ddl.QuoteFQN(r.cfg.Table, ddl.DoubleQuote)
	cols := schema.Columns()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.WriteResult{}, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	del, args := storage.DeleteSQL(table, ddl.DoubleQuote(schema.PartitionColumn), keys, r.cfg.Static, storage.QuestionMark)
	res, err := tx.ExecContext(ctx, del, args...)
	if err != nil {
		rollback()
		return storage.WriteResult{}, fmt.Errorf("sqlite: delete partitions: %w", err)
	}
	deleted, _ := res.RowsAffected()

	stmt, err := tx.PrepareContext(ctx, storage.InsertSQL(table, ddl.DoubleQuote, 1, storage.QuestionMark))
	if err != nil {
		rollback()
		return storage.WriteResult{}, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted, err := storage.LoadBatches(ctx, r.log, cols, storage.Rows(sets), 1000,
		func(ctx context.Context, _ []string, rows [][]any) (int64, error) {
			var n int64
			for _, row := range rows {
				if _, err := stmt.ExecContext(ctx, row...); err != nil {
					return n, err
				}
				n++
			}
			return n, nil
		})
	if err != nil {
		rollback()
		return storage.WriteResult{}, fmt.Errorf("sqlite: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.WriteResult{}, fmt.Errorf("sqlite: commit: %w", err)
	}

	r.log.Info("partitions replaced",
		zap.String("table", r.cfg.Table),
		zap.Strings("partitions", keys),
		zap.Int64("deleted", deleted),
		zap.Int64("inserted", inserted),
	)
	return storage.Result(sets), nil
}
