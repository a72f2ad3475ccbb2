// Package mssql implements a Microsoft SQL Server repository using the
// go-mssqldb bulk copy API. A write deletes the replaced partitions and
// bulk-copies the new rows in one transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"go.uber.org/zap"

	"marketetl/internal/ddl"
	"marketetl/internal/schema"
	"marketetl/internal/storage"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN             string
	Table           string // e.g. "dbo.market_events"
	AutoCreateTable bool
	Static          bool
	Logger          *zap.Logger
}

// Dialect is the SQL Server quoting and type mapping. T-SQL has no
// CREATE TABLE IF NOT EXISTS, so creation is wrapped in an OBJECT_ID guard.
var Dialect = ddl.Dialect{
	QuoteIdent: QuoteIdent,
	MapType:    MapType,
	Guard: func(fqn, quoted, create string) string {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n%s\nEND", strings.ReplaceAll(quoted, "'", "''"), create)
	},
}

// QuoteIdent quotes an identifier with brackets.
func QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// MapType maps a contract type to a SQL Server column type.
func MapType(kind string) string {
	switch kind {
	case schema.TypeInt:
		return "INT"
	case schema.TypeDecimal:
		return "DECIMAL(18,2)"
	default:
		return "NVARCHAR(255)"
	}
}

func atParam(i int) string { return "@p" + strconv.Itoa(i) }

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
	log *zap.Logger
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("mssql: table must not be empty")
	}
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Repository{db: db, cfg: cfg, log: log.With(zap.String("backend", "mssql"))}
	if cfg.AutoCreateTable {
		if err := r.EnsureTable(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return r, func() { _ = db.Close() }, nil
}

// EnsureTable creates the target table from the canonical contract if it
// does not exist.
func (r *Repository) EnsureTable(ctx context.Context) error {
	stmt, err := ddl.BuildCreateTableSQL(ddl.FromContract(schema.Canonical, r.cfg.Table, Dialect), Dialect)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mssql: create table: %w", err)
	}
	return nil
}

// ReplacePartitions deletes the partitions present in events (every row in
// static mode) and bulk-copies events, all in one transaction.
func (r *Repository) ReplacePartitions(ctx context.Context, events []schema.MarketEvent) (storage.WriteResult, error) {
	sets := storage.GroupByPartition(events)
	keys := storage.Keys(sets)
	if len(keys) == 0 && !r.cfg.Static {
		return storage.Result(nil), nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.WriteResult{}, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	del, args := storage.DeleteSQL(ddl.QuoteFQN(r.cfg.Table, QuoteIdent), QuoteIdent(schema.PartitionColumn), keys, r.cfg.Static, atParam)
	res, err := tx.ExecContext(ctx, del, args...)
	if err != nil {
		rollback()
		return storage.WriteResult{}, fmt.Errorf("delete partitions: %w", err)
	}
	deleted, _ := res.RowsAffected()

	inserted, err := storage.LoadBatches(ctx, r.log, schema.Columns(), storage.Rows(sets), 100_000,
		func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
			return bulkCopy(ctx, tx, r.cfg.Table, columns, rows)
		})
	if err != nil {
		rollback()
		return storage.WriteResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.WriteResult{}, fmt.Errorf("commit: %w", err)
	}

	r.log.Info("partitions replaced",
		zap.String("table", r.cfg.Table),
		zap.Strings("partitions", keys),
		zap.Int64("deleted", deleted),
		zap.Int64("inserted", inserted),
	)
	return storage.Result(sets), nil
}

// bulkCopy streams rows through mssql.CopyIn inside tx.
func bulkCopy(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	return res.RowsAffected()
}
