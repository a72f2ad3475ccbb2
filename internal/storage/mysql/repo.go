// Package mysql implements a MySQL repository on database/sql and
// go-sql-driver/mysql. A write deletes the replaced partitions and inserts
// the new rows with multi-row INSERT statements in one transaction.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"marketetl/internal/ddl"
	"marketetl/internal/schema"
	"marketetl/internal/storage"
)

// insertBatch keeps a multi-row INSERT well under the 65535 placeholder limit.
const insertBatch = 500

// Config holds MySQL repository configuration.
type Config struct {
	DSN             string // go-sql-driver DSN, e.g. "user:pass@tcp(localhost:3306)/markets"
	Table           string
	AutoCreateTable bool
	Static          bool
	Logger          *zap.Logger
}

// Dialect is the MySQL quoting and type mapping.
var Dialect = ddl.Dialect{
	QuoteIdent: QuoteIdent,
	MapType:    MapType,
}

// QuoteIdent quotes an identifier with backticks. "partition" is a reserved
// word in MySQL, so every identifier is quoted.
func QuoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// MapType maps a contract type to a MySQL column type.
func MapType(kind string) string {
	switch kind {
	case schema.TypeInt:
		return "INT"
	case schema.TypeDecimal:
		return "DECIMAL(18,2)"
	default:
		return "VARCHAR(255)"
	}
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
	log *zap.Logger
}

// NewRepository validates the DSN, opens a pool and returns a Repository plus
// a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("mysql: table must not be empty")
	}
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql: ping: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Repository{db: db, cfg: cfg, log: log.With(zap.String("backend", "mysql"))}
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
		return fmt.Errorf("mysql: create table: %w", err)
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

	table := ddl.QuoteFQN(r.cfg.Table, QuoteIdent)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.WriteResult{}, fmt.Errorf("mysql: begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	del, args := storage.DeleteSQL(table, QuoteIdent(schema.PartitionColumn), keys, r.cfg.Static, storage.QuestionMark)
	res, err := tx.ExecContext(ctx, del, args...)
	if err != nil {
		rollback()
		return storage.WriteResult{}, fmt.Errorf("mysql: delete partitions: %w", err)
	}
	deleted, _ := res.RowsAffected()

	inserted, err := storage.LoadBatches(ctx, r.log, schema.Columns(), storage.Rows(sets), insertBatch,
		func(ctx context.Context, _ []string, rows [][]any) (int64, error) {
			return insertRows(ctx, tx, table, rows)
		})
	if err != nil {
		rollback()
		return storage.WriteResult{}, fmt.Errorf("mysql: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.WriteResult{}, fmt.Errorf("mysql: commit: %w", err)
	}

	r.log.Info("partitions replaced",
		zap.String("table", r.cfg.Table),
		zap.Strings("partitions", keys),
		zap.Int64("deleted", deleted),
		zap.Int64("inserted", inserted),
	)
	return storage.Result(sets), nil
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, rows [][]any) (int64, error) {
	args := make([]any, 0, len(rows)*len(schema.Canonical.Fields))
	for _, row := range rows {
		args = append(args, row...)
	}
	res, err := tx.ExecContext(ctx, storage.InsertSQL(table, QuoteIdent, len(rows), storage.QuestionMark), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
