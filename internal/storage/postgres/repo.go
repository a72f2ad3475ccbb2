// Package postgres implements a Postgres repository using pgx v5. A write
// deletes the replaced partitions and COPYs the new rows in one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketetl/internal/ddl"
	"marketetl/internal/schema"
	"marketetl/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN             string // connection string for pgxpool
	Table           string // target table, optionally schema-qualified, e.g. "public.market_events"
	AutoCreateTable bool
	Static          bool
	Logger          *zap.Logger
}

// Dialect is the Postgres quoting and type mapping.
var Dialect = ddl.Dialect{
	QuoteIdent: ddl.DoubleQuote,
	MapType:    MapType,
}

// MapType maps a contract type to a Postgres column type.
func MapType(kind string) string {
	switch kind {
	case schema.TypeInt:
		return "INTEGER"
	case schema.TypeDecimal:
		return "NUMERIC(18,2)"
	default:
		return "TEXT"
	}
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
	log  *zap.Logger
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("postgres: table must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Repository{pool: pool, cfg: cfg, log: log.With(zap.String("backend", "postgres"))}
	if cfg.AutoCreateTable {
		if err := r.EnsureTable(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return r, func() { pool.Close() }, nil
}

// EnsureTable creates the target table from the canonical contract if it
// does not exist.
func (r *Repository) EnsureTable(ctx context.Context) error {
	stmt, err := ddl.BuildCreateTableSQL(ddl.FromContract(schema.Canonical, r.cfg.Table, Dialect), Dialect)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

// ReplacePartitions deletes the partitions present in events (every row in
// static mode) and COPYs events into the table in one transaction.
func (r *Repository) ReplacePartitions(ctx context.Context, events []schema.MarketEvent) (storage.WriteResult, error) {
	sets := storage.GroupByPartition(events)
	keys := storage.Keys(sets)
	if len(keys) == 0 && !r.cfg.Static {
		return storage.Result(nil), nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storage.WriteResult{}, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	del, args := deleteSQL(r.cfg.Table, keys, r.cfg.Static)
	tag, err := tx.Exec(ctx, del, args...)
	if err != nil {
		return storage.WriteResult{}, fmt.Errorf("postgres: delete partitions: %w", pgDetail(err))
	}

	cols := schema.Columns()
	inserted, err := storage.LoadBatches(ctx, r.log, cols, copyRows(sets), 50_000,
		func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
			return tx.CopyFrom(ctx, splitFQN(r.cfg.Table), columns, pgx.CopyFromRows(rows))
		})
	if err != nil {
		return storage.WriteResult{}, fmt.Errorf("postgres: copy: %w", pgDetail(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.WriteResult{}, fmt.Errorf("postgres: commit: %w", err)
	}

	r.log.Info("partitions replaced",
		zap.String("table", r.cfg.Table),
		zap.Strings("partitions", keys),
		zap.Int64("deleted", tag.RowsAffected()),
		zap.Int64("inserted", inserted),
	)
	return storage.Result(sets), nil
}

// deleteSQL binds the partition keys as one text[] parameter.
func deleteSQL(table string, keys []string, static bool) (string, []any) {
	fq := ddl.QuoteFQN(table, ddl.DoubleQuote)
	if static {
		return "DELETE FROM " + fq, nil
	}
	return "DELETE FROM " + fq + " WHERE " + ddl.DoubleQuote(schema.PartitionColumn) + " = ANY($1)", []any{keys}
}

// copyRows builds COPY rows. Prices go over the wire as pgtype.Numeric so
// pgx can use the binary protocol for them.
func copyRows(sets []storage.PartitionSet) [][]any {
	rows := storage.Rows(sets)
	i := 0
	for _, s := range sets {
		for _, ev := range s.Events {
			rows[i][7] = numeric(ev.BidPr)
			rows[i][9] = numeric(ev.AskPr)
			i++
		}
	}
	return rows
}

func numeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: d.Decimal.Coefficient(), Exp: d.Decimal.Exponent(), Valid: true}
}

// pgDetail surfaces the server detail of a *pgconn.PgError when present.
func pgDetail(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s: %s)", err, pgErr.SQLState(), pgErr.Detail)
	}
	return err
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
// If no dot is present, returns {"table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
