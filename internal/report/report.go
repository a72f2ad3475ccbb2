// Package report summarizes a unified event set with SQL. The events are
// loaded into an in-memory SQLite table named market_data and the summary
// is read back with plain aggregate queries.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"text/tabwriter"

	"marketetl/internal/schema"
	"marketetl/internal/storage/sqlite"
)

// Relation is the table name the events are exposed under.
const Relation = "market_data"

// SampleSize is how many events Build keeps for display.
const SampleSize = 10

// PartitionStats is one row of the per-partition aggregate.
type PartitionStats struct {
	RecordType      string
	RecordCount     int64
	UniqueSymbols   int64
	UniqueExchanges int64
}

// Count is a label with its number of records.
type Count struct {
	Key   string
	Count int64
}

// Report is the run summary.
type Report struct {
	Total       int64
	RecordTypes []Count // by partition, largest first
	Exchanges   []Count // non-empty exchanges, largest first
	Partitions  []PartitionStats
	Sample      []schema.MarketEvent
}

// Build loads events into market_data and computes the summary.
func Build(ctx context.Context, events []schema.MarketEvent) (Report, error) {
	repo, closeFn, err := sqlite.NewRepository(ctx, sqlite.Config{
		DSN:             ":memory:",
		Table:           Relation,
		AutoCreateTable: true,
	})
	if err != nil {
		return Report{}, fmt.Errorf("report: %w", err)
	}
	defer closeFn()

	if _, err := repo.ReplacePartitions(ctx, events); err != nil {
		return Report{}, fmt.Errorf("report: load: %w", err)
	}
	db := repo.DB()

	var rep Report
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM market_data`).Scan(&rep.Total); err != nil {
		return Report{}, fmt.Errorf("report: total: %w", err)
	}
	if rep.RecordTypes, err = counts(ctx, db, `
		SELECT "partition", COUNT(*) AS n
		FROM market_data
		GROUP BY "partition"
		ORDER BY n DESC, "partition"`); err != nil {
		return Report{}, fmt.Errorf("report: record types: %w", err)
	}
	if rep.Exchanges, err = counts(ctx, db, `
		SELECT exchange, COUNT(*) AS n
		FROM market_data
		WHERE exchange IS NOT NULL AND exchange <> ''
		GROUP BY exchange
		ORDER BY n DESC, exchange`); err != nil {
		return Report{}, fmt.Errorf("report: exchanges: %w", err)
	}
	if rep.Partitions, err = partitionStats(ctx, db); err != nil {
		return Report{}, fmt.Errorf("report: partitions: %w", err)
	}

	sample := events
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}
	rep.Sample = append([]schema.MarketEvent(nil), sample...)
	return rep, nil
}

func counts(ctx context.Context, db *sql.DB, query string) ([]Count, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func partitionStats(ctx context.Context, db *sql.DB) ([]PartitionStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			"partition" AS record_type,
			COUNT(*) AS record_count,
			COUNT(DISTINCT NULLIF(symbol, '')) AS unique_symbols,
			COUNT(DISTINCT NULLIF(exchange, '')) AS unique_exchanges
		FROM market_data
		GROUP BY "partition"
		ORDER BY record_count DESC, record_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PartitionStats
	for rows.Next() {
		var p PartitionStats
		if err := rows.Scan(&p.RecordType, &p.RecordCount, &p.UniqueSymbols, &p.UniqueExchanges); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Print renders rep as aligned text tables.
func Print(w io.Writer, rep Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Total combined records:\t%d\n\n", rep.Total)

	fmt.Fprintln(tw, "Record type distribution:")
	fmt.Fprintln(tw, "partition\tcount")
	for _, c := range rep.RecordTypes {
		fmt.Fprintf(tw, "%s\t%d\n", c.Key, c.Count)
	}

	fmt.Fprintln(tw, "\nExchange distribution:")
	fmt.Fprintln(tw, "exchange\tcount")
	for _, c := range rep.Exchanges {
		fmt.Fprintf(tw, "%s\t%d\n", c.Key, c.Count)
	}

	fmt.Fprintln(tw, "\nPartition summary:")
	fmt.Fprintln(tw, "record_type\trecord_count\tunique_symbols\tunique_exchanges")
	for _, p := range rep.Partitions {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", p.RecordType, p.RecordCount, p.UniqueSymbols, p.UniqueExchanges)
	}

	if len(rep.Sample) > 0 {
		fmt.Fprintln(tw, "\nSample of combined data:")
		fmt.Fprintln(tw, "trade_dt\trecord_type\tsymbol\texchange\tevent_tm\tbid_pr\tbid_size\task_pr\task_size")
		for _, ev := range rep.Sample {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				ev.TradeDt, ev.RecordType, ev.Symbol, ev.Exchange, ev.EventTm,
				price(ev.BidPr.Valid, ev.BidPr.Decimal.StringFixed(schema.PriceScale)), size(ev.BidSize),
				price(ev.AskPr.Valid, ev.AskPr.Decimal.StringFixed(schema.PriceScale)), size(ev.AskSize))
		}
	}
	return tw.Flush()
}

func price(valid bool, s string) string {
	if !valid {
		return "null"
	}
	return s
}

func size(p *int32) string {
	if p == nil {
		return "null"
	}
	return fmt.Sprint(*p)
}
