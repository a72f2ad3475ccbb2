package parquet

import (
	"fmt"

	goparquet "github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"marketetl/internal/schema"
)

// Schema is the on-disk shape of one event. The partition column is not
// stored: it is encoded in the partition=<key> directory name. Prices are
// fixed-point DECIMAL(18,2) backed by int64. Every column is optional; empty
// text is stored as null.
var Schema = goparquet.NewSchema(schema.Canonical.Name, goparquet.Group{
	"trade_dt":     goparquet.Optional(goparquet.String()),
	"file_tm":      goparquet.Optional(goparquet.String()),
	"record_type":  goparquet.Optional(goparquet.String()),
	"symbol":       goparquet.Optional(goparquet.String()),
	"event_tm":     goparquet.Optional(goparquet.String()),
	"event_seq_nb": goparquet.Optional(goparquet.Int(32)),
	"exchange":     goparquet.Optional(goparquet.String()),
	"bid_pr":       goparquet.Optional(goparquet.Decimal(schema.PriceScale, schema.PricePrecision, goparquet.Int64Type)),
	"bid_size":     goparquet.Optional(goparquet.Int(32)),
	"ask_pr":       goparquet.Optional(goparquet.Decimal(schema.PriceScale, schema.PricePrecision, goparquet.Int64Type)),
	"ask_size":     goparquet.Optional(goparquet.Int(32)),
})

// columns holds the leaf index of every stored column. Group orders its
// fields by name, so indexes are looked up rather than assumed.
type columns struct {
	tradeDt, fileTm, recordType, symbol, eventTm int
	eventSeqNb, exchange                         int
	bidPr, bidSize, askPr, askSize               int
	n                                            int
}

func columnsOf(s *goparquet.Schema) (columns, error) {
	var c columns
	var missing []string
	idx := func(name string) int {
		leaf, ok := s.Lookup(name)
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return leaf.ColumnIndex
	}
	c.tradeDt = idx("trade_dt")
	c.fileTm = idx("file_tm")
	c.recordType = idx("record_type")
	c.symbol = idx("symbol")
	c.eventTm = idx("event_tm")
	c.eventSeqNb = idx("event_seq_nb")
	c.exchange = idx("exchange")
	c.bidPr = idx("bid_pr")
	c.bidSize = idx("bid_size")
	c.askPr = idx("ask_pr")
	c.askSize = idx("ask_size")
	c.n = len(s.Columns())
	if len(missing) > 0 {
		return columns{}, fmt.Errorf("parquet: schema %s lacks columns %v", s.Name(), missing)
	}
	return c, nil
}

var schemaColumns = mustColumns(Schema)

func mustColumns(s *goparquet.Schema) columns {
	c, err := columnsOf(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ToRow converts an event to a row of Schema, values in column order.
func ToRow(ev schema.MarketEvent) goparquet.Row {
	c := schemaColumns
	row := make(goparquet.Row, c.n)
	row[c.tradeDt] = textValue(ev.TradeDt, c.tradeDt)
	row[c.fileTm] = textValue(ev.FileTm, c.fileTm)
	row[c.recordType] = textValue(string(ev.RecordType), c.recordType)
	row[c.symbol] = textValue(ev.Symbol, c.symbol)
	row[c.eventTm] = textValue(ev.EventTm, c.eventTm)
	row[c.eventSeqNb] = int32Value(ev.EventSeqNb, c.eventSeqNb)
	row[c.exchange] = textValue(ev.Exchange, c.exchange)
	row[c.bidPr] = priceValue(ev.BidPr, c.bidPr)
	row[c.bidSize] = int32Value(ev.BidSize, c.bidSize)
	row[c.askPr] = priceValue(ev.AskPr, c.askPr)
	row[c.askSize] = int32Value(ev.AskSize, c.askSize)
	return row
}

// fromRow converts a stored row back into an event. c must describe the
// schema the row was read with.
func fromRow(row goparquet.Row, c columns) schema.MarketEvent {
	vals := make([]goparquet.Value, c.n)
	for _, v := range row {
		if col := v.Column(); col >= 0 && col < c.n {
			vals[col] = v
		}
	}
	return schema.MarketEvent{
		TradeDt:    textOf(vals[c.tradeDt]),
		FileTm:     textOf(vals[c.fileTm]),
		RecordType: schema.RecordType(textOf(vals[c.recordType])),
		Symbol:     textOf(vals[c.symbol]),
		EventTm:    textOf(vals[c.eventTm]),
		EventSeqNb: int32Ptr(vals[c.eventSeqNb]),
		Exchange:   textOf(vals[c.exchange]),
		BidPr:      priceOf(vals[c.bidPr]),
		BidSize:    int32Ptr(vals[c.bidSize]),
		AskPr:      priceOf(vals[c.askPr]),
		AskSize:    int32Ptr(vals[c.askSize]),
	}
}

// Optional leaves have a max definition level of 1: 0 is null, 1 is set.
func null(col int) goparquet.Value { return goparquet.NullValue().Level(0, 0, col) }

func textValue(s string, col int) goparquet.Value {
	if s == "" {
		return null(col)
	}
	return goparquet.ByteArrayValue([]byte(s)).Level(0, 1, col)
}

func int32Value(p *int32, col int) goparquet.Value {
	if p == nil {
		return null(col)
	}
	return goparquet.Int32Value(*p).Level(0, 1, col)
}

func priceValue(d decimal.NullDecimal, col int) goparquet.Value {
	if !d.Valid {
		return null(col)
	}
	return goparquet.Int64Value(unscaled(d.Decimal)).Level(0, 1, col)
}

func textOf(v goparquet.Value) string {
	if v.IsNull() {
		return ""
	}
	return string(v.ByteArray())
}

func int32Ptr(v goparquet.Value) *int32 {
	if v.IsNull() {
		return nil
	}
	n := v.Int32()
	return &n
}

func priceOf(v goparquet.Value) decimal.NullDecimal {
	if v.IsNull() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.New(v.Int64(), -schema.PriceScale), Valid: true}
}

func unscaled(d decimal.Decimal) int64 {
	return d.Round(schema.PriceScale).Shift(schema.PriceScale).IntPart()
}
