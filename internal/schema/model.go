// Package schema defines the canonical market-event record every source is
// mapped into, the column contract shared by all storage backends, and the
// normalizer that turns source-specific raw fields into typed events.
package schema

import (
	"github.com/shopspring/decimal"
)

// RecordType is the kind of a market event.
type RecordType string

const (
	// Trade is an executed transaction (price and size only).
	Trade RecordType = "T"
	// Quote is a bid/ask quotation; it carries ask price and size.
	Quote RecordType = "Q"
)

// Valid reports whether t is one of the recognized record kinds.
func (t RecordType) Valid() bool { return t == Trade || t == Quote }

// MarketEvent is the canonical unit produced by every parser.
//
// Values are built once per raw line and never mutated afterwards. Numeric
// fields are nullable: a value that fails coercion is stored as null rather
// than failing the record. AskPr and AskSize are only ever set for quotes.
type MarketEvent struct {
	TradeDt    string
	FileTm     string
	RecordType RecordType
	Symbol     string
	EventTm    string
	EventSeqNb *int32
	Exchange   string
	BidPr      decimal.NullDecimal
	BidSize    *int32
	AskPr      decimal.NullDecimal
	AskSize    *int32
}

// Partition returns the physical partition key, which is always the record
// type.
func (e MarketEvent) Partition() string { return string(e.RecordType) }

// Values returns the event as a positional row aligned with Columns. Nulls
// are plain nil; decimals are rendered with their fixed scale so every SQL
// driver can bind them as text.
func (e MarketEvent) Values() []any {
	return []any{
		e.TradeDt,
		e.FileTm,
		string(e.RecordType),
		e.Symbol,
		e.EventTm,
		int32Value(e.EventSeqNb),
		e.Exchange,
		decimalValue(e.BidPr),
		int32Value(e.BidSize),
		decimalValue(e.AskPr),
		int32Value(e.AskSize),
		e.Partition(),
	}
}

func int32Value(p *int32) any {
	if p == nil {
		return nil
	}
	return *p
}

func decimalValue(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.StringFixed(PriceScale)
}
