package schema

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// Compare is a total order over every field of an event. Sorting by it makes
// the output of a union independent of the order sources were processed in.
func Compare(a, b MarketEvent) int {
	if c := cmp.Compare(a.RecordType, b.RecordType); c != 0 {
		return c
	}
	if c := cmp.Compare(a.TradeDt, b.TradeDt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Exchange, b.Exchange); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Symbol, b.Symbol); c != 0 {
		return c
	}
	if c := cmp.Compare(a.EventTm, b.EventTm); c != 0 {
		return c
	}
	if c := compareInt(a.EventSeqNb, b.EventSeqNb); c != 0 {
		return c
	}
	if c := cmp.Compare(a.FileTm, b.FileTm); c != 0 {
		return c
	}
	if c := compareDecimal(a.BidPr, b.BidPr); c != 0 {
		return c
	}
	if c := compareInt(a.BidSize, b.BidSize); c != 0 {
		return c
	}
	if c := compareDecimal(a.AskPr, b.AskPr); c != 0 {
		return c
	}
	return compareInt(a.AskSize, b.AskSize)
}

// SortEvents sorts events in place by Compare.
func SortEvents(events []MarketEvent) { slices.SortFunc(events, Compare) }

// nulls sort first
func compareInt(a, b *int32) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(*a, *b)
}

func compareDecimal(a, b decimal.NullDecimal) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return -1
	case !b.Valid:
		return 1
	}
	return a.Decimal.Cmp(b.Decimal)
}
