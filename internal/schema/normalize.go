package schema

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Raw is a fixed-arity record of optional source text, one slot per input
// field. A nil slot means the source did not provide the field at all.
type Raw struct {
	TradeDt    *string
	FileTm     *string
	RecordType *string
	Symbol     *string
	EventTm    *string
	EventSeqNb *string
	Exchange   *string
	BidPr      *string
	BidSize    *string
	AskPr      *string
	AskSize    *string
}

// DefaultAliases maps source field names that diverge from the canonical
// ones. JSON feeds call the record kind "event_type".
var DefaultAliases = map[string]string{
	"event_type": "record_type",
}

// Set assigns v to the slot named name (a canonical input field name). It
// reports false for names that are not part of the input shape.
func (r *Raw) Set(name, v string) bool {
	p := &v
	switch name {
	case "trade_dt":
		r.TradeDt = p
	case "file_tm":
		r.FileTm = p
	case "record_type":
		r.RecordType = p
	case "symbol":
		r.Symbol = p
	case "event_tm":
		r.EventTm = p
	case "event_seq_nb":
		r.EventSeqNb = p
	case "exchange":
		r.Exchange = p
	case "bid_pr":
		r.BidPr = p
	case "bid_size":
		r.BidSize = p
	case "ask_pr":
		r.AskPr = p
	case "ask_size":
		r.AskSize = p
	default:
		return false
	}
	return true
}

// CoercionError reports a field that could not be cast to its column type.
// The field becomes null; the record is kept.
type CoercionError struct {
	Line  int
	Field string
	Value string
	Type  string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("line %d: field %s: cannot cast %q to %s", e.Line, e.Field, e.Value, e.Type)
}

// NormalizeOptions tunes text handling.
type NormalizeOptions struct {
	// TrimSpace trims surrounding whitespace on text fields.
	TrimSpace bool
}

// Normalize maps raw source text onto a MarketEvent. Numeric fields that fail
// coercion are left null and reported to onErr (which may be nil). Ask fields
// are only read when the record type is a quote. TrimSpace never applies to
// the record type.
func Normalize(line int, raw Raw, opt NormalizeOptions, onErr func(error)) MarketEvent {
	report := func(field, value, typ string) {
		if onErr != nil {
			onErr(&CoercionError{Line: line, Field: field, Value: value, Type: typ})
		}
	}
	text := func(p *string) string {
		if p == nil {
			return ""
		}
		return cleanText(*p, opt.TrimSpace)
	}
	integer := func(field string, p *string) *int32 {
		if p == nil {
			return nil
		}
		n, ok := ToInt32(*p)
		if !ok {
			report(field, *p, TypeInt)
			return nil
		}
		return &n
	}
	price := func(field string, p *string) decimal.NullDecimal {
		if p == nil {
			return decimal.NullDecimal{}
		}
		d, ok := ToPrice(*p)
		if !ok {
			report(field, *p, TypeDecimal)
			return decimal.NullDecimal{}
		}
		return decimal.NullDecimal{Decimal: d, Valid: true}
	}

	// The record kind is compared as delivered: " T " or "Q " are not trades
	// or quotes and must not pick up ask fields.
	exact := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}

	ev := MarketEvent{
		TradeDt:    text(raw.TradeDt),
		FileTm:     text(raw.FileTm),
		RecordType: RecordType(exact(raw.RecordType)),
		Symbol:     text(raw.Symbol),
		EventTm:    text(raw.EventTm),
		EventSeqNb: integer("event_seq_nb", raw.EventSeqNb),
		Exchange:   text(raw.Exchange),
		BidPr:      price("bid_pr", raw.BidPr),
		BidSize:    integer("bid_size", raw.BidSize),
	}
	if ev.RecordType == Quote {
		ev.AskPr = price("ask_pr", raw.AskPr)
		ev.AskSize = integer("ask_size", raw.AskSize)
	}
	return ev
}

// cleanText strips control characters and applies NFC. Plain printable ASCII
// is returned untouched.
func cleanText(s string, trim bool) string {
	if trim {
		s = strings.TrimSpace(s)
	}
	if isPlainASCII(s) {
		return s
	}
	t := transform.Chain(runes.Remove(runes.In(unicode.Cc)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isPlainASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= utf8.RuneSelf || c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}
