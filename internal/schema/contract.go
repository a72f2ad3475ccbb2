package schema

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Column types used by the canonical contract. Backends map these onto their
// own SQL or columnar types.
const (
	TypeString  = "string"
	TypeInt     = "int"
	TypeDecimal = "decimal(18,2)"
)

const (
	// PricePrecision and PriceScale describe the fixed-point price columns.
	PricePrecision = 18
	PriceScale     = 2
)

// Field describes one column of a contract.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Contract is an ordered column list. Record sets can only be unioned when
// their contracts share a fingerprint.
type Contract struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Canonical is the single unified shape all sources are normalized into.
var Canonical = Contract{
	Name: "market_event",
	Fields: []Field{
		{Name: "trade_dt", Type: TypeString, Nullable: true},
		{Name: "file_tm", Type: TypeString, Nullable: true},
		{Name: "record_type", Type: TypeString, Nullable: true},
		{Name: "symbol", Type: TypeString, Nullable: true},
		{Name: "event_tm", Type: TypeString, Nullable: true},
		{Name: "event_seq_nb", Type: TypeInt, Nullable: true},
		{Name: "exchange", Type: TypeString, Nullable: true},
		{Name: "bid_pr", Type: TypeDecimal, Nullable: true},
		{Name: "bid_size", Type: TypeInt, Nullable: true},
		{Name: "ask_pr", Type: TypeDecimal, Nullable: true},
		{Name: "ask_size", Type: TypeInt, Nullable: true},
		{Name: "partition", Type: TypeString, Nullable: true},
	},
}

// PartitionColumn is the derived column used for physical layout.
const PartitionColumn = "partition"

// Columns returns the canonical column names in positional order.
func Columns() []string { return Canonical.Columns() }

// Columns returns the contract's column names in order.
func (c Contract) Columns() []string {
	out := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		out[i] = f.Name
	}
	return out
}

// Fingerprint hashes the ordered (name, type, nullable) triples. The contract
// name is not part of the hash.
func (c Contract) Fingerprint() uint64 {
	var b strings.Builder
	for _, f := range c.Fields {
		b.WriteString(f.Name)
		b.WriteByte(':')
		b.WriteString(f.Type)
		b.WriteByte(':')
		b.WriteString(strconv.FormatBool(f.Nullable))
		b.WriteByte(';')
	}
	return xxh3.HashString(b.String())
}
