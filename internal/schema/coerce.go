package schema

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// maxPrice is the first value that no longer fits DECIMAL(18,2).
var maxPrice = decimal.New(1, PricePrecision-PriceScale)

// ToInt32 casts text to a 32-bit integer the way a SQL string cast does:
// surrounding whitespace is ignored, a fractional part is truncated toward
// zero and anything unparseable or out of range is rejected. Exponent forms
// such as "1e3" are not integers and are rejected too.
func ToInt32(s string) (int32, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(n), true
	}
	if strings.ContainsAny(s, "eE") {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	t := d.Truncate(0)
	if t.LessThan(decimal.NewFromInt(math.MinInt32)) || t.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0, false
	}
	return int32(t.IntPart()), true
}

// ToPrice casts text to a DECIMAL(18,2) value, rounding half away from zero
// to two fractional digits. Values that overflow the precision are rejected.
func ToPrice(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	d = d.Round(PriceScale)
	if d.Abs().GreaterThanOrEqual(maxPrice) {
		return decimal.Decimal{}, false
	}
	return d, true
}
