// Package transformer holds in-memory transforms applied to a source's
// normalized events before they are unioned.
package transformer

import (
	"sync/atomic"

	"marketetl/internal/schema"
)

type Transformer interface {
	Apply([]schema.MarketEvent) []schema.MarketEvent
}

// Chain is an ordered list of transformers.
type Chain []Transformer

func (c Chain) Apply(in []schema.MarketEvent) []schema.MarketEvent {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}

// DefaultKinds are the record kinds the pipeline keeps.
var DefaultKinds = []schema.RecordType{schema.Trade, schema.Quote}

// KindFilter keeps events whose record type is in Allowed (DefaultKinds when
// empty). Dropped, when non-nil, accumulates the number of removed events.
// Filtering happens in place.
type KindFilter struct {
	Allowed []schema.RecordType
	Dropped *atomic.Int64
}

func (f KindFilter) Apply(in []schema.MarketEvent) []schema.MarketEvent {
	out, dropped := f.Split(in)
	if f.Dropped != nil && dropped > 0 {
		f.Dropped.Add(int64(dropped))
	}
	return out
}

// Split filters in place and returns the survivors and how many were removed.
func (f KindFilter) Split(in []schema.MarketEvent) ([]schema.MarketEvent, int) {
	allowed := f.Allowed
	if len(allowed) == 0 {
		allowed = DefaultKinds
	}
	out := in[:0]
	for _, ev := range in {
		if keep(allowed, ev.RecordType) {
			out = append(out, ev)
		}
	}
	return out, len(in) - len(out)
}

func keep(allowed []schema.RecordType, t schema.RecordType) bool {
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}
