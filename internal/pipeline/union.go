package pipeline

import (
	"fmt"

	"marketetl/internal/schema"
)

// Union concatenates the events of every CONTRIBUTED source. All of them
// must carry the canonical contract; any other fingerprint fails the whole
// union with ErrSchemaMismatch before anything is written. Output order
// follows results, and the writer re-sorts, so source order does not affect
// what is stored.
func Union(results []SourceResult) ([]schema.MarketEvent, error) {
	want := schema.Canonical.Fingerprint()
	n := 0
	for _, r := range results {
		if r.State != StateContributed {
			continue
		}
		if got := r.Contract.Fingerprint(); got != want {
			return nil, fmt.Errorf("%w: source %s has contract %016x, want %016x", ErrSchemaMismatch, r.Source.Name(), got, want)
		}
		n += len(r.Events)
	}

	out := make([]schema.MarketEvent, 0, n)
	for _, r := range results {
		if r.State == StateContributed {
			out = append(out, r.Events...)
		}
	}
	return out, nil
}
