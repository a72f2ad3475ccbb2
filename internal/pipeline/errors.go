package pipeline

import (
	"errors"
	"sync"
)

// Sentinel outcomes. ErrDiscoveryEmpty, ErrNoLines and ErrNoRecords mark a
// SKIPPED source; ErrNoData is reported without failing the run. The rest
// abort the run.
var (
	ErrDiscoveryEmpty   = errors.New("no input files found")
	ErrNoLines          = errors.New("no data found")
	ErrNoRecords        = errors.New("no trade or quote records")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrNoData           = errors.New("no source contributed data")
	ErrWrite            = errors.New("write failed")
	ErrAllSourcesFailed = errors.New("all sources failed")
)

// errAgg aggregates per-line issues. It counts every issue but keeps only
// the first limit messages, so memory stays bounded however noisy a feed is.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}

func (a *errAgg) snapshot() (int, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count, append([]string(nil), a.first...)
}
