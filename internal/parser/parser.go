// Package parser holds the contracts shared by the per-format record parsers
// in its subpackages.
package parser

import (
	"fmt"

	"marketetl/internal/schema"
)

// Result is the output of parsing one source: normalized candidates (not yet
// filtered by record kind) plus the contract they conform to.
type Result struct {
	Contract schema.Contract
	Events   []schema.MarketEvent
	Lines    int // raw lines read, blank lines included
}

// ErrFunc receives recoverable per-line problems. Parsing continues after it
// returns.
type ErrFunc func(line int, err error)

// StructureError reports a delimited line with too few fields to map. The
// line is dropped.
type StructureError struct {
	Line   int
	Fields int
	Want   int
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("line %d: %d fields, want at least %d", e.Line, e.Fields, e.Want)
}

// BatchDecodeError reports that a JSON source could not be decoded as a
// whole. No rows from that source are kept; per-line recovery is not
// attempted.
type BatchDecodeError struct {
	Line int
	Err  error
}

func (e *BatchDecodeError) Error() string {
	return fmt.Sprintf("json batch decode failed at record %d: %v", e.Line, e.Err)
}

func (e *BatchDecodeError) Unwrap() error { return e.Err }
