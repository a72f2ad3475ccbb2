// Package csv parses fixed-position delimited market-event lines into
// canonical events.
//
// Lines are split on a single delimiter with no quoting rules: feeds from the
// exchanges never quote, and a comma inside a field is treated as a field
// boundary. Positional layout:
//
//	0 trade_dt  1 file_tm  2 record_type  3 symbol  4 event_tm
//	5 event_seq_nb  6 exchange  7 bid_pr  8 bid_size  [9 ask_pr  10 ask_size]
//
// Fields 9 and 10 are only read for quote lines.
package csv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"marketetl/internal/config"
	"marketetl/internal/parser"
	"marketetl/internal/schema"
)

// MinFields is the smallest field count a line may have and still be mapped.
const MinFields = 9

// positional names in input order
var positions = [...]string{
	"trade_dt",
	"file_tm",
	"record_type",
	"symbol",
	"event_tm",
	"event_seq_nb",
	"exchange",
	"bid_pr",
	"bid_size",
	"ask_pr",
	"ask_size",
}

// maxLineBytes caps a single line; longer lines abort the source.
const maxLineBytes = 16 << 20

// ParseEvents reads r line by line and emits one event per structurally valid
// line. Lines with fewer than MinFields fields are dropped and reported to
// onErr as *parser.StructureError; fields that fail numeric coercion become
// null and are reported as *schema.CoercionError.
//
// Options:
//   - delimiter (string; first rune; default ',')
//   - trim_space (bool; default true) trims text fields
//
// The returned events are not filtered by record kind.
func ParseEvents(ctx context.Context, r io.Reader, opt config.Options, onErr parser.ErrFunc) (parser.Result, error) {
	delim := string(opt.Rune("delimiter", ','))
	nopt := schema.NormalizeOptions{TrimSpace: opt.Bool("trim_space", true)}

	res := parser.Result{Contract: schema.Canonical}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for sc.Scan() {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		line++

		text := strings.TrimSuffix(sc.Text(), "\r")
		if line == 1 {
			text = stripBOM(text)
		}

		fields := strings.Split(text, delim)
		if len(fields) < MinFields {
			if onErr != nil {
				onErr(line, &parser.StructureError{Line: line, Fields: len(fields), Want: MinFields})
			}
			continue
		}

		var raw schema.Raw
		for i, name := range positions {
			if i >= len(fields) {
				break
			}
			raw.Set(name, fields[i])
		}

		l := line
		ev := schema.Normalize(l, raw, nopt, func(err error) {
			if onErr != nil {
				onErr(l, err)
			}
		})
		res.Events = append(res.Events, ev)
	}
	res.Lines = line
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("csv: read line %d: %w", line+1, err)
	}
	return res, nil
}
