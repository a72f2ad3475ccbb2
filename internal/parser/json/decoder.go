// Package json decodes JSON-lines market-event feeds into canonical events.
//
// Each non-blank line holds one object:
//
//	{"trade_dt":"2020-08-05","event_type":"T","symbol":"AAPL","bid_pr":150.25,...}
//
// A top-level array of objects is accepted as well. The source is decoded as
// one batch: if any value is malformed or is not an object, the whole source
// fails with *parser.BatchDecodeError and yields no events. There is no
// per-line recovery.
package json

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"

	"marketetl/internal/config"
	"marketetl/internal/parser"
	"marketetl/internal/schema"
)

// Options controls decoding.
//
//   - field_map (object): source key -> canonical field name, applied before
//     the default aliases (event_type -> record_type).
//   - trim_space (bool; default true) trims text fields.
type Options struct {
	FieldMap  map[string]string
	TrimSpace bool
}

// FromConfigOptions reads Options from a source's free-form option map.
func FromConfigOptions(o config.Options) Options {
	return Options{
		FieldMap:  o.StringMap("field_map"),
		TrimSpace: o.Bool("trim_space", true),
	}
}

// canonicalName resolves a source key to a canonical input field name.
func (o Options) canonicalName(key string) string {
	if n, ok := o.FieldMap[key]; ok {
		return n
	}
	if n, ok := schema.DefaultAliases[key]; ok {
		return n
	}
	return key
}

// Decoder yields one JSON object per call to Next. Top-level arrays are
// flattened into their elements.
type Decoder struct {
	dec     *json.Decoder
	pending []any
	n       int
}

// NewDecoder wraps r. Numbers are kept as json.Number so prices are not
// routed through float64.
func NewDecoder(r io.Reader) *Decoder {
	d := json.NewDecoder(r)
	d.UseNumber()
	return &Decoder{dec: d}
}

// Next returns the next object. It returns io.EOF once the stream is
// exhausted and *parser.BatchDecodeError for malformed input or a value that
// is not an object.
func (d *Decoder) Next() (map[string]any, error) {
	for len(d.pending) == 0 {
		var v any
		if err := d.dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &parser.BatchDecodeError{Line: d.n + 1, Err: err}
		}
		if arr, ok := v.([]any); ok {
			d.pending = arr
			continue
		}
		d.pending = []any{v}
	}

	v := d.pending[0]
	d.pending = d.pending[1:]
	d.n++

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &parser.BatchDecodeError{Line: d.n, Err: fmt.Errorf("value is %s, want object", kindOf(v))}
	}
	return obj, nil
}

// Count returns the number of values returned or rejected so far.
func (d *Decoder) Count() int { return d.n }

// DecodeBatch decodes every object in r and maps it onto the canonical
// schema. Coercion failures become nulls and are reported to onErr (which may
// be nil) as *schema.CoercionError; any decode failure discards the batch.
func DecodeBatch(ctx context.Context, r io.Reader, opt config.Options, onErr parser.ErrFunc) (parser.Result, error) {
	o := FromConfigOptions(opt)
	nopt := schema.NormalizeOptions{TrimSpace: o.TrimSpace}

	dec := NewDecoder(r)
	var objs []map[string]any
	for {
		if dec.Count()%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return parser.Result{Contract: schema.Canonical}, err
			}
		}
		obj, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return parser.Result{Contract: schema.Canonical, Lines: dec.Count()}, err
		}
		objs = append(objs, obj)
	}

	res := parser.Result{
		Contract: schema.Canonical,
		Events:   make([]schema.MarketEvent, 0, len(objs)),
		Lines:    len(objs),
	}
	for i, obj := range objs {
		line := i + 1
		ev := schema.Normalize(line, toRaw(obj, o), nopt, func(err error) {
			if onErr != nil {
				onErr(line, err)
			}
		})
		res.Events = append(res.Events, ev)
	}
	return res, nil
}

// toRaw renders scalar values as text. Booleans, objects, arrays and null
// leave the slot empty so they coerce to null.
func toRaw(obj map[string]any, o Options) schema.Raw {
	var raw schema.Raw
	for k, v := range obj {
		s, ok := scalarText(v)
		if !ok {
			continue
		}
		raw.Set(o.canonicalName(k), s)
	}
	return raw
}

func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
