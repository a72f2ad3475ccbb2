package transformer

import (
	"sync/atomic"
	"testing"

	"marketetl/internal/schema"
)

/*
markTransformer appends a marker to each event's symbol. Used to verify that
Chain feeds each transformer the previous one's output, in order.
*/
type markTransformer struct {
	mark string
}

func (t markTransformer) Apply(in []schema.MarketEvent) []schema.MarketEvent {
	for i := range in {
		in[i].Symbol += t.mark
	}
	return in
}

/*
counterTransformer increments *calls whenever Apply is invoked.
*/
type counterTransformer struct {
	calls *int32
}

func (t counterTransformer) Apply(in []schema.MarketEvent) []schema.MarketEvent {
	atomic.AddInt32(t.calls, 1)
	return in
}

// --- Helpers ---

func events(kinds ...schema.RecordType) []schema.MarketEvent {
	out := make([]schema.MarketEvent, len(kinds))
	for i, k := range kinds {
		out[i] = schema.MarketEvent{RecordType: k, Symbol: string(k)}
	}
	return out
}

func kindsOf(in []schema.MarketEvent) string {
	b := make([]byte, 0, len(in))
	for _, ev := range in {
		b = append(b, string(ev.RecordType)...)
	}
	return string(b)
}

// --- Unit tests ---

/*
TestChainApply_Composition_Order verifies that transforms run in the declared
order.
*/
func TestChainApply_Composition_Order(t *testing.T) {
	in := []schema.MarketEvent{{Symbol: "X"}}
	c := Chain{
		markTransformer{mark: "1"},
		markTransformer{mark: "2"},
		markTransformer{mark: "3"},
	}
	out := c.Apply(in)
	if out[0].Symbol != "X123" {
		t.Fatalf("composition mismatch: got %q want %q", out[0].Symbol, "X123")
	}
}

/*
TestChainApply_NilAndEmptyChain verifies that a nil or empty Chain returns the
input slice unchanged.
*/
func TestChainApply_NilAndEmptyChain(t *testing.T) {
	in := events(schema.Trade, schema.Quote)

	var cNil Chain
	out := cNil.Apply(in)
	if len(out) != len(in) || &out[0] != &in[0] {
		t.Fatalf("nil chain should return same slice header")
	}
	if out := (Chain{}).Apply(in); len(out) != 2 {
		t.Fatalf("empty chain changed length: %d", len(out))
	}
}

/*
TestChainApply_TransformerCalledOnce ensures each transformer is invoked
exactly once per Chain.Apply call.
*/
func TestChainApply_TransformerCalledOnce(t *testing.T) {
	var calls int32
	c := Chain{counterTransformer{&calls}, counterTransformer{&calls}, counterTransformer{&calls}}
	_ = c.Apply(events(schema.Trade))
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls=%d; want 3", got)
	}
}

/*
TestKindFilter_KeepsTradesAndQuotes verifies the default filter keeps T and Q
in their original order and counts everything else as dropped.
*/
func TestKindFilter_KeepsTradesAndQuotes(t *testing.T) {
	t.Parallel()

	in := events("T", "B", "Q", "", "t", "Q", "X")
	var dropped atomic.Int64
	out := KindFilter{Dropped: &dropped}.Apply(in)

	if got := kindsOf(out); got != "TQQ" {
		t.Fatalf("kinds=%q; want TQQ", got)
	}
	if got := dropped.Load(); got != 4 {
		t.Fatalf("dropped=%d; want 4", got)
	}
	for _, ev := range out {
		if !ev.RecordType.Valid() {
			t.Fatalf("invalid kind leaked: %#v", ev)
		}
	}
}

/*
TestKindFilter_Split covers custom allow-lists and empty input.
*/
func TestKindFilter_Split(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		allowed     []schema.RecordType
		in          []schema.MarketEvent
		wantKinds   string
		wantDropped int
	}{
		{"nil_input", nil, nil, "", 0},
		{"all_kept", nil, events("T", "Q"), "TQ", 0},
		{"all_dropped", nil, events("B", "B"), "", 2},
		{"trades_only", []schema.RecordType{schema.Trade}, events("T", "Q", "T"), "TT", 1},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, dropped := KindFilter{Allowed: tc.allowed}.Split(tc.in)
			if got := kindsOf(out); got != tc.wantKinds {
				t.Fatalf("kinds=%q; want %q", got, tc.wantKinds)
			}
			if dropped != tc.wantDropped {
				t.Fatalf("dropped=%d; want %d", dropped, tc.wantDropped)
			}
		})
	}
}

/*
TestKindFilter_SteadyStateAllocs checks that in-place filtering does not
allocate.
*/
func TestKindFilter_SteadyStateAllocs(t *testing.T) {
	in := events("T", "Q", "T", "Q")
	f := KindFilter{}
	allocs := testing.AllocsPerRun(500, func() {
		_ = f.Apply(in)
	})
	if allocs > 0.20 {
		t.Fatalf("allocs/op=%.2f; want <= 0.20", allocs)
	}
}

func BenchmarkKindFilter(b *testing.B) {
	src := make([]schema.MarketEvent, 10_000)
	for i := range src {
		if i%3 == 0 {
			src[i].RecordType = "B"
		} else if i%2 == 0 {
			src[i].RecordType = schema.Trade
		} else {
			src[i].RecordType = schema.Quote
		}
	}
	buf := make([]schema.MarketEvent, len(src))
	f := KindFilter{}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		copy(buf, src)
		_ = f.Apply(buf)
	}
}
