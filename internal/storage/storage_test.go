package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketetl/internal/schema"
)

// fakeRepo is a minimal Repository implementation for tests.
type fakeRepo struct {
	closed bool
}

func (f *fakeRepo) ReplacePartitions(_ context.Context, events []schema.MarketEvent) (WriteResult, error) {
	return Result(GroupByPartition(events)), nil
}
func (f *fakeRepo) Close() { f.closed = true }

func ev(kind schema.RecordType, sym string, seq int32) schema.MarketEvent {
	return schema.MarketEvent{
		TradeDt:    "2020-08-05",
		RecordType: kind,
		Symbol:     sym,
		Exchange:   "NYSE",
		EventSeqNb: &seq,
		BidPr:      decimal.NullDecimal{Decimal: decimal.RequireFromString("1.50"), Valid: true},
	}
}

func TestRegisterAndNew(t *testing.T) {
	t.Parallel()

	Register("fake-storage-test", func(ctx context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "fake-storage-test"})
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Contains(t, ListKinds(), "fake-storage-test")
	assert.True(t, slices.IsSorted(ListKinds()))

	repo.Close()
	assert.True(t, repo.(*fakeRepo).closed)
}

func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported storage kind "nope"`)
}

func TestNew_FactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	Register("failing-storage-test", func(context.Context, Config) (Repository, error) { return nil, boom })
	_, err := New(context.Background(), Config{Kind: "failing-storage-test"})
	assert.ErrorIs(t, err, boom)
}

func TestGroupByPartition_OrderIndependent(t *testing.T) {
	t.Parallel()

	a := []schema.MarketEvent{
		ev(schema.Trade, "MSFT", 2),
		ev(schema.Quote, "AAPL", 1),
		ev(schema.Trade, "AAPL", 9),
		ev(schema.Quote, "AAPL", 0),
	}
	b := []schema.MarketEvent{a[3], a[2], a[0], a[1]}

	ga, gb := GroupByPartition(a), GroupByPartition(b)
	require.Equal(t, []string{"Q", "T"}, Keys(ga))
	require.Equal(t, ga, gb)

	assert.Equal(t, "AAPL", ga[1].Events[0].Symbol)
	assert.Equal(t, "MSFT", ga[1].Events[1].Symbol)
	assert.EqualValues(t, 0, *ga[0].Events[0].EventSeqNb)

	// input untouched
	assert.Equal(t, "MSFT", a[0].Symbol)

	res := Result(ga)
	assert.EqualValues(t, 4, res.Rows)
	assert.Equal(t, map[string]int64{"Q": 2, "T": 2}, res.Partitions)
}

func TestRows_AlignedWithColumns(t *testing.T) {
	t.Parallel()

	rows := Rows(GroupByPartition([]schema.MarketEvent{ev(schema.Trade, "AAPL", 1)}))
	require.Len(t, rows, 1)
	require.Len(t, rows[0], len(schema.Columns()))
	assert.Equal(t, "1.50", rows[0][7])
	assert.Equal(t, "T", rows[0][len(rows[0])-1])
}

func TestDeleteSQL(t *testing.T) {
	t.Parallel()

	dollar := func(i int) string { return "$" + string(rune('0'+i)) }

	q, args := DeleteSQL(`"t"`, `"partition"`, []string{"Q", "T"}, false, dollar)
	assert.Equal(t, `DELETE FROM "t" WHERE "partition" IN ($1, $2)`, q)
	assert.Equal(t, []any{"Q", "T"}, args)

	q, args = DeleteSQL(`"t"`, `"partition"`, []string{"Q"}, true, dollar)
	assert.Equal(t, `DELETE FROM "t"`, q)
	assert.Empty(t, args)
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	q := InsertSQL("t", func(s string) string { return s }, 2, QuestionMark)
	assert.True(t, strings.HasPrefix(q, "INSERT INTO t (trade_dt, file_tm, record_type,"))
	assert.Equal(t, 2*len(schema.Columns()), strings.Count(q, "?"))
	assert.Equal(t, 2, strings.Count(q, "("+strings.Repeat("?, ", len(schema.Columns())-1)+"?)"))
}

func TestLoadBatches(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 7)
	for i := range rows {
		rows[i] = []any{i}
	}
	var calls int32
	copyFn := func(_ context.Context, _ []string, batch [][]any) (int64, error) {
		atomic.AddInt32(&calls, 1)
		return int64(len(batch)), nil
	}
	total, err := LoadBatches(context.Background(), nil, []string{"c"}, rows, 3, copyFn)
	require.NoError(t, err)
	assert.EqualValues(t, 7, total)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestLoadBatches_Errors(t *testing.T) {
	t.Parallel()

	rows := [][]any{{1}, {2}, {3}, {4}, {5}}
	wantErr := errors.New("copy failed")
	var n int
	copyFn := func(_ context.Context, _ []string, batch [][]any) (int64, error) {
		n++
		if n == 2 {
			return 0, wantErr
		}
		return int64(len(batch)), nil
	}
	total, err := LoadBatches(context.Background(), nil, nil, rows, 2, copyFn)
	assert.ErrorIs(t, err, wantErr)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, 2, n)

	_, err = LoadBatches(context.Background(), nil, nil, rows, 0, copyFn)
	assert.Error(t, err)
	_, err = LoadBatches(context.Background(), nil, nil, rows, 1, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = LoadBatches(ctx, nil, nil, rows, 1, copyFn)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, Config{OverwriteMode: OverwriteStatic}.Static())
	assert.False(t, Config{}.Static())
	assert.NotNil(t, Config{}.Log())
}
