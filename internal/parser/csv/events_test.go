package csv

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketetl/internal/config"
	"marketetl/internal/parser"
	"marketetl/internal/schema"
)

type collected struct {
	lines []int
	errs  []error
}

func (c *collected) onErr(line int, err error) {
	c.lines = append(c.lines, line)
	c.errs = append(c.errs, err)
}

func parse(t *testing.T, input string, opt config.Options) (parser.Result, *collected) {
	t.Helper()
	if opt == nil {
		opt = config.Options{}
	}
	var c collected
	res, err := ParseEvents(context.Background(), strings.NewReader(input), opt, c.onErr)
	require.NoError(t, err)
	return res, &c
}

func TestParseEvents_TradeLine(t *testing.T) {
	t.Parallel()

	res, errs := parse(t, "2020-08-05,093015,T,AAPL,093015123,42,NYSE,150.25,100\n", nil)
	require.Empty(t, errs.errs)
	require.Len(t, res.Events, 1)
	assert.Equal(t, 1, res.Lines)
	assert.Equal(t, schema.Canonical.Fingerprint(), res.Contract.Fingerprint())

	ev := res.Events[0]
	assert.Equal(t, schema.Trade, ev.RecordType)
	assert.Equal(t, "2020-08-05", ev.TradeDt)
	assert.Equal(t, "093015", ev.FileTm)
	assert.Equal(t, "AAPL", ev.Symbol)
	assert.Equal(t, "093015123", ev.EventTm)
	require.NotNil(t, ev.EventSeqNb)
	assert.EqualValues(t, 42, *ev.EventSeqNb)
	assert.Equal(t, "NYSE", ev.Exchange)
	require.True(t, ev.BidPr.Valid)
	assert.Equal(t, "150.25", ev.BidPr.Decimal.StringFixed(2))
	require.NotNil(t, ev.BidSize)
	assert.EqualValues(t, 100, *ev.BidSize)
	assert.False(t, ev.AskPr.Valid)
	assert.Nil(t, ev.AskSize)
	assert.Equal(t, "T", ev.Partition())
}

func TestParseEvents_QuoteLine(t *testing.T) {
	t.Parallel()

	res, errs := parse(t, "2020-08-05,093015,Q,AAPL,093015123,43,NYSE,150.20,200,150.30,150\n", nil)
	require.Empty(t, errs.errs)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Equal(t, schema.Quote, ev.RecordType)
	assert.Equal(t, "150.20", ev.BidPr.Decimal.StringFixed(2))
	require.True(t, ev.AskPr.Valid)
	assert.Equal(t, "150.30", ev.AskPr.Decimal.StringFixed(2))
	require.NotNil(t, ev.AskSize)
	assert.EqualValues(t, 150, *ev.AskSize)
}

func TestParseEvents_TradeIgnoresExtraAskFields(t *testing.T) {
	t.Parallel()

	res, _ := parse(t, "2020-08-05,093015,T,AAPL,093015123,42,NYSE,150.25,100,151.00,10\n", nil)
	require.Len(t, res.Events, 1)
	assert.False(t, res.Events[0].AskPr.Valid)
	assert.Nil(t, res.Events[0].AskSize)
}

func TestParseEvents_QuoteWithMissingAskFields(t *testing.T) {
	t.Parallel()

	res, errs := parse(t, "2020-08-05,093015,Q,AAPL,093015123,43,NYSE,150.20,200\n", nil)
	require.Empty(t, errs.errs)
	require.Len(t, res.Events, 1)
	assert.False(t, res.Events[0].AskPr.Valid)
	assert.Nil(t, res.Events[0].AskSize)
}

func TestParseEvents_ShortLinesDropped(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"2020-08-05,093015,T,AAPL,093015123,42,NYSE,150.25,100",
		"2020-08-05,093015,T,AAPL",
		"",
		"2020-08-05,093016,Q,MSFT,093016000,44,NYSE,210.10,5,210.20,7",
	}, "\n")

	res, errs := parse(t, input, nil)
	require.Len(t, res.Events, 2)
	assert.Equal(t, 4, res.Lines)
	assert.Equal(t, []int{2, 3}, errs.lines)

	var se *parser.StructureError
	require.True(t, errors.As(errs.errs[0], &se))
	assert.Equal(t, 4, se.Fields)
	assert.Equal(t, MinFields, se.Want)
}

func TestParseEvents_CoercionFailuresBecomeNull(t *testing.T) {
	t.Parallel()

	res, errs := parse(t, "2020-08-05,093015,T,AAPL,093015123,x42,NYSE,abc,1e99\n", nil)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Nil(t, ev.EventSeqNb)
	assert.False(t, ev.BidPr.Valid)
	assert.Nil(t, ev.BidSize)

	require.Len(t, errs.errs, 3)
	fields := make([]string, 0, 3)
	for i, err := range errs.errs {
		var ce *schema.CoercionError
		require.True(t, errors.As(err, &ce), "err %d = %v", i, err)
		assert.Equal(t, 1, errs.lines[i])
		fields = append(fields, ce.Field)
	}
	assert.ElementsMatch(t, []string{"event_seq_nb", "bid_pr", "bid_size"}, fields)
}

func TestParseEvents_OtherKindsPassThrough(t *testing.T) {
	t.Parallel()

	res, _ := parse(t, "2020-08-05,093015,B,AAPL,093015123,42,NYSE,150.25,100\n", nil)
	require.Len(t, res.Events, 1)
	assert.Equal(t, schema.RecordType("B"), res.Events[0].RecordType)
}

func TestParseEvents_PaddedRecordTypeIsNotAQuote(t *testing.T) {
	t.Parallel()

	input := "2020-08-05,093015, T ,AAPL,093015123,42,NYSE,1.00,1\n" +
		"2020-08-05,093015,Q ,AAPL,093015123,43,NYSE,1.00,1,2.00,2\n" +
		"2020-08-05,093015,Q,AAPL,093015123,44,NYSE,1.00,1,2.00,2\n"
	res, _ := parse(t, input, nil)
	require.Len(t, res.Events, 3)

	assert.Equal(t, schema.RecordType(" T "), res.Events[0].RecordType)
	assert.Equal(t, schema.RecordType("Q "), res.Events[1].RecordType)
	assert.False(t, res.Events[1].AskPr.Valid)
	assert.Nil(t, res.Events[1].AskSize)
	assert.True(t, res.Events[2].AskPr.Valid)

	var valid int
	for _, ev := range res.Events {
		if ev.RecordType.Valid() {
			valid++
		}
	}
	assert.Equal(t, 1, valid)
}

func TestParseEvents_CRLFAndBOM(t *testing.T) {
	t.Parallel()

	input := utf8BOM + "2020-08-05,093015,T,AAPL,093015123,42,NYSE,150.25,100\r\n" +
		"2020-08-05,093015,Q,AAPL,093015123,43,NYSE,150.20,200,150.30,150\r\n"
	res, errs := parse(t, input, nil)
	require.Empty(t, errs.errs)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "2020-08-05", res.Events[0].TradeDt)
	require.NotNil(t, res.Events[1].AskSize)
	assert.EqualValues(t, 150, *res.Events[1].AskSize)
}

func TestParseEvents_DelimiterAndTrimOptions(t *testing.T) {
	t.Parallel()

	line := "2020-08-05| 093015 |T| AAPL |093015123|42|NYSE|150.25|100\n"

	res, _ := parse(t, line, config.Options{"delimiter": "|"})
	require.Len(t, res.Events, 1)
	assert.Equal(t, "AAPL", res.Events[0].Symbol)
	assert.Equal(t, "093015", res.Events[0].FileTm)

	res, _ = parse(t, line, config.Options{"delimiter": "|", "trim_space": false})
	require.Len(t, res.Events, 1)
	assert.Equal(t, " AAPL ", res.Events[0].Symbol)
}

func TestParseEvents_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ParseEvents(ctx, strings.NewReader("a,b,c\n"), config.Options{}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func BenchmarkParseEvents(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 10_000; i++ {
		if i%2 == 0 {
			sb.WriteString("2020-08-05,093015,T,AAPL,093015123,42,NYSE,150.25,100\n")
		} else {
			sb.WriteString("2020-08-05,093015,Q,AAPL,093015123,43,NYSE,150.20,200,150.30,150\n")
		}
	}
	input := sb.String()
	b.SetBytes(int64(len(input)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseEvents(context.Background(), strings.NewReader(input), config.Options{}, nil); err != nil {
			b.Fatal(err)
		}
	}
}
