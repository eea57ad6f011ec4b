package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haidl/tvstream/wire"
)

type recordedCall struct {
	verb   wire.Verb
	params []interface{}
}

func recordingSender() (Sender, *[]recordedCall) {
	calls := &[]recordedCall{}
	return func(verb wire.Verb, params []interface{}) error {
		*calls = append(*calls, recordedCall{verb: verb, params: params})
		return nil
	}, calls
}

func TestDriverOpenSequence(t *testing.T) {
	send, calls := recordingSender()
	d := NewDriver(send, "cs_abc", "qs_xyz", zerolog.Nop())

	require.NoError(t, d.Open("en"))

	wantVerbs := []wire.Verb{
		wire.VerbSetAuthToken,
		wire.VerbSetLocale,
		wire.VerbChartCreateSession,
		wire.VerbQuoteCreateSession,
		wire.VerbQuoteSetFields,
		wire.VerbQuoteHibernateAll,
	}
	require.Len(t, *calls, len(wantVerbs))
	for i, c := range *calls {
		assert.Equal(t, wantVerbs[i], c.verb, "step %d", i)
	}
	assert.Equal(t, []interface{}{wire.UnauthorizedToken}, (*calls)[0].params)
	assert.Equal(t, "cs_abc", (*calls)[2].params[0])
	assert.Equal(t, "qs_xyz", (*calls)[3].params[0])
}

func TestDriverAddSeriesSequence(t *testing.T) {
	send, calls := recordingSender()
	d := NewDriver(send, "cs_abc", "qs_xyz", zerolog.Nop())

	require.NoError(t, d.AddSeries(SeriesSpec{Symbol: "NASDAQ:AAPL", Interval: "1", HistoryBars: 300}))

	wantVerbs := []wire.Verb{
		wire.VerbQuoteAddSymbols,
		wire.VerbResolveSymbol,
		wire.VerbCreateSeries,
		wire.VerbQuoteFastSymbols,
		wire.VerbCreateStudy,
		wire.VerbQuoteHibernateAll,
	}
	require.Len(t, *calls, len(wantVerbs))
	for i, c := range *calls {
		assert.Equal(t, wantVerbs[i], c.verb, "step %d", i)
	}
	createSeries := (*calls)[2].params
	assert.Equal(t, "cs_abc", createSeries[0])
	assert.Equal(t, wire.HistorySeriesKey, createSeries[1])
	assert.Equal(t, wire.SymbolKey, createSeries[3])
	assert.Equal(t, "1", createSeries[4])
	assert.Equal(t, 300, createSeries[5])
}

func TestDriverAddTickersBatches(t *testing.T) {
	send, calls := recordingSender()
	d := NewDriver(send, "cs_abc", "qs_xyz", zerolog.Nop())

	specs := []TickerSpec{
		{Symbol: "BINANCE:BTCUSDT", CurrencyID: "USD", Session: "regular"},
		{Symbol: "BINANCE:ETHUSDT", CurrencyID: "USD", Session: "regular"},
	}
	require.NoError(t, d.AddTickers(specs))

	wantVerbs := []wire.Verb{
		wire.VerbQuoteAddSymbols,
		wire.VerbQuoteAddSymbols,
		wire.VerbQuoteFastSymbols,
		wire.VerbQuoteHibernateAll,
	}
	require.Len(t, *calls, len(wantVerbs))
	for i, c := range *calls {
		assert.Equal(t, wantVerbs[i], c.verb, "step %d", i)
	}
	fast := (*calls)[2].params
	assert.Equal(t, []interface{}{"qs_xyz", "BINANCE:BTCUSDT", "BINANCE:ETHUSDT"}, fast)
}

func TestDriverAddTickersRejectsEmpty(t *testing.T) {
	send, _ := recordingSender()
	d := NewDriver(send, "cs_abc", "qs_xyz", zerolog.Nop())
	assert.Error(t, d.AddTickers(nil))
}

func TestDriverAddSeriesReadinessGate(t *testing.T) {
	send, _ := recordingSender()
	d := NewDriver(send, "cs_abc", "qs_xyz", zerolog.Nop())
	require.NoError(t, d.AddSeries(SeriesSpec{Symbol: "NASDAQ:AAPL", Interval: "1"}))

	assert.False(t, d.Ready())
	d.NotifyQuoteCompleted()
	assert.False(t, d.Ready())
	d.NotifySeriesCompleted()
	assert.True(t, d.Ready())
}

func TestDriverAddTickersReadinessGateNeedsOnlyQuote(t *testing.T) {
	send, _ := recordingSender()
	d := NewDriver(send, "cs_abc", "qs_xyz", zerolog.Nop())
	require.NoError(t, d.AddTickers([]TickerSpec{{Symbol: "BINANCE:BTCUSDT"}}))

	assert.False(t, d.Ready())
	d.NotifyQuoteCompleted()
	assert.True(t, d.Ready())
}

func TestDriverWaitReadyUnblocksOnNotify(t *testing.T) {
	send, _ := recordingSender()
	d := NewDriver(send, "cs_abc", "qs_xyz", zerolog.Nop())
	require.NoError(t, d.AddTickers([]TickerSpec{{Symbol: "BINANCE:BTCUSDT"}}))

	done := make(chan error, 1)
	go func() { done <- d.WaitReady(context.Background()) }()
	d.NotifyQuoteCompleted()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitReady did not unblock after Notify")
	}
}

func TestDriverWaitReadyRespectsContext(t *testing.T) {
	send, _ := recordingSender()
	d := NewDriver(send, "cs_abc", "qs_xyz", zerolog.Nop())
	require.NoError(t, d.AddSeries(SeriesSpec{Symbol: "NASDAQ:AAPL", Interval: "1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.WaitReady(ctx), context.Canceled)
}
