package client

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/haidl/tvstream/candle"
	"github.com/haidl/tvstream/demux"
	"github.com/haidl/tvstream/errs"
	"github.com/haidl/tvstream/session"
	"github.com/haidl/tvstream/transport"
	"github.com/haidl/tvstream/validate"
	"github.com/haidl/tvstream/wire"
)

// Client is the OHLCV facade (spec §4.G). Each public call opens its own
// Transport for the duration of that call and releases it on return or on
// context cancellation — Transports are not pooled or shared (spec §3.3).
type Client struct {
	cfg       Config
	validator *validate.SymbolValidator
}

// New returns a Client using cfg, applying defaults for any unset tunable
// and rejecting a Config that fails validation (e.g. an empty Endpoint).
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindInvalidConfig, "invalid client config", err)
	}
	return &Client{
		cfg:       cfg,
		validator: validate.NewSymbolValidator(cfg.Validator, cfg.Logger),
	}, nil
}

// Stream is the handle returned by every streaming facade call: a channel
// of projected values, a channel carrying at most one terminal error, a
// Stats accessor safe to call concurrently with iteration, and a Close that
// releases the underlying Transport within its configured close timeout.
type Stream[T any] struct {
	C     <-chan T
	Err   <-chan error
	Close func() error
	Stats func() Stats

	state atomic.Int32
}

// State reports the stream's position in the spec §4.G state machine. A
// stream starts in StateSubscribing, moves to StateStreaming once the
// subscription is acknowledged, and to StateFailed on a protocol_error.
// Closing the stream or the connection ending does not change the state;
// StateClosed is never reported.
func (s *Stream[T]) State() State { return State(s.state.Load()) }

type openSession struct {
	tr     *transport.Transport
	driver *session.Driver
	demux  *demux.Demux
	stats  *statsTracker
}

func (c *Client) open(ctx context.Context) (*openSession, error) {
	tr, err := transport.Dial(ctx, c.cfg.Transport, c.cfg.Logger)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransportError, "dial failed", err)
	}

	chartID, err := session.NewID(session.ChartPrefix)
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("client: generate chart session id: %w", err)
	}
	quoteID, err := session.NewID(session.QuotePrefix)
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("client: generate quote session id: %w", err)
	}

	driver := session.NewDriver(tr.Send, chartID, quoteID, c.cfg.Logger)
	if err := driver.Open(c.cfg.Locale); err != nil {
		tr.Close()
		return nil, errs.Wrap(errs.KindHandshakeFailed, "opening sequence failed", err)
	}

	return &openSession{
		tr:     tr,
		driver: driver,
		demux:  demux.New(wire.HistorySeriesKey, c.cfg.Logger),
		stats:  newStatsTracker(),
	}, nil
}

// StreamCandles yields historical backfill bars (in timestamp order) then
// live bars for symbol/interval until the caller stops iterating or the
// Transport fails (spec §4.G).
func (c *Client) StreamCandles(ctx context.Context, symbol, interval string, barCount int) (*Stream[candle.Candle], error) {
	if err := validate.Interval(interval); err != nil {
		return nil, err
	}
	if err := c.validator.Validate(ctx, symbol); err != nil {
		return nil, err
	}

	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.driver.AddSeries(session.SeriesSpec{Symbol: symbol, Interval: interval, HistoryBars: barCount}); err != nil {
		s.tr.Close()
		return nil, errs.Wrap(errs.KindHandshakeFailed, "add-series sequence failed", err)
	}

	out := make(chan candle.Candle, 256)
	errCh := make(chan error, 1)
	stream := &Stream[candle.Candle]{
		C:     out,
		Err:   errCh,
		Close: s.tr.Close,
		Stats: func() Stats { return s.stats.snapshot() },
	}
	stream.state.Store(int32(StateSubscribing))

	go func() {
		defer close(out)
		defer close(errCh)
		runEventLoop(ctx, s, func(ev demux.Event) bool {
			switch ev.Kind {
			case demux.KindQuoteCompleted:
				s.driver.NotifyQuoteCompleted()
				markStreamingOnceReady(stream, s.driver)
			case demux.KindSeriesCompleted:
				s.driver.NotifySeriesCompleted()
				markStreamingOnceReady(stream, s.driver)
			case demux.KindSeriesUpdate:
				bars := ev.Series.Candles
				sort.SliceStable(bars, func(i, j int) bool { return bars[i].OpenTime.Before(bars[j].OpenTime) })
				for _, bar := range bars {
					bar = stampCandle(bar, symbol, interval)
					if err := bar.Validate(); err != nil {
						c.cfg.Logger.Warn().Err(err).Str("symbol", symbol).Msg("dropping malformed candle")
						continue
					}
					s.stats.record(time.Now())
					select {
					case out <- bar:
					case <-ctx.Done():
						return false
					}
				}
			case demux.KindProtocolError:
				stream.state.Store(int32(StateFailed))
				errCh <- ev.ProtocolErr
				return false
			}
			return true
		}, errCh)
	}()

	return stream, nil
}

// FetchHistoricalCandles drains StreamCandles until the first
// series_completed AND at least one candle has been collected, bounded by
// cfg.HistoricalTimeout. Returns NoData if the timeout elapses with zero
// candles, Timeout if series_completed never arrives despite partial data.
func (c *Client) FetchHistoricalCandles(ctx context.Context, symbol, interval string, barCount int) ([]candle.Candle, error) {
	if err := validate.Interval(interval); err != nil {
		return nil, err
	}
	if err := c.validator.Validate(ctx, symbol); err != nil {
		return nil, err
	}

	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.tr.Close()

	if err := s.driver.AddSeries(session.SeriesSpec{Symbol: symbol, Interval: interval, HistoryBars: barCount}); err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "add-series sequence failed", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.HistoricalTimeout)
	defer cancel()

	var collected []candle.Candle
	seriesCompleted := false
	var protoErr error

	errCh := make(chan error, 1)
	runEventLoop(timeoutCtx, s, func(ev demux.Event) bool {
		switch ev.Kind {
		case demux.KindSeriesUpdate:
			bars := make([]candle.Candle, 0, len(ev.Series.Candles))
			for _, bar := range ev.Series.Candles {
				bar = stampCandle(bar, symbol, interval)
				if err := bar.Validate(); err != nil {
					c.cfg.Logger.Warn().Err(err).Str("symbol", symbol).Msg("dropping malformed candle")
					continue
				}
				bars = append(bars, bar)
			}
			collected = candle.Merge(collected, bars)
		case demux.KindQuoteCompleted:
			s.driver.NotifyQuoteCompleted()
		case demux.KindSeriesCompleted:
			s.driver.NotifySeriesCompleted()
			if ev.SeriesCompletedKey == "" || ev.SeriesCompletedKey == wire.HistorySeriesKey {
				seriesCompleted = true
				if len(collected) > 0 {
					return false
				}
			}
		case demux.KindProtocolError:
			protoErr = ev.ProtocolErr
			return false
		}
		return true
	}, errCh)

	if protoErr != nil {
		return nil, errs.Wrap(errs.KindProtocolError, "historical fetch failed", protoErr)
	}
	if len(collected) == 0 {
		return nil, errs.New(errs.KindNoData, fmt.Sprintf("no candles received for %s/%s within %s", symbol, interval, c.cfg.HistoricalTimeout))
	}
	if !seriesCompleted {
		sort.Slice(collected, func(i, j int) bool { return collected[i].OpenTime.Before(collected[j].OpenTime) })
		return nil, errs.New(errs.KindTimeout, fmt.Sprintf("series_completed not observed within %s", c.cfg.HistoricalTimeout))
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].OpenTime.Before(collected[j].OpenTime) })
	return collected, nil
}

// StreamQuotes yields quote snapshots for symbol until the caller stops
// iterating. It uses only the quote-side subscription (spec §4.G).
func (c *Client) StreamQuotes(ctx context.Context, symbol string) (*Stream[candle.QuoteSnapshot], error) {
	if err := c.validator.Validate(ctx, symbol); err != nil {
		return nil, err
	}

	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.driver.AddTickers([]session.TickerSpec{{Symbol: symbol}}); err != nil {
		s.tr.Close()
		return nil, errs.Wrap(errs.KindHandshakeFailed, "add-ticker sequence failed", err)
	}

	out := make(chan candle.QuoteSnapshot, 64)
	errCh := make(chan error, 1)
	stream := &Stream[candle.QuoteSnapshot]{
		C:     out,
		Err:   errCh,
		Close: s.tr.Close,
		Stats: func() Stats { return s.stats.snapshot() },
	}
	stream.state.Store(int32(StateSubscribing))

	go func() {
		defer close(out)
		defer close(errCh)
		runEventLoop(ctx, s, func(ev demux.Event) bool {
			switch ev.Kind {
			case demux.KindQuoteCompleted:
				s.driver.NotifyQuoteCompleted()
				markStreamingOnceReady(stream, s.driver)
			case demux.KindQuote:
				snap := *ev.Quote
				if err := snap.Validate(); err != nil {
					c.cfg.Logger.Warn().Err(err).Str("symbol", symbol).Msg("dropping malformed quote")
					return true
				}
				s.stats.record(time.Now())
				select {
				case out <- snap:
				case <-ctx.Done():
					return false
				}
			case demux.KindProtocolError:
				stream.state.Store(int32(StateFailed))
				errCh <- ev.ProtocolErr
				return false
			}
			return true
		}, errCh)
	}()

	return stream, nil
}

// StreamLatestTradeInfo subscribes the quote session to multiple symbols
// (no chart series) and yields the raw decoded envelopes, letting callers
// project snapshots themselves (spec §4.G).
func (c *Client) StreamLatestTradeInfo(ctx context.Context, symbols []string) (*Stream[demux.Event], error) {
	if err := c.validator.ValidateAll(ctx, symbols); err != nil {
		return nil, err
	}

	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	specs := make([]session.TickerSpec, len(symbols))
	for i, sym := range symbols {
		specs[i] = session.TickerSpec{Symbol: sym, CurrencyID: "USD", Session: "regular"}
	}
	if err := s.driver.AddTickers(specs); err != nil {
		s.tr.Close()
		return nil, errs.Wrap(errs.KindHandshakeFailed, "add-ticker sequence failed", err)
	}

	return c.rawStream(ctx, s), nil
}

// StreamRaw exposes every decoded envelope for symbol/interval without
// projection, for debugging and integration (spec §4.G).
func (c *Client) StreamRaw(ctx context.Context, symbol, interval string, barCount int) (*Stream[demux.Event], error) {
	if err := validate.Interval(interval); err != nil {
		return nil, err
	}
	if err := c.validator.Validate(ctx, symbol); err != nil {
		return nil, err
	}

	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.driver.AddSeries(session.SeriesSpec{Symbol: symbol, Interval: interval, HistoryBars: barCount}); err != nil {
		s.tr.Close()
		return nil, errs.Wrap(errs.KindHandshakeFailed, "add-series sequence failed", err)
	}

	return c.rawStream(ctx, s), nil
}

func (c *Client) rawStream(ctx context.Context, s *openSession) *Stream[demux.Event] {
	out := make(chan demux.Event, 256)
	errCh := make(chan error, 1)
	stream := &Stream[demux.Event]{
		C:     out,
		Err:   errCh,
		Close: s.tr.Close,
		Stats: func() Stats { return s.stats.snapshot() },
	}
	stream.state.Store(int32(StateSubscribing))

	go func() {
		defer close(out)
		defer close(errCh)
		runEventLoop(ctx, s, func(ev demux.Event) bool {
			switch ev.Kind {
			case demux.KindQuoteCompleted:
				s.driver.NotifyQuoteCompleted()
				markStreamingOnceReady(stream, s.driver)
			case demux.KindSeriesCompleted:
				s.driver.NotifySeriesCompleted()
				markStreamingOnceReady(stream, s.driver)
			}
			s.stats.record(time.Now())
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
			if ev.Kind == demux.KindProtocolError {
				stream.state.Store(int32(StateFailed))
				errCh <- ev.ProtocolErr
				return false
			}
			return true
		}, errCh)
	}()

	return stream
}

// markStreamingOnceReady flips stream from subscribing to streaming the
// first time driver's readiness gate reports every expected
// quote_completed/series_completed acknowledgement has arrived, instead of
// assuming the subscription is live as soon as it was sent.
func markStreamingOnceReady[T any](stream *Stream[T], driver *session.Driver) {
	if driver.Ready() && stream.State() == StateSubscribing {
		stream.state.Store(int32(StateStreaming))
	}
}

// stampCandle fills in the fields the wire format doesn't carry per-bar
// (demux only knows OHLCV and OpenTime): the series' Symbol/Interval, plus a
// CloseTime derived from the interval's wall-clock span.
func stampCandle(bar candle.Candle, symbol, interval string) candle.Candle {
	bar.Symbol = symbol
	bar.Interval = interval
	bar.CloseTime = bar.OpenTime.Add(validate.Duration(interval))
	return bar
}

// runEventLoop is the single consumer of one Transport's Frames channel
// (spec §4.D's receive contract: exactly one demultiplexer consumer per
// Transport). visit returns false to stop the loop early. Any terminal
// transport error is forwarded to errCh before the loop exits.
func runEventLoop(ctx context.Context, s *openSession, visit func(demux.Event) bool, errCh chan<- error) {
	defer s.tr.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.tr.Frames():
			if !ok {
				select {
				case e := <-s.tr.Err():
					errCh <- e
				default:
				}
				return
			}
			events, err := s.demux.Parse(frame)
			if err != nil {
				continue // JSONParseError: logged by demux.Parse, frame skipped
			}
			for _, ev := range events {
				if !visit(ev) {
					return
				}
			}
		}
	}
}
