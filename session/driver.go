package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/haidl/tvstream/wire"
)

// Sender writes one envelope to the wire. The driver depends only on this
// function value, not on a concrete transport — the same seam
// transport.Transport.Send satisfies, and tests can substitute a recording
// stub.
type Sender func(verb wire.Verb, params []interface{}) error

// Driver runs the fixed opening handshake and the per-symbol subscription
// sub-sequences for one chart+quote session pair (spec §4.E).
type Driver struct {
	send    Sender
	chartID string
	quoteID string
	log     zerolog.Logger

	ready *ReadinessGate
}

// NewDriver returns a Driver that will issue every outbound envelope via
// send, addressing the given chart and quote session IDs. Until AddSeries
// or AddTickers runs, the readiness gate is trivially satisfied.
func NewDriver(send Sender, chartID, quoteID string, log zerolog.Logger) *Driver {
	return &Driver{
		send:    send,
		chartID: chartID,
		quoteID: quoteID,
		log:     log.With().Str("component", "session").Logger(),
		ready:   NewReadinessGate(0),
	}
}

// Open runs the fixed opening sequence: auth, locale, session creation for
// both the chart and quote sessions, the fixed quote field list, and one
// quote_hibernate_all. AddSeries and AddTickers each send quote_hibernate_all
// again after subscribing.
func (d *Driver) Open(locale string) error {
	if err := d.send(wire.VerbSetAuthToken, []interface{}{wire.UnauthorizedToken}); err != nil {
		return fmt.Errorf("session: set_auth_token: %w", err)
	}
	if err := d.send(wire.VerbSetLocale, []interface{}{locale, "US"}); err != nil {
		return fmt.Errorf("session: set_locale: %w", err)
	}
	if err := d.send(wire.VerbChartCreateSession, []interface{}{d.chartID, ""}); err != nil {
		return fmt.Errorf("session: chart_create_session: %w", err)
	}
	if err := d.send(wire.VerbQuoteCreateSession, []interface{}{d.quoteID}); err != nil {
		return fmt.Errorf("session: quote_create_session: %w", err)
	}
	fieldParams := make([]interface{}, 0, len(wire.QuoteFields)+1)
	fieldParams = append(fieldParams, d.quoteID)
	for _, f := range wire.QuoteFields {
		fieldParams = append(fieldParams, f)
	}
	if err := d.send(wire.VerbQuoteSetFields, fieldParams); err != nil {
		return fmt.Errorf("session: quote_set_fields: %w", err)
	}
	if err := d.send(wire.VerbQuoteHibernateAll, []interface{}{d.quoteID}); err != nil {
		return fmt.Errorf("session: quote_hibernate_all: %w", err)
	}
	return nil
}

// SeriesSpec describes one OHLCV chart subscription to add to the session.
type SeriesSpec struct {
	Symbol      string // "EXCHANGE:TICKER"
	Interval    string // validated by validate.Interval before reaching here
	HistoryBars int    // number of bars requested on create_series
	StudyID     string // "" defaults to wire.VolumeStudyID; "-" disables the study
}

// AddSeries runs the add-symbol sub-sequence for one chart subscription, in
// the exact order spec §4.E steps 7–12: quote_add_symbols, resolve_symbol,
// create_series, quote_fast_symbols, create_study, quote_hibernate_all.
func (d *Driver) AddSeries(spec SeriesSpec) error {
	symJSON, err := wire.SymbolJSON(wire.SymbolSpec{Adjustment: "splits", Symbol: spec.Symbol})
	if err != nil {
		return fmt.Errorf("session: encode symbol: %w", err)
	}

	// The server acknowledges this sub-sequence asynchronously with
	// quote_completed and series_completed; the gate lets a caller learn that
	// without guessing at a sleep duration.
	d.ready = NewReadinessGate(2)

	if err := d.send(wire.VerbQuoteAddSymbols, []interface{}{d.quoteID, wire.ResolveParam(symJSON)}); err != nil {
		return fmt.Errorf("session: quote_add_symbols: %w", err)
	}
	if err := d.send(wire.VerbResolveSymbol, []interface{}{d.chartID, wire.SymbolKey, wire.ResolveParam(symJSON)}); err != nil {
		return fmt.Errorf("session: resolve_symbol: %w", err)
	}

	bars := spec.HistoryBars
	if bars <= 0 {
		bars = 300
	}
	if err := d.send(wire.VerbCreateSeries, []interface{}{
		d.chartID, wire.HistorySeriesKey, "s1", wire.SymbolKey, spec.Interval, bars, "",
	}); err != nil {
		return fmt.Errorf("session: create_series: %w", err)
	}

	if err := d.send(wire.VerbQuoteFastSymbols, []interface{}{d.quoteID, spec.Symbol}); err != nil {
		return fmt.Errorf("session: quote_fast_symbols: %w", err)
	}

	studyID := spec.StudyID
	if studyID == "" {
		studyID = wire.VolumeStudyID
	}
	if studyID != "-" {
		if err := d.send(wire.VerbCreateStudy, []interface{}{
			d.chartID, wire.StudyKey, "st1", wire.HistorySeriesKey, studyID,
			map[string]interface{}{"length": 20, "col_prev_close": "false"},
		}); err != nil {
			return fmt.Errorf("session: create_study: %w", err)
		}
	}

	if err := d.send(wire.VerbQuoteHibernateAll, []interface{}{d.quoteID}); err != nil {
		return fmt.Errorf("session: quote_hibernate_all (post-subscribe): %w", err)
	}
	return nil
}

// TickerSpec describes a multi-symbol ticker subscription (quote-session
// only, no chart series) — the "get_latest_trade_info" flow.
type TickerSpec struct {
	Symbol     string
	CurrencyID string
	Session    string // e.g. "regular"; "" omits the field
}

// AddTickers runs the multi-symbol ticker variant of the add-symbol
// sub-sequence (spec §4.E): quote_add_symbols once per symbol with the
// extended symbol_json, then a single quote_fast_symbols batching every
// symbol, then a re-hibernate. There is no chart series in this flow.
func (d *Driver) AddTickers(specs []TickerSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("session: AddTickers called with no symbols")
	}
	// No chart series in this flow, so only quote_completed is awaited.
	d.ready = NewReadinessGate(1)
	fastParams := make([]interface{}, 0, len(specs)+1)
	fastParams = append(fastParams, d.quoteID)
	for _, spec := range specs {
		symJSON, err := wire.SymbolJSON(wire.SymbolSpec{
			Adjustment: "splits",
			Symbol:     spec.Symbol,
			CurrencyID: spec.CurrencyID,
			Session:    spec.Session,
		})
		if err != nil {
			return fmt.Errorf("session: encode ticker symbol: %w", err)
		}
		if err := d.send(wire.VerbQuoteAddSymbols, []interface{}{d.quoteID, wire.ResolveParam(symJSON)}); err != nil {
			return fmt.Errorf("session: quote_add_symbols (ticker): %w", err)
		}
		fastParams = append(fastParams, spec.Symbol)
	}
	if err := d.send(wire.VerbQuoteFastSymbols, fastParams); err != nil {
		return fmt.Errorf("session: quote_fast_symbols (ticker batch): %w", err)
	}
	if err := d.send(wire.VerbQuoteHibernateAll, []interface{}{d.quoteID}); err != nil {
		return fmt.Errorf("session: quote_hibernate_all (post-ticker): %w", err)
	}
	return nil
}

// ChartID and QuoteID expose the session identifiers this driver was
// constructed with, for demux routing.
func (d *Driver) ChartID() string { return d.chartID }
func (d *Driver) QuoteID() string { return d.quoteID }

// NotifyQuoteCompleted records one quote_completed acknowledgement against
// the readiness gate opened by the last AddSeries or AddTickers call. The
// demux consumer calls this as soon as it observes the event; the driver
// itself never reads frames.
func (d *Driver) NotifyQuoteCompleted() { d.ready.Satisfy() }

// NotifySeriesCompleted records one series_completed acknowledgement against
// the readiness gate opened by the last AddSeries call.
func (d *Driver) NotifySeriesCompleted() { d.ready.Satisfy() }

// Ready reports whether the subscription sequence opened by the last
// AddSeries/AddTickers call has been fully acknowledged.
func (d *Driver) Ready() bool { return d.ready.Ready() }

// WaitReady blocks until the subscription sequence opened by the last
// AddSeries/AddTickers call is fully acknowledged, or ctx ends first.
func (d *Driver) WaitReady(ctx context.Context) error {
	select {
	case <-d.ready.Wait():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
