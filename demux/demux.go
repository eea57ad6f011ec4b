// Package demux turns decoded JSON envelopes from the transport into typed,
// per-subscription events (spec §4.F). It is stateless across calls except
// for the series key it was configured to project; callers own ordering by
// feeding it frames in arrival order.
package demux

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/haidl/tvstream/candle"
	"github.com/haidl/tvstream/errs"
)

// Kind tags the variant carried by an Event.
type Kind string

const (
	KindSeriesUpdate    Kind = "series_update"
	KindQuote           Kind = "quote"
	KindQuoteCompleted  Kind = "quote_completed"
	KindSeriesLoading   Kind = "series_loading"
	KindSeriesCompleted Kind = "series_completed"
	KindProtocolError   Kind = "protocol_error"
	KindStudyUpdate     Kind = "study_update"
	KindRaw             Kind = "raw"
	KindIgnored         Kind = "ignored"
)

// Event is the tagged union of everything the demuxer can produce. Exactly
// one of the pointer/value fields is meaningful for a given Kind.
type Event struct {
	Kind Kind

	Series *candle.SeriesUpdate
	Quote  *candle.QuoteSnapshot

	QuoteCompletedSymbol string
	SeriesLoadingKey     string
	SeriesCompletedKey   string

	ProtocolErr *errs.ProtocolError

	StudyKey     string
	StudyPayload []byte

	RawMethod string
	RawParams []byte
}

// Demux projects envelopes addressed to one chart series key (normally
// "sds_1"); other series keys in the same du/timescale_update envelope are
// still decoded but surfaced only through StreamRaw-style consumption via
// KindRaw, per spec §4.F's projection rule.
type Demux struct {
	seriesKey string
	log       zerolog.Logger
}

// New returns a Demux that projects candle updates for seriesKey.
func New(seriesKey string, log zerolog.Logger) *Demux {
	return &Demux{seriesKey: seriesKey, log: log.With().Str("component", "demux").Logger()}
}

type envelope struct {
	Method string            `json:"m"`
	Params []json.RawMessage `json:"p"`
}

// Parse decodes one JSON frame payload into zero or more Events (a du/
// timescale_update envelope carrying multiple series keys can yield more
// than one). Unknown verbs yield a single KindRaw event rather than an
// error, per spec §4.F ("unknown verbs are forwarded verbatim"). A payload
// that cannot be decoded is logged and returned as an error.
func (d *Demux) Parse(payload []byte) ([]Event, error) {
	events, err := d.parse(payload)
	if err != nil {
		d.log.Warn().Err(err).Msg("skipping frame that could not be decoded")
	}
	return events, err
}

func (d *Demux) parse(payload []byte) ([]Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errs.Wrap(errs.KindJSONParseError, "payload is not a valid envelope", err)
	}

	switch env.Method {
	case "du", "timescale_update":
		return d.parseSeriesUpdate(env)
	case "qsd":
		return d.parseQuote(env)
	case "quote_completed":
		return d.parseQuoteCompleted(env)
	case "series_loading":
		return []Event{{Kind: KindSeriesLoading, SeriesLoadingKey: rawString(env.Params, 1)}}, nil
	case "series_completed":
		return []Event{{Kind: KindSeriesCompleted, SeriesCompletedKey: rawString(env.Params, 1)}}, nil
	case "protocol_error":
		return []Event{d.parseProtocolError(env)}, nil
	case "study_loading", "study_completed":
		return []Event{{Kind: KindStudyUpdate, StudyKey: rawString(env.Params, 1)}}, nil
	default:
		raw, _ := json.Marshal(env.Params)
		return []Event{{Kind: KindRaw, RawMethod: env.Method, RawParams: raw}}, nil
	}
}

type seriesItem struct {
	I int       `json:"i"`
	V []float64 `json:"v"`
}

type seriesPayload struct {
	S []seriesItem `json:"s"`
}

func (d *Demux) parseSeriesUpdate(env envelope) ([]Event, error) {
	if len(env.Params) < 2 {
		return nil, errs.New(errs.KindJSONParseError, "du/timescale_update envelope missing series map")
	}
	var seriesMap map[string]seriesPayload
	if err := json.Unmarshal(env.Params[1], &seriesMap); err != nil {
		return nil, errs.Wrap(errs.KindJSONParseError, "du/timescale_update series map malformed", err)
	}

	var events []Event
	for key, payload := range seriesMap {
		candles := make([]candle.Candle, 0, len(payload.S))
		for _, item := range payload.S {
			candles = append(candles, itemToCandle(item.V))
		}
		update := &candle.SeriesUpdate{SeriesKey: key, Candles: candles}
		if key == d.seriesKey {
			events = append(events, Event{Kind: KindSeriesUpdate, Series: update})
		} else {
			raw, _ := json.Marshal(payload)
			events = append(events, Event{Kind: KindRaw, RawMethod: env.Method, RawParams: raw})
		}
	}
	return events, nil
}

// itemToCandle converts a raw [timestamp, open, high, low, close, volume?]
// array, filling every missing trailing element with 0, so a 5-element item
// gets a zero volume (spec §4.F edge case).
func itemToCandle(v []float64) candle.Candle {
	for len(v) < 6 {
		v = append(v, 0)
	}
	return candle.Candle{
		OpenTime: time.Unix(int64(v[0]), 0).UTC(),
		Open:     decimal.NewFromFloat(v[1]),
		High:     decimal.NewFromFloat(v[2]),
		Low:      decimal.NewFromFloat(v[3]),
		Close:    decimal.NewFromFloat(v[4]),
		Volume:   decimal.NewFromFloat(v[5]),
	}
}

type quoteParam struct {
	N string                 `json:"n"`
	S string                 `json:"s"`
	V map[string]interface{} `json:"v"`
}

func (d *Demux) parseQuote(env envelope) ([]Event, error) {
	if len(env.Params) < 2 {
		return nil, errs.New(errs.KindJSONParseError, "qsd envelope missing quote data")
	}
	var q quoteParam
	if err := json.Unmarshal(env.Params[1], &q); err != nil {
		return nil, errs.Wrap(errs.KindJSONParseError, "qsd payload malformed", err)
	}
	snap := &candle.QuoteSnapshot{Symbol: q.N, Fields: q.V, AsOf: timeNowStamp()}
	return []Event{{Kind: KindQuote, Quote: snap}}, nil
}

func (d *Demux) parseQuoteCompleted(env envelope) ([]Event, error) {
	return []Event{{Kind: KindQuoteCompleted, QuoteCompletedSymbol: rawString(env.Params, 1)}}, nil
}

func (d *Demux) parseProtocolError(env envelope) Event {
	code := rawString(env.Params, 0)
	msg := rawString(env.Params, len(env.Params)-1)
	return Event{Kind: KindProtocolError, ProtocolErr: &errs.ProtocolError{Code: code, Message: msg}}
}

func rawString(params []json.RawMessage, idx int) string {
	if idx < 0 || idx >= len(params) {
		return ""
	}
	var s string
	if err := json.Unmarshal(params[idx], &s); err != nil {
		return fmt.Sprintf("%s", params[idx])
	}
	return s
}

// timeNowStamp is its own function so tests can't accidentally rely on
// wall-clock determinism elsewhere in the package; it is intentionally the
// only call to time.Now in this file.
func timeNowStamp() time.Time { return time.Now().UTC() }
