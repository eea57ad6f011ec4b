// Package candle defines the domain types the client emits: OHLCV candles,
// quote snapshots, and the generalized series-update envelope, plus a
// timeframe re-bucketing helper for consumers who backfill at finer
// resolution than they display.
package candle

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Candle is one OHLCV bar for a symbol at a given interval. Price and volume
// fields use decimal.Decimal so aggregation and re-bucketing never truncate
// (spec §3.3).
type Candle struct {
	Symbol    string          `validate:"required"`
	Interval  string          `validate:"required"`
	OpenTime  time.Time       `validate:"required"`
	CloseTime time.Time       `validate:"required"`
	Open      decimal.Decimal `validate:"required"`
	High      decimal.Decimal `validate:"required"`
	Low       decimal.Decimal `validate:"required"`
	Close     decimal.Decimal `validate:"required"`
	Volume    decimal.Decimal
	IsClosed  bool
}

// Validate checks the struct-level invariants tagged above: every OHLC
// field and both timestamps must be present. Volume may be zero (a symbol
// can legitimately trade nothing in a bar) so it carries no tag.
func (c Candle) Validate() error {
	return validate.Struct(c)
}

// QuoteSnapshot is the latest known state of a symbol's quote fields, keyed
// by the 28 names requested via quote_set_fields. Values are left as
// interface{} since the field set mixes strings, numbers, and booleans.
type QuoteSnapshot struct {
	Symbol string                 `validate:"required"`
	Fields map[string]interface{} `validate:"required"`
	AsOf   time.Time
}

// Validate checks that the snapshot carries a symbol and a non-nil field map.
func (q QuoteSnapshot) Validate() error {
	return validate.Struct(q)
}

// Clone returns a QuoteSnapshot with its own copy of Fields, so callers can
// retain a snapshot across further updates without aliasing the demux's
// working map.
func (q QuoteSnapshot) Clone() QuoteSnapshot {
	cp := make(map[string]interface{}, len(q.Fields))
	for k, v := range q.Fields {
		cp[k] = v
	}
	return QuoteSnapshot{Symbol: q.Symbol, Fields: cp, AsOf: q.AsOf}
}

// SeriesUpdate is one decoded du/timescale_update payload: zero or more
// candle revisions for a single chart series, in the order the server sent
// them. Last write wins when two updates share an OpenTime (spec §3.4).
type SeriesUpdate struct {
	SeriesKey string
	Candles   []Candle
}

// Merge applies last-write-wins semantics: candles from next replace any
// existing entry in base sharing the same OpenTime, and new OpenTimes are
// appended, with the result sorted ascending by OpenTime.
func Merge(base []Candle, next []Candle) []Candle {
	byTime := make(map[int64]Candle, len(base)+len(next))
	order := make([]int64, 0, len(base)+len(next))
	for _, c := range base {
		key := c.OpenTime.UnixNano()
		if _, exists := byTime[key]; !exists {
			order = append(order, key)
		}
		byTime[key] = c
	}
	for _, c := range next {
		key := c.OpenTime.UnixNano()
		if _, exists := byTime[key]; !exists {
			order = append(order, key)
		}
		byTime[key] = c
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]Candle, 0, len(order))
	for _, key := range order {
		out = append(out, byTime[key])
	}
	return out
}
